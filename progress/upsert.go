/*
upsert.go - Reconciling a batch of daily quantities against stored entries

PURPOSE:
  SaveEntries is the only way ProgressEntry rows change (apart from the
  explicit single-row delete and project cascade). It keeps exactly one row
  per (project, activity, date) while letting crews correct or clear a day.

PER LINE:
                       | row exists        | no row
  quantity > 0         | update in place   | insert (snapshot WBS/phase)
  quantity == 0        | delete            | no-op
  activity missing     | skip silently     | skip silently

BATCH RULES:
  - Missing project → NotFoundError, nothing written. Checked first.
  - Empty batch or negative quantity → ValidationError, nothing written.
  - Every line stale → ValidationError, nothing written.
  - Otherwise the project's LastEntryDate becomes the batch date, even if
    every line was a no-op or a delete.
  - The batch runs in one store transaction when the store supports it.

CONCURRENCY:
  Two batches racing on the same key resolve last-write-wins through the
  store's write serialization. No merge is attempted.

IDEMPOTENCE:
  Re-submitting the same batch leaves the same rows: the second pass finds
  each row and updates it to the value it already has.
*/
package progress

import (
	"context"
	"errors"

	"github.com/truss/momentum/estimate"
)

// Outcome describes what happened to one submitted line.
type Outcome string

const (
	OutcomeInserted     Outcome = "inserted"
	OutcomeUpdated      Outcome = "updated"
	OutcomeDeleted      Outcome = "deleted"
	OutcomeNoop         Outcome = "noop"
	OutcomeSkippedStale Outcome = "skipped_stale"
)

// SaveResult reports the per-line outcome of a batch, in submission order.
type SaveResult struct {
	ProjectID ProjectID
	EntryDate Date
	Outcomes  []LineOutcome
}

type LineOutcome struct {
	ActivityID estimate.ActivityID
	Outcome    Outcome
	EntryID    EntryID // empty for noop and skipped lines
	Err        error   // ErrStaleReference for skipped lines
}

// Count returns how many lines ended with the given outcome.
func (r *SaveResult) Count(o Outcome) int {
	n := 0
	for _, lo := range r.Outcomes {
		if lo.Outcome == o {
			n++
		}
	}
	return n
}

// SaveEntries reconciles a batch of quantities for one project and date.
func (s *Service) SaveEntries(ctx context.Context, projectID ProjectID, date Date, subs []Submission) (*SaveResult, error) {
	var result *SaveResult
	err := withTx(ctx, s.store, func(st Store) error {
		var err error
		result, err = s.reconcile(ctx, st, projectID, date, subs)
		return err
	})
	if err != nil {
		s.log.Warn().Err(err).
			Str("project_id", string(projectID)).
			Str("entry_date", date.String()).
			Int("lines", len(subs)).
			Msg("progress batch rejected")
		return nil, err
	}

	s.log.Info().
		Str("project_id", string(projectID)).
		Str("entry_date", date.String()).
		Int("inserted", result.Count(OutcomeInserted)).
		Int("updated", result.Count(OutcomeUpdated)).
		Int("deleted", result.Count(OutcomeDeleted)).
		Int("noop", result.Count(OutcomeNoop)).
		Int("skipped", result.Count(OutcomeSkippedStale)).
		Msg("progress batch saved")
	return result, nil
}

func (s *Service) reconcile(ctx context.Context, st Store, projectID ProjectID, date Date, subs []Submission) (*SaveResult, error) {
	project, err := st.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project == nil {
		return nil, notFound("project", projectID)
	}
	if err := checkBatch(date, subs); err != nil {
		return nil, err
	}

	ids := make([]estimate.ActivityID, 0, len(subs))
	for _, sub := range subs {
		ids = append(ids, sub.ActivityID)
	}
	activities, err := st.GetActivities(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Activities of another proposal are as unknown to this project as
	// deleted ones.
	live := 0
	for _, sub := range subs {
		if a, ok := activities[sub.ActivityID]; ok && a.ProposalID == project.ProposalID {
			live++
		}
	}
	if live == 0 {
		return nil, invalid("none of the %d submitted entries reference an existing activity", len(subs))
	}

	result := &SaveResult{ProjectID: projectID, EntryDate: date}
	for _, sub := range subs {
		act, ok := activities[sub.ActivityID]
		if !ok || act.ProposalID != project.ProposalID {
			s.logLine(projectID, date, sub, OutcomeSkippedStale, "")
			result.Outcomes = append(result.Outcomes, LineOutcome{
				ActivityID: sub.ActivityID,
				Outcome:    OutcomeSkippedStale,
				Err:        ErrStaleReference,
			})
			continue
		}

		outcome, id, err := s.upsertOne(ctx, st, projectID, date, act, sub)
		if err != nil {
			return nil, err
		}
		s.logLine(projectID, date, sub, outcome, id)
		result.Outcomes = append(result.Outcomes, LineOutcome{ActivityID: sub.ActivityID, Outcome: outcome, EntryID: id})
	}

	if err := st.SetLastEntryDate(ctx, projectID, date); err != nil {
		return nil, err
	}
	return result, nil
}

// checkBatch rejects batches that cannot be applied at all. It runs after
// the project lookup so a missing project always reports NotFound.
func checkBatch(date Date, subs []Submission) error {
	if date.IsZero() {
		return invalid("entry date is required")
	}
	if len(subs) == 0 {
		return invalid("no entries submitted")
	}
	for _, sub := range subs {
		if sub.QuantityCompleted.IsNegative() {
			return &ValidationError{
				Message: "negative quantities are not allowed",
				Issues: []Issue{{
					ActivityID: sub.ActivityID,
					Severity:   SeverityError,
					Code:       CodeNegativeQuantity,
					Message:    "quantity for " + string(sub.ActivityID) + " is negative",
				}},
			}
		}
	}
	return nil
}

func (s *Service) upsertOne(ctx context.Context, st Store, projectID ProjectID, date Date, act estimate.Activity, sub Submission) (Outcome, EntryID, error) {
	key := EntryKey{ProjectID: projectID, ActivityID: act.ID, EntryDate: date}

	existing, err := st.FindEntry(ctx, key)
	if err != nil {
		return "", "", err
	}

	if existing != nil {
		if sub.QuantityCompleted.IsZero() {
			if err := st.DeleteEntry(ctx, existing.ID); err != nil {
				return "", "", err
			}
			return OutcomeDeleted, existing.ID, nil
		}
		if err := st.UpdateEntry(ctx, existing.ID, sub.QuantityCompleted, sub.Notes); err != nil {
			return "", "", err
		}
		return OutcomeUpdated, existing.ID, nil
	}

	if sub.QuantityCompleted.IsZero() {
		return OutcomeNoop, "", nil
	}

	now := s.now()
	entry := ProgressEntry{
		ID:                EntryID(s.newID()),
		ProjectID:         projectID,
		ActivityID:        act.ID,
		WBSID:             act.WBSID,
		PhaseID:           act.PhaseID,
		EntryDate:         date,
		QuantityCompleted: sub.QuantityCompleted,
		Notes:             sub.Notes,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := st.InsertEntry(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateEntry) {
			// Lost a race with a concurrent insert for the same key: the
			// row exists now, so this becomes an update.
			return s.retryAsUpdate(ctx, st, key, sub)
		}
		return "", "", err
	}
	return OutcomeInserted, entry.ID, nil
}

func (s *Service) retryAsUpdate(ctx context.Context, st Store, key EntryKey, sub Submission) (Outcome, EntryID, error) {
	existing, err := st.FindEntry(ctx, key)
	if err != nil {
		return "", "", err
	}
	if existing == nil {
		return "", "", ErrDuplicateEntry
	}
	if err := st.UpdateEntry(ctx, existing.ID, sub.QuantityCompleted, sub.Notes); err != nil {
		return "", "", err
	}
	return OutcomeUpdated, existing.ID, nil
}

func (s *Service) logLine(projectID ProjectID, date Date, sub Submission, outcome Outcome, id EntryID) {
	s.log.Debug().
		Str("project_id", string(projectID)).
		Str("activity_id", string(sub.ActivityID)).
		Str("entry_date", date.String()).
		Str("quantity", sub.QuantityCompleted.String()).
		Str("entry_id", string(id)).
		Str("outcome", string(outcome)).
		Msg("progress line reconciled")
}
