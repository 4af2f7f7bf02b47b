package progress

import (
	"context"
	"strings"

	"github.com/truss/momentum/estimate"
)

// =============================================================================
// PROJECT LIFECYCLE
// =============================================================================

// CreateProject starts tracking a proposal. Display fields are copied from
// the proposal once. Status defaults to active.
func (s *Service) CreateProject(ctx context.Context, proposalID estimate.ProposalID, status ProjectStatus) (*Project, error) {
	if status == "" {
		status = ProjectActive
	}
	if !status.Valid() {
		return nil, invalid("unknown project status %q", status)
	}

	var created *Project
	err := withTx(ctx, s.store, func(st Store) error {
		proposal, err := st.GetProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if proposal == nil {
			return notFound("proposal", proposalID)
		}

		existing, err := st.GetProjectByProposal(ctx, proposalID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ConflictError{ProposalID: string(proposalID), ExistingProjectID: existing.ID}
		}

		now := s.now()
		p := Project{
			ID:         ProjectID(s.newID()),
			ProposalID: proposal.ID,
			Name:       proposal.Name,
			Owner:      proposal.Owner,
			Location:   proposal.Location,
			JobNumber:  proposal.JobNumber,
			Status:     status,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := st.InsertProject(ctx, p); err != nil {
			return err
		}
		created = &p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("project_id", string(created.ID)).
		Str("proposal_id", string(proposalID)).
		Msg("project created")
	return created, nil
}

// UpdateProject applies user-editable settings.
func (s *Service) UpdateProject(ctx context.Context, id ProjectID, patch ProjectPatch) (*Project, error) {
	var updated *Project
	err := withTx(ctx, s.store, func(st Store) error {
		p, err := st.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", id)
		}

		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return invalid("project name cannot be empty")
			}
			p.Name = name
		}
		if patch.Status != nil {
			if !patch.Status.Valid() {
				return invalid("unknown project status %q", *patch.Status)
			}
			p.Status = *patch.Status
		}
		if patch.StartDate != nil {
			p.StartDate = *patch.StartDate
		}
		if patch.EndDate != nil {
			p.EndDate = *patch.EndDate
		}
		if !p.StartDate.IsZero() && !p.EndDate.IsZero() && p.EndDate.Before(p.StartDate) {
			return invalid("end date %s is before start date %s", p.EndDate, p.StartDate)
		}

		p.UpdatedAt = s.now()
		if err := st.UpdateProject(ctx, *p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteProject removes a project and all of its entries. The proposal and
// its estimate hierarchy are untouched.
func (s *Service) DeleteProject(ctx context.Context, id ProjectID) error {
	var removed int64
	err := withTx(ctx, s.store, func(st Store) error {
		p, err := st.GetProject(ctx, id)
		if err != nil {
			return err
		}
		if p == nil {
			return notFound("project", id)
		}

		removed, err = st.DeleteProjectEntries(ctx, id)
		if err != nil {
			return err
		}
		return st.DeleteProject(ctx, id)
	})
	if err != nil {
		return err
	}

	s.log.Info().
		Str("project_id", string(id)).
		Int64("entries_deleted", removed).
		Msg("project deleted")
	return nil
}

// DeleteEntry removes a single progress entry by id.
func (s *Service) DeleteEntry(ctx context.Context, id EntryID) error {
	return withTx(ctx, s.store, func(st Store) error {
		e, err := st.GetEntry(ctx, id)
		if err != nil {
			return err
		}
		if e == nil {
			return notFound("entry", id)
		}
		return st.DeleteEntry(ctx, id)
	})
}

// GetProject returns a project, or nil.
func (s *Service) GetProject(ctx context.Context, id ProjectID) (*Project, error) {
	return s.store.GetProject(ctx, id)
}
