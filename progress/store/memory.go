// Package store provides an in-memory progress.Store.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/progress"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements progress.TxStore. WithTx snapshots all state and
// restores it if fn fails.
type Memory struct {
	mu sync.RWMutex
	s  *state
}

var _ progress.TxStore = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

type entryKey struct {
	ProjectID  progress.ProjectID
	ActivityID estimate.ActivityID
	Date       string
}

func keyOf(k progress.EntryKey) entryKey {
	return entryKey{ProjectID: k.ProjectID, ActivityID: k.ActivityID, Date: k.EntryDate.String()}
}

// state holds every table. Its methods take no locks.
type state struct {
	proposals  map[estimate.ProposalID]estimate.Proposal
	wbs        map[estimate.WBSID]estimate.WBS
	phases     map[estimate.PhaseID]estimate.Phase
	activities map[estimate.ActivityID]estimate.Activity
	projects   map[progress.ProjectID]progress.Project
	entries    map[progress.EntryID]progress.ProgressEntry
	byKey      map[entryKey]progress.EntryID
}

func newState() *state {
	return &state{
		proposals:  make(map[estimate.ProposalID]estimate.Proposal),
		wbs:        make(map[estimate.WBSID]estimate.WBS),
		phases:     make(map[estimate.PhaseID]estimate.Phase),
		activities: make(map[estimate.ActivityID]estimate.Activity),
		projects:   make(map[progress.ProjectID]progress.Project),
		entries:    make(map[progress.EntryID]progress.ProgressEntry),
		byKey:      make(map[entryKey]progress.EntryID),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.proposals {
		c.proposals[k] = v
	}
	for k, v := range s.wbs {
		c.wbs[k] = v
	}
	for k, v := range s.phases {
		c.phases[k] = v
	}
	for k, v := range s.activities {
		c.activities[k] = v
	}
	for k, v := range s.projects {
		c.projects[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.byKey {
		c.byKey[k] = v
	}
	return c
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against the live state under the write lock and restores
// a snapshot if fn returns an error.
func (m *Memory) WithTx(ctx context.Context, fn func(progress.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(m.s); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = newState()
	return nil
}

// =============================================================================
// LOCKED DELEGATES
// =============================================================================

func (m *Memory) SaveEstimate(ctx context.Context, est estimate.Estimate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SaveEstimate(ctx, est)
}

func (m *Memory) GetProposal(ctx context.Context, id estimate.ProposalID) (*estimate.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetProposal(ctx, id)
}

func (m *Memory) ListProposals(ctx context.Context) ([]estimate.Proposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListProposals(ctx)
}

func (m *Memory) ListWBS(ctx context.Context, proposalID estimate.ProposalID) ([]estimate.WBS, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListWBS(ctx, proposalID)
}

func (m *Memory) ListPhases(ctx context.Context, proposalID estimate.ProposalID) ([]estimate.Phase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListPhases(ctx, proposalID)
}

func (m *Memory) ListActivities(ctx context.Context, filter progress.ActivityFilter) ([]estimate.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListActivities(ctx, filter)
}

func (m *Memory) GetActivities(ctx context.Context, ids []estimate.ActivityID) (map[estimate.ActivityID]estimate.Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetActivities(ctx, ids)
}

func (m *Memory) ListEntries(ctx context.Context, filter progress.EntryFilter) ([]progress.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListEntries(ctx, filter)
}

func (m *Memory) FindEntry(ctx context.Context, key progress.EntryKey) (*progress.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.FindEntry(ctx, key)
}

func (m *Memory) GetEntry(ctx context.Context, id progress.EntryID) (*progress.ProgressEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetEntry(ctx, id)
}

func (m *Memory) InsertEntry(ctx context.Context, entry progress.ProgressEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.InsertEntry(ctx, entry)
}

func (m *Memory) UpdateEntry(ctx context.Context, id progress.EntryID, quantity decimal.Decimal, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateEntry(ctx, id, quantity, notes)
}

func (m *Memory) DeleteEntry(ctx context.Context, id progress.EntryID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteEntry(ctx, id)
}

func (m *Memory) DeleteProjectEntries(ctx context.Context, projectID progress.ProjectID) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteProjectEntries(ctx, projectID)
}

func (m *Memory) GetProject(ctx context.Context, id progress.ProjectID) (*progress.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetProject(ctx, id)
}

func (m *Memory) GetProjectByProposal(ctx context.Context, proposalID estimate.ProposalID) (*progress.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.GetProjectByProposal(ctx, proposalID)
}

func (m *Memory) ListProjects(ctx context.Context) ([]progress.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s.ListProjects(ctx)
}

func (m *Memory) InsertProject(ctx context.Context, p progress.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.InsertProject(ctx, p)
}

func (m *Memory) UpdateProject(ctx context.Context, p progress.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.UpdateProject(ctx, p)
}

func (m *Memory) DeleteProject(ctx context.Context, id progress.ProjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.DeleteProject(ctx, id)
}

func (m *Memory) SetLastEntryDate(ctx context.Context, id progress.ProjectID, date progress.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.s.SetLastEntryDate(ctx, id, date)
}

// =============================================================================
// ESTIMATE TABLES
// =============================================================================

func (s *state) SaveEstimate(_ context.Context, est estimate.Estimate) error {
	id := est.Proposal.ID
	for k, w := range s.wbs {
		if w.ProposalID == id {
			delete(s.wbs, k)
		}
	}
	for k, p := range s.phases {
		if p.ProposalID == id {
			delete(s.phases, k)
		}
	}
	for k, a := range s.activities {
		if a.ProposalID == id {
			delete(s.activities, k)
		}
	}

	s.proposals[id] = est.Proposal
	for _, w := range est.WBS {
		w.ProposalID = id
		s.wbs[w.ID] = w
	}
	for _, p := range est.Phases {
		p.ProposalID = id
		s.phases[p.ID] = p
	}
	for _, a := range est.Activities {
		a.ProposalID = id
		s.activities[a.ID] = a
	}
	return nil
}

func (s *state) GetProposal(_ context.Context, id estimate.ProposalID) (*estimate.Proposal, error) {
	p, ok := s.proposals[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *state) ListProposals(_ context.Context) ([]estimate.Proposal, error) {
	out := make([]estimate.Proposal, 0, len(s.proposals))
	for _, p := range s.proposals {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *state) ListWBS(_ context.Context, proposalID estimate.ProposalID) ([]estimate.WBS, error) {
	var out []estimate.WBS
	for _, w := range s.wbs {
		if w.ProposalID == proposalID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) ListPhases(_ context.Context, proposalID estimate.ProposalID) ([]estimate.Phase, error) {
	var out []estimate.Phase
	for _, p := range s.phases {
		if p.ProposalID == proposalID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) ListActivities(_ context.Context, f progress.ActivityFilter) ([]estimate.Activity, error) {
	var out []estimate.Activity
	for _, a := range s.activities {
		if f.ProposalID != "" && a.ProposalID != f.ProposalID {
			continue
		}
		if f.WBSID != "" && a.WBSID != f.WBSID {
			continue
		}
		if f.PhaseID != "" && a.PhaseID != f.PhaseID {
			continue
		}
		if len(f.Types) > 0 && !containsType(f.Types, a.Type) {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func containsType(types []estimate.ActivityType, t estimate.ActivityType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func (s *state) GetActivities(_ context.Context, ids []estimate.ActivityID) (map[estimate.ActivityID]estimate.Activity, error) {
	out := make(map[estimate.ActivityID]estimate.Activity, len(ids))
	for _, id := range ids {
		if a, ok := s.activities[id]; ok {
			out[id] = a
		}
	}
	return out, nil
}

// =============================================================================
// ENTRY TABLE
// =============================================================================

func (s *state) ListEntries(_ context.Context, f progress.EntryFilter) ([]progress.ProgressEntry, error) {
	var out []progress.ProgressEntry
	for _, e := range s.entries {
		if f.ProjectID != "" && e.ProjectID != f.ProjectID {
			continue
		}
		if f.WBSID != "" && e.WBSID != f.WBSID {
			continue
		}
		if f.PhaseID != "" && e.PhaseID != f.PhaseID {
			continue
		}
		if f.ActivityID != "" && e.ActivityID != f.ActivityID {
			continue
		}
		if !f.Date.IsZero() && !e.EntryDate.Equal(f.Date) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].EntryDate.Equal(out[j].EntryDate) {
			return out[i].EntryDate.Before(out[j].EntryDate)
		}
		return out[i].ActivityID < out[j].ActivityID
	})
	return out, nil
}

func (s *state) FindEntry(_ context.Context, key progress.EntryKey) (*progress.ProgressEntry, error) {
	id, ok := s.byKey[keyOf(key)]
	if !ok {
		return nil, nil
	}
	e := s.entries[id]
	return &e, nil
}

func (s *state) GetEntry(_ context.Context, id progress.EntryID) (*progress.ProgressEntry, error) {
	e, ok := s.entries[id]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *state) InsertEntry(_ context.Context, e progress.ProgressEntry) error {
	k := keyOf(e.Key())
	if _, exists := s.byKey[k]; exists {
		return progress.ErrDuplicateEntry
	}
	s.entries[e.ID] = e
	s.byKey[k] = e.ID
	return nil
}

func (s *state) UpdateEntry(_ context.Context, id progress.EntryID, quantity decimal.Decimal, notes string) error {
	e, ok := s.entries[id]
	if !ok {
		return &progress.NotFoundError{Kind: "entry", ID: string(id)}
	}
	e.QuantityCompleted = quantity
	e.Notes = notes
	e.UpdatedAt = time.Now().UTC()
	s.entries[id] = e
	return nil
}

func (s *state) DeleteEntry(_ context.Context, id progress.EntryID) error {
	e, ok := s.entries[id]
	if !ok {
		return nil
	}
	delete(s.byKey, keyOf(e.Key()))
	delete(s.entries, id)
	return nil
}

func (s *state) DeleteProjectEntries(_ context.Context, projectID progress.ProjectID) (int64, error) {
	var n int64
	for id, e := range s.entries {
		if e.ProjectID == projectID {
			delete(s.byKey, keyOf(e.Key()))
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

// =============================================================================
// PROJECT TABLE
// =============================================================================

func (s *state) GetProject(_ context.Context, id progress.ProjectID) (*progress.Project, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *state) GetProjectByProposal(_ context.Context, proposalID estimate.ProposalID) (*progress.Project, error) {
	for _, p := range s.projects {
		if p.ProposalID == proposalID {
			return &p, nil
		}
	}
	return nil, nil
}

func (s *state) ListProjects(_ context.Context) ([]progress.Project, error) {
	out := make([]progress.Project, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *state) InsertProject(_ context.Context, p progress.Project) error {
	for _, existing := range s.projects {
		if existing.ProposalID == p.ProposalID {
			return &progress.ConflictError{ProposalID: string(p.ProposalID), ExistingProjectID: existing.ID}
		}
	}
	s.projects[p.ID] = p
	return nil
}

func (s *state) UpdateProject(_ context.Context, p progress.Project) error {
	if _, ok := s.projects[p.ID]; !ok {
		return &progress.NotFoundError{Kind: "project", ID: string(p.ID)}
	}
	s.projects[p.ID] = p
	return nil
}

func (s *state) DeleteProject(_ context.Context, id progress.ProjectID) error {
	delete(s.projects, id)
	return nil
}

func (s *state) SetLastEntryDate(_ context.Context, id progress.ProjectID, date progress.Date) error {
	p, ok := s.projects[id]
	if !ok {
		return &progress.NotFoundError{Kind: "project", ID: string(id)}
	}
	p.LastEntryDate = date
	s.projects[id] = p
	return nil
}
