/*
Package sqlite provides a SQLite-backed implementation of progress.TxStore.

KEY TABLES:
  proposals, wbs, phases, activities: the imported estimate hierarchy
  projects:          tracking projects, one per proposal (UNIQUE proposal_id)
  progress_entries:  completed quantities, one per (project, activity, date)

INDEXES:
  - idx_entries_key:        enforces the one-row-per-key invariant
  - idx_entries_project_wbs / _phase: scoped rollups on the denormalized
                            ancestry columns, no join with activities
  - idx_entries_project_date: entry form and "entries for date" reads

DECIMALS:
  Quantities and labor constants are stored as TEXT in decimal.Decimal's
  canonical string form so no float rounding ever touches them.

CONCURRENCY:
  The pool is capped at one connection. SQLite serializes writers anyway,
  and ":memory:" databases exist per connection, so a single connection
  keeps tests and production on the same semantics.

USAGE:
  store, err := sqlite.New("./data/momentum.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := progress.NewService(store, logger)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/truss/momentum/estimate"
	"github.com/truss/momentum/progress"
)

// Store implements progress.TxStore on SQLite.
type Store struct {
	conn
	db *sql.DB
}

var _ progress.TxStore = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn carries every store method over a querier, so the same code runs
// inside and outside a transaction.
type conn struct {
	q querier
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{conn: conn{q: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS proposals (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		job_number TEXT NOT NULL DEFAULT '',
		dataset_version TEXT NOT NULL DEFAULT '',
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS wbs (
		id TEXT PRIMARY KEY,
		proposal_id TEXT NOT NULL REFERENCES proposals(id) ON DELETE CASCADE,
		name TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_wbs_proposal ON wbs(proposal_id, sort_order);

	CREATE TABLE IF NOT EXISTS phases (
		id TEXT PRIMARY KEY,
		proposal_id TEXT NOT NULL REFERENCES proposals(id) ON DELETE CASCADE,
		wbs_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		sort_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_phases_proposal ON phases(proposal_id, sort_order);

	CREATE TABLE IF NOT EXISTS activities (
		id TEXT PRIMARY KEY,
		proposal_id TEXT NOT NULL REFERENCES proposals(id) ON DELETE CASCADE,
		wbs_id TEXT NOT NULL,
		phase_id TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		type TEXT NOT NULL,
		quantity TEXT NOT NULL,
		unit TEXT NOT NULL DEFAULT '',
		craft_constant TEXT,
		welder_constant TEXT,
		sort_order INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_activities_proposal ON activities(proposal_id, type);
	CREATE INDEX IF NOT EXISTS idx_activities_wbs ON activities(wbs_id);
	CREATE INDEX IF NOT EXISTS idx_activities_phase ON activities(phase_id);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		proposal_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		owner TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		job_number TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		start_date TEXT,
		end_date TEXT,
		last_entry_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS progress_entries (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
		activity_id TEXT NOT NULL,
		wbs_id TEXT NOT NULL,
		phase_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		quantity_completed TEXT NOT NULL,
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- One live row per (project, activity, date)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_entries_key
		ON progress_entries(project_id, activity_id, entry_date);

	CREATE INDEX IF NOT EXISTS idx_entries_project_wbs
		ON progress_entries(project_id, wbs_id);
	CREATE INDEX IF NOT EXISTS idx_entries_project_phase
		ON progress_entries(project_id, phase_id);
	CREATE INDEX IF NOT EXISTS idx_entries_project_date
		ON progress_entries(project_id, entry_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (progress.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(progress.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&conn{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// Reset deletes all data. Used by demo scenarios.
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{"progress_entries", "projects", "activities", "phases", "wbs", "proposals"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// ESTIMATE STORE
// =============================================================================

// SaveEstimate upserts the proposal and replaces its hierarchy. Must run
// inside WithTx to be atomic; Store.SaveEstimate wraps it for callers.
func (c *conn) SaveEstimate(ctx context.Context, est estimate.Estimate) error {
	id := est.Proposal.ID
	p := est.Proposal

	_, err := c.q.ExecContext(ctx, `
		INSERT INTO proposals (id, name, owner, location, job_number, dataset_version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			owner = excluded.owner,
			location = excluded.location,
			job_number = excluded.job_number,
			dataset_version = excluded.dataset_version,
			updated_at = excluded.updated_at
	`, p.ID, p.Name, p.Owner, p.Location, p.JobNumber, p.DatasetVersion, now())
	if err != nil {
		return fmt.Errorf("failed to save proposal: %w", err)
	}

	for _, table := range []string{"activities", "phases", "wbs"} {
		if _, err := c.q.ExecContext(ctx, "DELETE FROM "+table+" WHERE proposal_id = ?", id); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, w := range est.WBS {
		if _, err := c.q.ExecContext(ctx,
			"INSERT INTO wbs (id, proposal_id, name, sort_order) VALUES (?, ?, ?, ?)",
			w.ID, id, w.Name, w.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to insert wbs %s: %w", w.ID, err)
		}
	}

	for _, ph := range est.Phases {
		if _, err := c.q.ExecContext(ctx,
			"INSERT INTO phases (id, proposal_id, wbs_id, name, sort_order) VALUES (?, ?, ?, ?, ?)",
			ph.ID, id, ph.WBSID, ph.Name, ph.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to insert phase %s: %w", ph.ID, err)
		}
	}

	for _, a := range est.Activities {
		var craft, welder sql.NullString
		if a.Labor != nil {
			craft = sql.NullString{String: a.Labor.CraftConstant.String(), Valid: true}
			welder = sql.NullString{String: a.Labor.WelderConstant.String(), Valid: true}
		}
		if _, err := c.q.ExecContext(ctx, `
			INSERT INTO activities
			(id, proposal_id, wbs_id, phase_id, description, type, quantity, unit, craft_constant, welder_constant, sort_order)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, a.ID, id, a.WBSID, a.PhaseID, a.Description, a.Type, a.Quantity.String(), a.Unit, craft, welder, a.SortOrder,
		); err != nil {
			return fmt.Errorf("failed to insert activity %s: %w", a.ID, err)
		}
	}
	return nil
}

// SaveEstimate replaces a proposal's hierarchy atomically.
func (s *Store) SaveEstimate(ctx context.Context, est estimate.Estimate) error {
	return s.WithTx(ctx, func(st progress.Store) error {
		return st.SaveEstimate(ctx, est)
	})
}

func (c *conn) GetProposal(ctx context.Context, id estimate.ProposalID) (*estimate.Proposal, error) {
	var p estimate.Proposal
	err := c.q.QueryRowContext(ctx,
		"SELECT id, name, owner, location, job_number, dataset_version FROM proposals WHERE id = ?",
		id,
	).Scan(&p.ID, &p.Name, &p.Owner, &p.Location, &p.JobNumber, &p.DatasetVersion)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *conn) ListProposals(ctx context.Context) ([]estimate.Proposal, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, name, owner, location, job_number, dataset_version FROM proposals ORDER BY name, id",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []estimate.Proposal
	for rows.Next() {
		var p estimate.Proposal
		if err := rows.Scan(&p.ID, &p.Name, &p.Owner, &p.Location, &p.JobNumber, &p.DatasetVersion); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *conn) ListWBS(ctx context.Context, proposalID estimate.ProposalID) ([]estimate.WBS, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, proposal_id, name, sort_order FROM wbs WHERE proposal_id = ? ORDER BY sort_order, id",
		proposalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []estimate.WBS
	for rows.Next() {
		var w estimate.WBS
		if err := rows.Scan(&w.ID, &w.ProposalID, &w.Name, &w.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func (c *conn) ListPhases(ctx context.Context, proposalID estimate.ProposalID) ([]estimate.Phase, error) {
	rows, err := c.q.QueryContext(ctx,
		"SELECT id, proposal_id, wbs_id, name, sort_order FROM phases WHERE proposal_id = ? ORDER BY sort_order, id",
		proposalID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []estimate.Phase
	for rows.Next() {
		var p estimate.Phase
		if err := rows.Scan(&p.ID, &p.ProposalID, &p.WBSID, &p.Name, &p.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const activityColumns = `id, proposal_id, wbs_id, phase_id, description, type, quantity, unit,
	craft_constant, welder_constant, sort_order`

func (c *conn) ListActivities(ctx context.Context, f progress.ActivityFilter) ([]estimate.Activity, error) {
	var (
		where []string
		args  []any
	)
	if f.ProposalID != "" {
		where = append(where, "proposal_id = ?")
		args = append(args, f.ProposalID)
	}
	if f.WBSID != "" {
		where = append(where, "wbs_id = ?")
		args = append(args, f.WBSID)
	}
	if f.PhaseID != "" {
		where = append(where, "phase_id = ?")
		args = append(args, f.PhaseID)
	}
	if len(f.Types) > 0 {
		where = append(where, "type IN ("+placeholders(len(f.Types))+")")
		for _, t := range f.Types {
			args = append(args, string(t))
		}
	}

	query := "SELECT " + activityColumns + " FROM activities"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY sort_order, id"

	return c.queryActivities(ctx, query, args...)
}

func (c *conn) GetActivities(ctx context.Context, ids []estimate.ActivityID) (map[estimate.ActivityID]estimate.Activity, error) {
	out := make(map[estimate.ActivityID]estimate.Activity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = string(id)
	}
	acts, err := c.queryActivities(ctx,
		"SELECT "+activityColumns+" FROM activities WHERE id IN ("+placeholders(len(ids))+")",
		args...,
	)
	if err != nil {
		return nil, err
	}
	for _, a := range acts {
		out[a.ID] = a
	}
	return out, nil
}

func (c *conn) queryActivities(ctx context.Context, query string, args ...any) ([]estimate.Activity, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var out []estimate.Activity
	for rows.Next() {
		a, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanActivity(rows *sql.Rows) (estimate.Activity, error) {
	var (
		a        estimate.Activity
		typ      string
		quantity string
		craft    sql.NullString
		welder   sql.NullString
	)
	err := rows.Scan(&a.ID, &a.ProposalID, &a.WBSID, &a.PhaseID, &a.Description, &typ,
		&quantity, &a.Unit, &craft, &welder, &a.SortOrder)
	if err != nil {
		return a, fmt.Errorf("failed to scan activity: %w", err)
	}

	a.Type = estimate.ActivityType(typ)
	if a.Quantity, err = parseDecimal(quantity); err != nil {
		return a, fmt.Errorf("activity %s quantity: %w", a.ID, err)
	}
	if craft.Valid || welder.Valid {
		labor := &estimate.Labor{CraftConstant: decimal.Zero, WelderConstant: decimal.Zero}
		if craft.Valid {
			if labor.CraftConstant, err = parseDecimal(craft.String); err != nil {
				return a, fmt.Errorf("activity %s craft constant: %w", a.ID, err)
			}
		}
		if welder.Valid {
			if labor.WelderConstant, err = parseDecimal(welder.String); err != nil {
				return a, fmt.Errorf("activity %s welder constant: %w", a.ID, err)
			}
		}
		a.Labor = labor
	}
	return a, nil
}

// =============================================================================
// ENTRY STORE
// =============================================================================

const entryColumns = `id, project_id, activity_id, wbs_id, phase_id, entry_date,
	quantity_completed, notes, created_at, updated_at`

func (c *conn) ListEntries(ctx context.Context, f progress.EntryFilter) ([]progress.ProgressEntry, error) {
	var (
		where []string
		args  []any
	)
	if f.ProjectID != "" {
		where = append(where, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.WBSID != "" {
		where = append(where, "wbs_id = ?")
		args = append(args, f.WBSID)
	}
	if f.PhaseID != "" {
		where = append(where, "phase_id = ?")
		args = append(args, f.PhaseID)
	}
	if f.ActivityID != "" {
		where = append(where, "activity_id = ?")
		args = append(args, f.ActivityID)
	}
	if !f.Date.IsZero() {
		where = append(where, "entry_date = ?")
		args = append(args, f.Date.String())
	}

	query := "SELECT " + entryColumns + " FROM progress_entries"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY entry_date, activity_id"

	return c.queryEntries(ctx, query, args...)
}

func (c *conn) FindEntry(ctx context.Context, key progress.EntryKey) (*progress.ProgressEntry, error) {
	entries, err := c.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM progress_entries WHERE project_id = ? AND activity_id = ? AND entry_date = ?",
		key.ProjectID, key.ActivityID, key.EntryDate.String(),
	)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (c *conn) GetEntry(ctx context.Context, id progress.EntryID) (*progress.ProgressEntry, error) {
	entries, err := c.queryEntries(ctx,
		"SELECT "+entryColumns+" FROM progress_entries WHERE id = ?", id,
	)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (c *conn) InsertEntry(ctx context.Context, e progress.ProgressEntry) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO progress_entries
		(id, project_id, activity_id, wbs_id, phase_id, entry_date, quantity_completed, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.ProjectID, e.ActivityID, e.WBSID, e.PhaseID, e.EntryDate.String(),
		e.QuantityCompleted.String(), e.Notes, formatTime(e.CreatedAt), formatTime(e.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "progress_entries") {
			return progress.ErrDuplicateEntry
		}
		return fmt.Errorf("failed to insert progress entry: %w", err)
	}
	return nil
}

func (c *conn) UpdateEntry(ctx context.Context, id progress.EntryID, quantity decimal.Decimal, notes string) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE progress_entries SET quantity_completed = ?, notes = ?, updated_at = ? WHERE id = ?",
		quantity.String(), notes, now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update progress entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &progress.NotFoundError{Kind: "entry", ID: string(id)}
	}
	return nil
}

func (c *conn) DeleteEntry(ctx context.Context, id progress.EntryID) error {
	_, err := c.q.ExecContext(ctx, "DELETE FROM progress_entries WHERE id = ?", id)
	return err
}

func (c *conn) DeleteProjectEntries(ctx context.Context, projectID progress.ProjectID) (int64, error) {
	res, err := c.q.ExecContext(ctx, "DELETE FROM progress_entries WHERE project_id = ?", projectID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (c *conn) queryEntries(ctx context.Context, query string, args ...any) ([]progress.ProgressEntry, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress entries: %w", err)
	}
	defer rows.Close()

	var out []progress.ProgressEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(rows *sql.Rows) (progress.ProgressEntry, error) {
	var (
		e         progress.ProgressEntry
		entryDate string
		quantity  string
		createdAt string
		updatedAt string
	)
	err := rows.Scan(&e.ID, &e.ProjectID, &e.ActivityID, &e.WBSID, &e.PhaseID,
		&entryDate, &quantity, &e.Notes, &createdAt, &updatedAt)
	if err != nil {
		return e, fmt.Errorf("failed to scan progress entry: %w", err)
	}

	if e.EntryDate, err = progress.ParseDate(entryDate); err != nil {
		return e, err
	}
	if e.QuantityCompleted, err = parseDecimal(quantity); err != nil {
		return e, fmt.Errorf("entry %s quantity: %w", e.ID, err)
	}
	e.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	e.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return e, nil
}

// =============================================================================
// PROJECT STORE
// =============================================================================

const projectColumns = `id, proposal_id, name, owner, location, job_number, status,
	start_date, end_date, last_entry_date, created_at, updated_at`

func (c *conn) GetProject(ctx context.Context, id progress.ProjectID) (*progress.Project, error) {
	projects, err := c.queryProjects(ctx, "SELECT "+projectColumns+" FROM projects WHERE id = ?", id)
	if err != nil || len(projects) == 0 {
		return nil, err
	}
	return &projects[0], nil
}

func (c *conn) GetProjectByProposal(ctx context.Context, proposalID estimate.ProposalID) (*progress.Project, error) {
	projects, err := c.queryProjects(ctx, "SELECT "+projectColumns+" FROM projects WHERE proposal_id = ?", proposalID)
	if err != nil || len(projects) == 0 {
		return nil, err
	}
	return &projects[0], nil
}

func (c *conn) ListProjects(ctx context.Context) ([]progress.Project, error) {
	return c.queryProjects(ctx, "SELECT "+projectColumns+" FROM projects ORDER BY name, id")
}

func (c *conn) InsertProject(ctx context.Context, p progress.Project) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO projects
		(id, proposal_id, name, owner, location, job_number, status, start_date, end_date, last_entry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.ProposalID, p.Name, p.Owner, p.Location, p.JobNumber, p.Status,
		nullDate(p.StartDate), nullDate(p.EndDate), nullDate(p.LastEntryDate),
		formatTime(p.CreatedAt), formatTime(p.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err, "projects.proposal_id") {
			conflict := &progress.ConflictError{ProposalID: string(p.ProposalID)}
			if existing, lookupErr := c.GetProjectByProposal(ctx, p.ProposalID); lookupErr == nil && existing != nil {
				conflict.ExistingProjectID = existing.ID
			}
			return conflict
		}
		return fmt.Errorf("failed to insert project: %w", err)
	}
	return nil
}

func (c *conn) UpdateProject(ctx context.Context, p progress.Project) error {
	res, err := c.q.ExecContext(ctx, `
		UPDATE projects SET
			name = ?, owner = ?, location = ?, job_number = ?, status = ?,
			start_date = ?, end_date = ?, last_entry_date = ?, updated_at = ?
		WHERE id = ?
	`, p.Name, p.Owner, p.Location, p.JobNumber, p.Status,
		nullDate(p.StartDate), nullDate(p.EndDate), nullDate(p.LastEntryDate),
		formatTime(p.UpdatedAt), p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &progress.NotFoundError{Kind: "project", ID: string(p.ID)}
	}
	return nil
}

func (c *conn) DeleteProject(ctx context.Context, id progress.ProjectID) error {
	_, err := c.q.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	return err
}

func (c *conn) SetLastEntryDate(ctx context.Context, id progress.ProjectID, date progress.Date) error {
	res, err := c.q.ExecContext(ctx,
		"UPDATE projects SET last_entry_date = ?, updated_at = ? WHERE id = ?",
		date.String(), now(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &progress.NotFoundError{Kind: "project", ID: string(id)}
	}
	return nil
}

func (c *conn) queryProjects(ctx context.Context, query string, args ...any) ([]progress.Project, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	var out []progress.Project
	for rows.Next() {
		var (
			p                    progress.Project
			start, end, last     sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&p.ID, &p.ProposalID, &p.Name, &p.Owner, &p.Location, &p.JobNumber,
			&p.Status, &start, &end, &last, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		p.StartDate = parseNullDate(start)
		p.EndDate = parseNullDate(end)
		p.LastEntryDate = parseNullDate(last)
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return now()
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullDate(d progress.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDate(s sql.NullString) progress.Date {
	if !s.Valid || s.String == "" {
		return progress.Date{}
	}
	d, err := progress.ParseDate(s.String)
	if err != nil {
		return progress.Date{}
	}
	return d
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// isUniqueConstraintError reports a UNIQUE violation whose message names
// the given table or column.
func isUniqueConstraintError(err error, target string) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) || se.ExtendedCode != sqlite3.ErrConstraintUnique {
		return false
	}
	return strings.Contains(se.Error(), target)
}
