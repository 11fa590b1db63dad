// Package store persists sync engine state in an embedded SQLite database:
// OAuth credentials (one row per user), per-calendar sync cursors, and the
// local-id to remote-id calendar mapping with selection flags.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// Embed migration SQL files for schema versioning.
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	walJournalSizeLimit = 67108864 // 64 MiB WAL journal size limit
	schemaVersion       = 1        // current expected schema version
)

// Credential is one stored OAuth credential row.
// Expiry always reflects the true expiry of AccessToken after any refresh.
type Credential struct {
	UserID       string
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	UpdatedAt    time.Time
}

// CalendarMapping maps a local calendar id to its remote counterpart.
type CalendarMapping struct {
	LocalID  string
	RemoteID string
	Summary  string
	Selected bool
}

// Store implements durable state on an embedded SQLite database with WAL
// mode. Use ":memory:" as the path for tests.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	credStmts     credStatements
	cursorStmts   cursorStatements
	calendarStmts calendarStatements
}

type credStatements struct {
	get, upsert, delete *sql.Stmt
}

type cursorStatements struct {
	get, upsert, delete, deleteAll *sql.Stmt
}

type calendarStatements struct {
	resolve, upsert, listSelected, deleteAll *sql.Stmt
}

// New opens the database at dbPath, applies migrations, and prepares all
// repeated statements.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening state database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	logger.Info("state database ready", "path", dbPath)

	return s, nil
}

// Close releases prepared statements and the database connection.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.credStmts.get, s.credStmts.upsert, s.credStmts.delete,
		s.cursorStmts.get, s.cursorStmts.upsert, s.cursorStmts.delete, s.cursorStmts.deleteAll,
		s.calendarStmts.resolve, s.calendarStmts.upsert, s.calendarStmts.listSelected, s.calendarStmts.deleteAll,
	}

	for _, st := range stmts {
		if st != nil {
			st.Close()
		}
	}

	return s.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// runMigrations applies embedded SQL migrations in order. Uses a simple
// PRAGMA user_version runner instead of a migration library to avoid
// driver compatibility issues with the pure-Go SQLite driver.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	var currentVersion int

	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&currentVersion); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	logger.Debug("current schema version", "version", currentVersion)

	if currentVersion >= schemaVersion {
		logger.Debug("schema up to date", "version", currentVersion)
		return nil
	}

	for v := currentVersion + 1; v <= schemaVersion; v++ {
		if err := applyMigration(ctx, db, logger, v); err != nil {
			return err
		}
	}

	return nil
}

// applyMigration runs a single numbered up-migration inside a transaction.
func applyMigration(ctx context.Context, db *sql.DB, logger *slog.Logger, version int) error {
	filename := fmt.Sprintf("migrations/%06d_initial_schema.up.sql", version)

	migrationSQL, err := fs.ReadFile(migrationsFS, filename)
	if err != nil {
		return fmt.Errorf("read migration %d: %w", version, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx %d: %w", version, err)
	}

	if _, execErr := tx.ExecContext(ctx, string(migrationSQL)); execErr != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("exec migration %d: %w (rollback: %v)", version, execErr, rollbackErr)
	}

	// Stamp the new version. PRAGMA cannot be parameterized.
	versionSQL := fmt.Sprintf("PRAGMA user_version = %d", version)
	if _, execErr := tx.ExecContext(ctx, versionSQL); execErr != nil {
		rollbackErr := tx.Rollback()
		return fmt.Errorf("stamp version %d: %w (rollback: %v)", version, execErr, rollbackErr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", version, err)
	}

	logger.Info("applied migration", "version", version, "file", filepath.Base(filename))

	return nil
}

// --- SQL query constants ---

const (
	sqlGetCredential = `SELECT user_id, access_token, refresh_token, expiry_date, updated_at
		FROM credentials WHERE user_id = ?`

	sqlUpsertCredential = `INSERT INTO credentials (user_id, access_token, refresh_token, expiry_date, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token  = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expiry_date   = excluded.expiry_date,
			updated_at    = excluded.updated_at`

	sqlDeleteCredential = `DELETE FROM credentials WHERE user_id = ?`

	sqlGetCursor = `SELECT sync_token FROM sync_cursors WHERE user_id = ? AND calendar_id = ?`

	sqlUpsertCursor = `INSERT INTO sync_cursors (user_id, calendar_id, sync_token, time_min, time_max, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, calendar_id) DO UPDATE SET
			sync_token = excluded.sync_token,
			time_min   = excluded.time_min,
			time_max   = excluded.time_max,
			updated_at = excluded.updated_at`

	sqlDeleteCursor = `DELETE FROM sync_cursors WHERE user_id = ? AND calendar_id = ?`

	sqlDeleteAllCursors = `DELETE FROM sync_cursors WHERE user_id = ?`

	sqlResolveCalendar = `SELECT remote_id FROM calendars WHERE user_id = ? AND local_id = ?`

	sqlUpsertCalendar = `INSERT INTO calendars (user_id, local_id, remote_id, summary, selected)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, local_id) DO UPDATE SET
			remote_id = excluded.remote_id,
			summary   = excluded.summary,
			selected  = excluded.selected`

	sqlListSelectedCalendars = `SELECT local_id, remote_id, summary, selected
		FROM calendars WHERE user_id = ? AND selected = 1 ORDER BY local_id`

	sqlDeleteAllCalendars = `DELETE FROM calendars WHERE user_id = ?`
)

// prepareAllStatements prepares every repeated query up front so runtime
// calls never pay parse cost and SQL typos fail at startup.
func (s *Store) prepareAllStatements(ctx context.Context) error {
	prep := func(dst **sql.Stmt, query string) error {
		stmt, err := s.db.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("preparing %q: %w", query, err)
		}

		*dst = stmt

		return nil
	}

	for _, p := range []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.credStmts.get, sqlGetCredential},
		{&s.credStmts.upsert, sqlUpsertCredential},
		{&s.credStmts.delete, sqlDeleteCredential},
		{&s.cursorStmts.get, sqlGetCursor},
		{&s.cursorStmts.upsert, sqlUpsertCursor},
		{&s.cursorStmts.delete, sqlDeleteCursor},
		{&s.cursorStmts.deleteAll, sqlDeleteAllCursors},
		{&s.calendarStmts.resolve, sqlResolveCalendar},
		{&s.calendarStmts.upsert, sqlUpsertCalendar},
		{&s.calendarStmts.listSelected, sqlListSelectedCalendars},
		{&s.calendarStmts.deleteAll, sqlDeleteAllCalendars},
	} {
		if err := prep(p.dst, p.query); err != nil {
			return err
		}
	}

	return nil
}

// --- Credentials ---

// Credential returns the stored credential for a user, or nil if none
// exists ("not connected").
func (s *Store) Credential(ctx context.Context, userID string) (*Credential, error) {
	var (
		c            Credential
		expiryMillis int64
		updatedAt    string
	)

	err := s.credStmts.get.QueryRowContext(ctx, userID).Scan(
		&c.UserID, &c.AccessToken, &c.RefreshToken, &expiryMillis, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not connected"
	}

	if err != nil {
		return nil, fmt.Errorf("store: loading credential: %w", err)
	}

	c.Expiry = time.UnixMilli(expiryMillis)

	if t, parseErr := time.Parse(time.RFC3339, updatedAt); parseErr == nil {
		c.UpdatedAt = t
	}

	return &c, nil
}

// SaveCredential inserts or replaces a user's credential row.
func (s *Store) SaveCredential(ctx context.Context, c *Credential) error {
	_, err := s.credStmts.upsert.ExecContext(ctx,
		c.UserID, c.AccessToken, c.RefreshToken,
		c.Expiry.UnixMilli(), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: saving credential: %w", err)
	}

	return nil
}

// DeleteCredential removes a user's credential row. Removing a missing row
// is not an error.
func (s *Store) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := s.credStmts.delete.ExecContext(ctx, userID); err != nil {
		return fmt.Errorf("store: deleting credential: %w", err)
	}

	return nil
}

// --- Sync cursors ---

// Cursor returns the stored sync token for a calendar, or "" when none
// exists (initial sync required).
func (s *Store) Cursor(ctx context.Context, userID, calendarID string) (string, error) {
	var token string

	err := s.cursorStmts.get.QueryRowContext(ctx, userID, calendarID).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: loading cursor: %w", err)
	}

	return token, nil
}

// SaveCursor stores the sync token for a calendar together with the time
// window it was derived from.
func (s *Store) SaveCursor(ctx context.Context, userID, calendarID, token, timeMin, timeMax string) error {
	_, err := s.cursorStmts.upsert.ExecContext(ctx,
		userID, calendarID, token, timeMin, timeMax,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("store: saving cursor: %w", err)
	}

	return nil
}

// DeleteCursor discards a calendar's sync token, forcing the next sync to
// be a full window fetch.
func (s *Store) DeleteCursor(ctx context.Context, userID, calendarID string) error {
	if _, err := s.cursorStmts.delete.ExecContext(ctx, userID, calendarID); err != nil {
		return fmt.Errorf("store: deleting cursor: %w", err)
	}

	return nil
}

// --- Calendar mappings ---

// ResolveCalendarID maps a local calendar id to its remote id. Returns ""
// when the mapping is unknown; callers default to the primary calendar.
func (s *Store) ResolveCalendarID(ctx context.Context, userID, localID string) (string, error) {
	var remoteID string

	err := s.calendarStmts.resolve.QueryRowContext(ctx, userID, localID).Scan(&remoteID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("store: resolving calendar id: %w", err)
	}

	return remoteID, nil
}

// UpsertCalendar inserts or updates one calendar mapping.
func (s *Store) UpsertCalendar(ctx context.Context, userID string, m CalendarMapping) error {
	selected := 0
	if m.Selected {
		selected = 1
	}

	_, err := s.calendarStmts.upsert.ExecContext(ctx, userID, m.LocalID, m.RemoteID, m.Summary, selected)
	if err != nil {
		return fmt.Errorf("store: upserting calendar: %w", err)
	}

	return nil
}

// SelectedCalendars lists the calendars the user has enabled for sync.
func (s *Store) SelectedCalendars(ctx context.Context, userID string) ([]CalendarMapping, error) {
	rows, err := s.calendarStmts.listSelected.QueryContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("store: listing calendars: %w", err)
	}
	defer rows.Close()

	var out []CalendarMapping

	for rows.Next() {
		var (
			m        CalendarMapping
			selected int
		)

		if err := rows.Scan(&m.LocalID, &m.RemoteID, &m.Summary, &selected); err != nil {
			return nil, fmt.Errorf("store: scanning calendar row: %w", err)
		}

		m.Selected = selected == 1
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating calendar rows: %w", err)
	}

	return out, nil
}

// ClearUser removes all state owned by a user: credential, cursors, and
// calendar mappings. Called on logout.
func (s *Store) ClearUser(ctx context.Context, userID string) error {
	if err := s.DeleteCredential(ctx, userID); err != nil {
		return err
	}

	if _, err := s.cursorStmts.deleteAll.ExecContext(ctx, userID); err != nil {
		return fmt.Errorf("store: clearing cursors: %w", err)
	}

	if _, err := s.calendarStmts.deleteAll.ExecContext(ctx, userID); err != nil {
		return fmt.Errorf("store: clearing calendars: %w", err)
	}

	s.logger.Info("cleared user state", "user_id", userID)

	return nil
}
