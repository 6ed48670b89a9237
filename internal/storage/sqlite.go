package storage

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kalambet/howdo/internal/answers"
	"github.com/kalambet/howdo/internal/document"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Fixed-width so that string order matches time order.
const tsLayout = "2006-01-02T15:04:05.000000Z07:00"

// Store wraps a SQLite database holding users, documents, renditions and the
// background job queue.
type Store struct {
	db *sql.DB
}

var _ Backend = (*Store)(nil)

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "howdo.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Single connection: pragmas stick and ":memory:" stays one database.
	db.SetMaxOpenConns(1)

	pragmas := []struct{ stmt, what string }{
		{"PRAGMA busy_timeout = 5000", "busy timeout"},
		{"PRAGMA journal_mode=WAL", "journal mode"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p.stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("setting %s: %w", p.what, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// migrate applies embedded SQL migrations that are not yet recorded in
// schema_version, each in its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}
		if err := s.applyMigration(version, string(content)); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(content); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(tsLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(tsLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

func constraintCode(err error) int {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code()
	}
	return 0
}

// --- Users ---

// CreateUser inserts u. Emails are stored trimmed and lowercased.
func (s *Store) CreateUser(u User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, email, password_hash, name, company, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, NormalizeEmail(u.Email), u.PasswordHash, u.Name, u.Company, formatTime(u.CreatedAt),
	)
	if constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return ErrDuplicateEmail
	}
	return err
}

func (s *Store) GetUser(id string) (User, error) {
	return s.scanUser(s.db.QueryRow(`
		SELECT id, email, password_hash, name, company, created_at FROM users WHERE id = ?`, id))
}

func (s *Store) GetUserByEmail(email string) (User, error) {
	return s.scanUser(s.db.QueryRow(`
		SELECT id, email, password_hash, name, company, created_at FROM users WHERE email = ?`, NormalizeEmail(email)))
}

func (s *Store) scanUser(row *sql.Row) (User, error) {
	var u User
	var createdAt string
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Company, &createdAt)
	if err == sql.ErrNoRows {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return User{}, err
	}
	return u, nil
}

// --- Documents ---

// CreateDocument inserts d. It returns ErrNotFound when d.UserID does not
// reference an existing user.
func (s *Store) CreateDocument(d Document) error {
	data, err := json.Marshal(d.Answers)
	if err != nil {
		return fmt.Errorf("encoding answers: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO documents (id, user_id, title, type, answers, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Title, string(d.Type), string(data), formatTime(d.CreatedAt),
	)
	if constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return fmt.Errorf("user %s: %w", d.UserID, ErrNotFound)
	}
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	row := s.db.QueryRow(`
		SELECT id, user_id, title, type, answers, created_at FROM documents WHERE id = ?`, id)
	d, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	return d, err
}

// ListDocumentsForUser returns the user's documents, newest first.
func (s *Store) ListDocumentsForUser(userID string) ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, title, type, answers, created_at
		FROM documents WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// DeleteDocument removes the document and, through the foreign key, its
// renditions.
func (s *Store) DeleteDocument(id string) error {
	res, err := s.db.Exec(`DELETE FROM documents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(row scanner) (Document, error) {
	var d Document
	var kind, answersJSON, createdAt string
	if err := row.Scan(&d.ID, &d.UserID, &d.Title, &kind, &answersJSON, &createdAt); err != nil {
		return Document{}, err
	}
	d.Type = document.Kind(kind)
	var a answers.Answers
	if err := json.Unmarshal([]byte(answersJSON), &a); err != nil {
		return Document{}, fmt.Errorf("decoding answers of document %s: %w", d.ID, err)
	}
	d.Answers = a
	var err error
	if d.CreatedAt, err = parseTime(createdAt); err != nil {
		return Document{}, err
	}
	return d, nil
}

// --- Renditions ---

// SaveRendition stores or replaces the cached file for (DocumentID, Format).
func (s *Store) SaveRendition(r Rendition) error {
	_, err := s.db.Exec(`
		INSERT INTO renditions (document_id, format, content_type, data, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(document_id, format) DO UPDATE SET
			content_type = excluded.content_type,
			data = excluded.data,
			created_at = excluded.created_at`,
		r.DocumentID, r.Format, r.ContentType, r.Data, formatTime(r.CreatedAt),
	)
	if constraintCode(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY {
		return fmt.Errorf("document %s: %w", r.DocumentID, ErrNotFound)
	}
	return err
}

func (s *Store) GetRendition(documentID, format string) (Rendition, error) {
	var r Rendition
	var createdAt string
	err := s.db.QueryRow(`
		SELECT document_id, format, content_type, data, created_at
		FROM renditions WHERE document_id = ? AND format = ?`, documentID, format,
	).Scan(&r.DocumentID, &r.Format, &r.ContentType, &r.Data, &createdAt)
	if err == sql.ErrNoRows {
		return Rendition{}, ErrNotFound
	}
	if err != nil {
		return Rendition{}, err
	}
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return Rendition{}, err
	}
	return r, nil
}

// --- Jobs ---

func (s *Store) EnqueueJob(job Job) error {
	now := time.Now().UTC().Format(time.RFC3339)
	runAfter := now
	if !job.RunAfter.IsZero() {
		runAfter = job.RunAfter.UTC().Format(time.RFC3339)
	}
	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	_, err := s.db.Exec(`
		INSERT INTO jobs (id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at)
		VALUES (?, ?, ?, 'pending', 0, ?, ?, ?, ?)`,
		job.ID, job.Type, job.PayloadJSON, maxAttempts, runAfter, now, now,
	)
	return err
}

// ClaimNextJob marks the oldest runnable pending job of the given types as
// running and returns it. It returns nil when nothing is runnable.
func (s *Store) ClaimNextJob(types []string) (*Job, error) {
	if len(types) == 0 {
		return nil, nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	placeholders := strings.Repeat(",?", len(types)-1)
	query := `SELECT id, type, payload_json, status, attempts, max_attempts, run_after, created_at, updated_at, last_error
		FROM jobs
		WHERE status = 'pending' AND run_after <= ? AND type IN (?` + placeholders + `)
		ORDER BY run_after ASC, created_at ASC
		LIMIT 1`

	args := make([]any, 0, len(types)+1)
	args = append(args, now)
	for _, t := range types {
		args = append(args, t)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning claim transaction: %w", err)
	}
	defer tx.Rollback()

	var j Job
	var runAfter, createdAt, updatedAt string
	var lastError sql.NullString
	err = tx.QueryRow(query, args...).Scan(
		&j.ID, &j.Type, &j.PayloadJSON, &j.Status, &j.Attempts, &j.MaxAttempts,
		&runAfter, &createdAt, &updatedAt, &lastError,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("selecting next job: %w", err)
	}

	res, err := tx.Exec(`UPDATE jobs SET status = 'running', updated_at = ? WHERE id = ? AND status = 'pending'`, now, j.ID)
	if err != nil {
		return nil, fmt.Errorf("updating job status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("checking updated job rows: %w", err)
	} else if n != 1 {
		return nil, nil
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing claim: %w", err)
	}

	j.Status = JobRunning
	j.LastError = lastError.String
	if j.RunAfter, err = time.Parse(time.RFC3339, runAfter); err != nil {
		return nil, fmt.Errorf("parsing run_after for job %s: %w", j.ID, err)
	}
	if j.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for job %s: %w", j.ID, err)
	}
	if j.UpdatedAt, err = time.Parse(time.RFC3339, now); err != nil {
		return nil, fmt.Errorf("parsing updated_at for job %s: %w", j.ID, err)
	}
	return &j, nil
}

func (s *Store) CompleteJob(id string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := s.db.Exec(`UPDATE jobs SET status = 'completed', updated_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FailJob records a failed attempt. The job is retried after 2^attempts
// seconds until it reaches max_attempts, then marked failed.
func (s *Store) FailJob(id string, errMsg string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning fail transaction: %w", err)
	}
	defer tx.Rollback()

	var attempts, maxAttempts int
	err = tx.QueryRow(`SELECT attempts, max_attempts FROM jobs WHERE id = ?`, id).Scan(&attempts, &maxAttempts)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	attempts++

	if attempts >= maxAttempts {
		_, err = tx.Exec(`UPDATE jobs SET status = 'failed', attempts = ?, last_error = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Format(time.RFC3339), id)
	} else {
		backoff := time.Duration(math.Pow(2, float64(attempts))) * time.Second
		_, err = tx.Exec(`UPDATE jobs SET status = 'pending', attempts = ?, last_error = ?, run_after = ?, updated_at = ? WHERE id = ?`,
			attempts, errMsg, now.Add(backoff).Format(time.RFC3339), now.Format(time.RFC3339), id)
	}
	if err != nil {
		return err
	}
	return tx.Commit()
}

// NormalizeEmail trims and lowercases an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
