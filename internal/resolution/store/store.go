// Package store persists resolved persons to SQL databases, alongside the
// spreadsheet output.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // pure go sqlite driver

	"innsearch/internal/person"
	"innsearch/pkg/requestcontext"
)

// Dialect selects the driver and placeholder style.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const createTable = `CREATE TABLE IF NOT EXISTS resolutions (
	run_id          TEXT NOT NULL,
	person_id       TEXT NOT NULL,
	last_name       TEXT NOT NULL,
	first_name      TEXT NOT NULL,
	patronymic      TEXT NOT NULL,
	birth_date      TEXT NOT NULL,
	identifier      TEXT NOT NULL,
	status          TEXT NOT NULL,
	resolved_at     TIMESTAMP NOT NULL
)`

const insertRow = `INSERT INTO resolutions
	(run_id, person_id, last_name, first_name, patronymic, birth_date, identifier, status, resolved_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

// SQLSink appends one row per committed person.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	insert  string
}

// Open connects using dsn (a file path for sqlite, a URL for postgres) and
// creates the table if needed.
func Open(ctx context.Context, dialect Dialect, dsn string) (*SQLSink, error) {
	var driver string
	switch dialect {
	case DialectSQLite:
		driver = "sqlite"
	case DialectPostgres:
		driver = "pgx"
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dialect, err)
	}
	sink, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

// New wraps an existing handle.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSink, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	if _, err := db.ExecContext(ctx, createTable); err != nil {
		return nil, fmt.Errorf("create resolutions table: %w", err)
	}
	insert := insertRow
	if dialect == DialectPostgres {
		insert = numberedPlaceholders(insertRow)
	}
	return &SQLSink{db: db, dialect: dialect, insert: insert}, nil
}

func (s *SQLSink) Commit(ctx context.Context, p person.Person) error {
	_, err := s.db.ExecContext(ctx, s.insert,
		requestcontext.RunID(ctx),
		p.ID(),
		p.LastName,
		p.FirstName,
		p.Patronymic,
		p.BirthDate,
		p.Identifier,
		string(p.Status),
		requestcontext.Now(ctx).UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert resolution: %w", err)
	}
	return nil
}

// Row is a stored resolution, as read back by Rows.
type Row struct {
	RunID      string
	PersonID   string
	Identifier string
	Status     person.Status
}

// Rows lists the stored resolutions of one run.
func (s *SQLSink) Rows(ctx context.Context, runID string) ([]Row, error) {
	query := `SELECT run_id, person_id, identifier, status FROM resolutions WHERE run_id = ? ORDER BY person_id`
	if s.dialect == DialectPostgres {
		query = numberedPlaceholders(query)
	}
	rows, err := s.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("select resolutions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Row
	for rows.Next() {
		var r Row
		var status string
		if err := rows.Scan(&r.RunID, &r.PersonID, &r.Identifier, &status); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		r.Status = person.Status(status)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error {
	return s.db.Close()
}

// numberedPlaceholders rewrites ? placeholders to $1, $2, ...
func numberedPlaceholders(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
