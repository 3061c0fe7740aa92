package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the DDL for the personas table. Run it with
// [PostgresStore.Migrate] or apply it during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS personas (
    id          UUID PRIMARY KEY,
    subject     TEXT NOT NULL,
    def_name    TEXT NOT NULL,
    tags        TEXT[] NOT NULL DEFAULT '{}',
    persona     JSONB NOT NULL DEFAULT '{}',
    document    TEXT NOT NULL DEFAULT '',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_personas_subject ON personas(subject);
CREATE INDEX IF NOT EXISTS idx_personas_created ON personas(created_at DESC);
`

// DB is the database interface used by [PostgresStore]. Both
// *pgxpool.Pool and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL. The resolved persona is
// stored as JSONB and the definition document as text.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("archive: migrate: %w", err)
	}
	return nil
}

// Save implements [Store]. Saving an existing ID replaces the record.
func (s *PostgresStore) Save(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	personaJSON, err := json.Marshal(rec.Persona)
	if err != nil {
		return fmt.Errorf("archive: marshal persona: %w", err)
	}
	tags := rec.Tags
	if tags == nil {
		tags = []string{}
	}

	const query = `
		INSERT INTO personas (id, subject, def_name, tags, persona, document, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			subject = EXCLUDED.subject,
			def_name = EXCLUDED.def_name,
			tags = EXCLUDED.tags,
			persona = EXCLUDED.persona,
			document = EXCLUDED.document
		RETURNING created_at`

	err = s.db.QueryRow(ctx, query,
		rec.ID, rec.Subject, rec.DefName, tags, personaJSON, string(rec.Document), rec.CreatedAt,
	).Scan(&rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("archive: save %s: %w", rec.ID, err)
	}
	return nil
}

const selectColumns = `SELECT id, subject, def_name, tags, persona, document, created_at FROM personas`

// Get implements [Store].
func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	rec, err := scanRecord(s.db.QueryRow(ctx, selectColumns+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("archive: get %s: %w", id, err)
	}
	return rec, nil
}

// List implements [Store].
func (s *PostgresStore) List(ctx context.Context, opts ListOptions) ([]Record, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if opts.Subject == "" {
		rows, err = s.db.Query(ctx, selectColumns+` ORDER BY created_at DESC LIMIT $1`, opts.limit())
	} else {
		rows, err = s.db.Query(ctx, selectColumns+` WHERE subject = $1 ORDER BY created_at DESC LIMIT $2`, opts.Subject, opts.limit())
	}
	if err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("archive: list scan: %w", err)
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("archive: list: %w", err)
	}
	return out, nil
}

// Ping implements [Pinger] with a trivial query.
func (s *PostgresStore) Ping(ctx context.Context) error {
	var one int
	if err := s.db.QueryRow(ctx, `SELECT 1`).Scan(&one); err != nil {
		return fmt.Errorf("archive: ping: %w", err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*Record, error) {
	var (
		rec         Record
		personaJSON []byte
		document    string
	)
	if err := row.Scan(&rec.ID, &rec.Subject, &rec.DefName, &rec.Tags, &personaJSON, &document, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(personaJSON, &rec.Persona); err != nil {
		return nil, fmt.Errorf("archive: unmarshal persona: %w", err)
	}
	rec.Document = []byte(document)
	return &rec, nil
}
