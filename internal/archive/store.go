// Package archive keeps every exported persona so it can be listed and
// fetched again later. [MemStore] serves tests and single-process runs;
// [PostgresStore] persists to PostgreSQL.
package archive

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/personaforge/internal/resolve"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("archive: record not found")

// defaultListLimit caps List when ListOptions.Limit is zero.
const defaultListLimit = 50

// Record is one archived persona.
type Record struct {
	ID      uuid.UUID
	Subject string
	DefName string

	// Tags are the raw tags the persona was resolved from.
	Tags []string

	Persona  resolve.Persona
	Document []byte

	CreatedAt time.Time
}

// ListOptions filters List.
type ListOptions struct {
	// Subject, when non-empty, keeps only records for that subject.
	Subject string
	// Limit caps the number of records. Zero means 50.
	Limit int
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return defaultListLimit
	}
	return o.Limit
}

// Store persists archived personas. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores rec. A nil ID is replaced with a fresh UUID and a zero
	// CreatedAt with the current time; both are written back to rec.
	Save(ctx context.Context, rec *Record) error

	// Get returns the record with the given ID or [ErrNotFound].
	Get(ctx context.Context, id uuid.UUID) (*Record, error)

	// List returns records newest first.
	List(ctx context.Context, opts ListOptions) ([]Record, error)
}

// Pinger is implemented by stores that can report their backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}
