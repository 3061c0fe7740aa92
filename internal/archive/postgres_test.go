package archive

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

type mockRows struct {
	data [][]any
	idx  int
	err  error
}

func (r *mockRows) Close()                                       {}
func (r *mockRows) Err() error                                   { return r.err }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return assign(r.data[r.idx-1], dest) }

func assign(row []any, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *uuid.UUID:
			*d = v.(uuid.UUID)
		case *string:
			*d = v.(string)
		case *[]string:
			*d = v.([]string)
		case *[]byte:
			*d = v.([]byte)
		case *time.Time:
			*d = v.(time.Time)
		case *int:
			*d = v.(int)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if m.execFunc != nil {
		return m.execFunc(ctx, sql, args...)
	}
	return pgconn.CommandTag{}, nil
}

var fixedTime = time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)

func recordRow(id uuid.UUID, subject string) []any {
	return []any{
		id,
		subject,
		strings.ReplaceAll(subject, " ", "_"),
		[]string{"scar"},
		[]byte(`{"matchedTags":["scar"],"unmatchedTags":[],"traits":[{"traitDef":"Tough","degree":0,"priority":60,"category":"physical","conflictsWith":null}],"skills":{"Melee":{"bonus":2,"passion":0}},"summary":"Traits: Tough | Skills: Melee+2"}`),
		"<Defs/>",
		fixedTime,
	}
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	t.Run("ok", func(t *testing.T) {
		t.Parallel()
		var got string
		db := &mockDB{execFunc: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			got = sql
			return pgconn.CommandTag{}, nil
		}}
		if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
			t.Fatalf("Migrate: %v", err)
		}
		if !strings.Contains(got, "CREATE TABLE IF NOT EXISTS personas") {
			t.Errorf("Migrate executed %q", got)
		}
	})

	t.Run("error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{execFunc: func(context.Context, string, ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, errors.New("permission denied")
		}}
		err := NewPostgresStore(db).Migrate(context.Background())
		if err == nil || !strings.Contains(err.Error(), "archive: migrate") {
			t.Errorf("err = %v", err)
		}
	})
}

func TestPostgresStore_Save(t *testing.T) {
	t.Parallel()

	var args []any
	db := &mockDB{queryRowFunc: func(_ context.Context, sql string, a ...any) pgx.Row {
		if !strings.Contains(sql, "ON CONFLICT (id)") {
			t.Errorf("unexpected query %q", sql)
		}
		args = a
		return &mockRow{scanFunc: func(dest ...any) error {
			*dest[0].(*time.Time) = fixedTime
			return nil
		}}
	}}

	rec := &Record{Subject: "Mara", DefName: "Mara", Document: []byte("<Defs/>")}
	if err := NewPostgresStore(db).Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Error("Save did not assign an ID")
	}
	if !rec.CreatedAt.Equal(fixedTime) {
		t.Errorf("CreatedAt = %v", rec.CreatedAt)
	}
	if len(args) != 7 {
		t.Fatalf("got %d args, want 7", len(args))
	}
	if tags, ok := args[3].([]string); !ok || tags == nil {
		t.Errorf("tags arg = %#v, want empty non-nil slice", args[3])
	}
	if !strings.Contains(string(args[4].([]byte)), `"summary"`) {
		t.Errorf("persona arg = %s", args[4])
	}
	if args[5] != "<Defs/>" {
		t.Errorf("document arg = %v", args[5])
	}
}

func TestPostgresStore_Get(t *testing.T) {
	t.Parallel()

	id := uuid.New()

	t.Run("found", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryRowFunc: func(_ context.Context, _ string, a ...any) pgx.Row {
			if a[0] != id {
				t.Errorf("id arg = %v", a[0])
			}
			return &mockRow{scanFunc: func(dest ...any) error { return assign(recordRow(id, "Test Sideria"), dest) }}
		}}
		rec, err := NewPostgresStore(db).Get(context.Background(), id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if rec.DefName != "Test_Sideria" || string(rec.Document) != "<Defs/>" {
			t.Errorf("rec = %+v", rec)
		}
		if !slices.Equal(rec.Persona.TraitDefs(), []string{"Tough"}) {
			t.Errorf("traits = %v", rec.Persona.TraitDefs())
		}
		if m, ok := rec.Persona.Skills.Get("Melee"); !ok || m.Bonus != 2 {
			t.Errorf("Melee = %+v, %v", m, ok)
		}
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()
		_, err := NewPostgresStore(&mockDB{}).Get(context.Background(), id)
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("bad json", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
			row := recordRow(id, "X")
			row[4] = []byte(`{`)
			return &mockRow{scanFunc: func(dest ...any) error { return assign(row, dest) }}
		}}
		if _, err := NewPostgresStore(db).Get(context.Background(), id); err == nil {
			t.Fatal("expected unmarshal error")
		}
	})
}

func TestPostgresStore_List(t *testing.T) {
	t.Parallel()

	t.Run("all", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryFunc: func(_ context.Context, sql string, a ...any) (pgx.Rows, error) {
			if strings.Contains(sql, "WHERE subject") {
				t.Error("unfiltered list filtered by subject")
			}
			if len(a) != 1 || a[0] != 50 {
				t.Errorf("args = %v, want [50]", a)
			}
			return &mockRows{data: [][]any{recordRow(uuid.New(), "A"), recordRow(uuid.New(), "B")}}, nil
		}}
		recs, err := NewPostgresStore(db).List(context.Background(), ListOptions{})
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(recs) != 2 || recs[0].Subject != "A" || recs[1].Subject != "B" {
			t.Errorf("recs = %+v", recs)
		}
	})

	t.Run("by subject", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryFunc: func(_ context.Context, sql string, a ...any) (pgx.Rows, error) {
			if !strings.Contains(sql, "WHERE subject = $1") {
				t.Errorf("query = %q", sql)
			}
			if len(a) != 2 || a[0] != "A" || a[1] != 5 {
				t.Errorf("args = %v", a)
			}
			return &mockRows{}, nil
		}}
		if _, err := NewPostgresStore(db).List(context.Background(), ListOptions{Subject: "A", Limit: 5}); err != nil {
			t.Fatalf("List: %v", err)
		}
	})

	t.Run("rows error", func(t *testing.T) {
		t.Parallel()
		db := &mockDB{queryFunc: func(context.Context, string, ...any) (pgx.Rows, error) {
			return &mockRows{err: errors.New("conn reset")}, nil
		}}
		if _, err := NewPostgresStore(db).List(context.Background(), ListOptions{}); err == nil {
			t.Fatal("expected rows error")
		}
	})
}

func TestPostgresStore_Ping(t *testing.T) {
	t.Parallel()

	ok := &mockDB{queryRowFunc: func(context.Context, string, ...any) pgx.Row {
		return &mockRow{scanFunc: func(dest ...any) error { *dest[0].(*int) = 1; return nil }}
	}}
	if err := NewPostgresStore(ok).Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := NewPostgresStore(&mockDB{}).Ping(context.Background()); err == nil {
		t.Error("Ping succeeded against failing db")
	}
}
