package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/starford/inkwell/internal/apperr"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func partial(op, slug string, committed ...string) *apperr.PartialFailure {
	return &apperr.PartialFailure{Op: op, Slug: slug, Committed: committed, Err: errors.New("boom")}
}

func TestRecordAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.RecordPartial(ctx, partial("save", "hello", "blogs/hello.json")); err != nil {
		t.Fatalf("RecordPartial: %v", err)
	}
	if err := db.RecordPartial(ctx, partial("delete", "bye")); err != nil {
		t.Fatal(err)
	}

	entries, err := db.List(ctx, false)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	e := entries[0]
	if e.Op != "save" || e.Slug != "hello" || e.Error != "boom" {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Committed) != 1 || e.Committed[0] != "blogs/hello.json" {
		t.Errorf("committed = %v", e.Committed)
	}
	if entries[1].Committed == nil || len(entries[1].Committed) != 0 {
		t.Errorf("empty committed = %#v, want []", entries[1].Committed)
	}
	if e.ResolvedAt != nil {
		t.Error("new entry is resolved")
	}
}

func TestResolve(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, err := db.insert(ctx, partial("save", "hello"))
	if err != nil {
		t.Fatal(err)
	}

	if err := db.Resolve(ctx, id); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if err := db.Resolve(ctx, id); err != nil {
		t.Fatalf("second Resolve: %v", err)
	}

	open, _ := db.List(ctx, false)
	if len(open) != 0 {
		t.Errorf("open entries = %d, want 0", len(open))
	}
	all, _ := db.List(ctx, true)
	if len(all) != 1 || all[0].ResolvedAt == nil {
		t.Errorf("all = %+v", all)
	}
}

func TestResolve_Unknown(t *testing.T) {
	db := testDB(t)
	if err := db.Resolve(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := db.Get(context.Background(), "nope"); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("Get err = %v, want ErrNotFound", err)
	}
}

func TestReplay(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, _ := db.insert(ctx, partial("delete", "bye", "blogs/bye.json"))

	calls := 0
	fail := func(context.Context, string, string) error {
		calls++
		return errors.New("still down")
	}
	if err := db.Replay(ctx, id, fail); err == nil {
		t.Fatal("expected replay error")
	}
	e, _ := db.Get(ctx, id)
	if e.ResolvedAt != nil {
		t.Fatal("failed replay resolved the entry")
	}

	var gotOp, gotSlug string
	ok := func(_ context.Context, op, slug string) error {
		calls++
		gotOp, gotSlug = op, slug
		return nil
	}
	if err := db.Replay(ctx, id, ok); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if gotOp != "delete" || gotSlug != "bye" {
		t.Errorf("replayed %s %s", gotOp, gotSlug)
	}

	// Resolved entries are not replayed again.
	if err := db.Replay(ctx, id, ok); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestListOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, slug := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Minute)
		db.now = func() time.Time { return at }
		if err := db.RecordPartial(ctx, partial("save", slug)); err != nil {
			t.Fatal(err)
		}
	}
	entries, _ := db.List(ctx, false)
	if len(entries) != 3 || entries[0].Slug != "first" || entries[2].Slug != "third" {
		t.Errorf("order = %+v", entries)
	}
	if !entries[0].CreatedAt.Equal(base) {
		t.Errorf("created_at = %v, want %v", entries[0].CreatedAt, base)
	}
}
