package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/idealoop/idealoop/internal/store"
)

func newTestReconciler(t *testing.T) (*Reconciler, store.Store, *time.Time) {
	t.Helper()

	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	r := New(s).WithClock(func() time.Time { return now })
	return r, s, &now
}

func TestDecide(t *testing.T) {
	match := &store.Record{ID: "matched"}

	tests := []struct {
		name  string
		in    SaveInput
		match *store.Record
		want  Op
	}{
		{
			name:  "existing id wins over match",
			in:    SaveInput{ExistingID: "given"},
			match: match,
			want:  Op{Kind: OpUpdate, ID: "given"},
		},
		{
			name:  "summary match updates",
			in:    SaveInput{Summary: "s"},
			match: match,
			want:  Op{Kind: OpUpdate, ID: "matched"},
		},
		{
			name: "no match creates",
			in:   SaveInput{Summary: "s"},
			want: Op{Kind: OpCreate},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decide(tc.in, tc.match); got != tc.want {
				t.Errorf("Decide() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestSaveOrUpdate_CreatesThenDedupsBySummary(t *testing.T) {
	r, s, now := newTestReconciler(t)
	ctx := context.Background()

	id, err := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "Coffee vlog", Script: "v1", FullText: "a vlog about coffee"})
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	*now = now.Add(time.Hour)
	again, err := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "Coffee vlog", Script: "v2", FullText: "a vlog about coffee\n\nwith latte art"})
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if again != id {
		t.Fatalf("expected dedup to return %s, got %s", id, again)
	}

	recs, _ := s.ListByLastOpened(ctx, "u1")
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	if recs[0].Script != "v2" || recs[0].FullConversation != "a vlog about coffee\n\nwith latte art" {
		t.Errorf("record not updated: %+v", recs[0])
	}
	if !recs[0].LastOpenedAt.Equal(*now) {
		t.Errorf("lastOpenedAt = %v, want %v", recs[0].LastOpenedAt, *now)
	}
	if recs[0].CreatedAt.Equal(*now) {
		t.Error("createdAt must not move on update")
	}
}

func TestSaveOrUpdate_ExistingIDUpdatesInPlace(t *testing.T) {
	r, s, _ := newTestReconciler(t)
	ctx := context.Background()

	id, _ := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "old title", Script: "a"})

	got, err := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "new title", Script: "b", ExistingID: id})
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if got != id {
		t.Errorf("expected %s, got %s", id, got)
	}

	rec, _ := s.Get(ctx, id)
	if rec.Summary != "new title" || rec.Script != "b" {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestSaveOrUpdate_DifferentUsersDoNotCollide(t *testing.T) {
	r, _, _ := newTestReconciler(t)
	ctx := context.Background()

	a, _ := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "same"})
	b, _ := r.SaveOrUpdate(ctx, SaveInput{UserID: "u2", Summary: "same"})
	if a == b {
		t.Error("records of different users must not be merged")
	}
}

func TestTouchLastOpened(t *testing.T) {
	r, s, now := newTestReconciler(t)
	ctx := context.Background()

	id, _ := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "s", Script: "keep me"})
	*now = now.Add(24 * time.Hour)

	if err := r.TouchLastOpened(ctx, "u1", id); err != nil {
		t.Fatalf("touch: %v", err)
	}
	rec, _ := s.Get(ctx, id)
	if !rec.LastOpenedAt.Equal(*now) {
		t.Errorf("lastOpenedAt = %v, want %v", rec.LastOpenedAt, *now)
	}
	if rec.Script != "keep me" {
		t.Errorf("touch altered content: %q", rec.Script)
	}

	if err := r.TouchLastOpened(ctx, "someone-else", id); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound for foreign record, got %v", err)
	}
}

func TestListConversations(t *testing.T) {
	r, _, now := newTestReconciler(t)
	ctx := context.Background()

	first, _ := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "first"})
	*now = now.Add(time.Minute)
	second, _ := r.SaveOrUpdate(ctx, SaveInput{UserID: "u1", Summary: "second"})

	recs, err := r.ListConversations(ctx, "u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].ID != second || recs[1].ID != first {
		t.Errorf("unexpected order: %+v", recs)
	}
}

type countingTx struct {
	*store.SQLiteStore
	txs int
}

func (c *countingTx) InTx(ctx context.Context, fn func(w store.Writer) error) error {
	c.txs++
	return c.SQLiteStore.InTx(ctx, fn)
}

func TestSaveOrUpdate_UsesOneTransactionPerSave(t *testing.T) {
	ctx := context.Background()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	tx := &countingTx{SQLiteStore: s}
	r := New(tx)

	in := SaveInput{UserID: "u1", Summary: "Coffee vlog", Script: "v1", FullText: "coffee"}
	first, err := r.SaveOrUpdate(ctx, in)
	if err != nil {
		t.Fatal(err)
	}
	in.Script = "v2"
	second, err := r.SaveOrUpdate(ctx, in)
	if err != nil {
		t.Fatal(err)
	}

	if first != second {
		t.Errorf("ids = %q, %q; want the summary match reused", first, second)
	}
	if tx.txs != 2 {
		t.Errorf("transactions = %d, want 2", tx.txs)
	}
	recs, _ := s.ListByLastOpened(ctx, "u1")
	if len(recs) != 1 || recs[0].Script != "v2" {
		t.Errorf("records = %+v", recs)
	}
}
