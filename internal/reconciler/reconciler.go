// Package reconciler maps local session content onto the record store.
package reconciler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/idealoop/idealoop/internal/store"
)

// SaveInput is the local state handed over when a script completes.
type SaveInput struct {
	UserID     string
	Summary    string
	Script     string
	FullText   string
	ExistingID string
}

type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
)

// Op is the single store operation a save resolves to.
type Op struct {
	Kind OpKind
	ID   string
}

// Decide picks the store operation for in. match is the record owned by the
// same user whose summary equals in.Summary, if one exists. Two different
// ideas that summarize identically resolve to the same record.
func Decide(in SaveInput, match *store.Record) Op {
	if in.ExistingID != "" {
		return Op{Kind: OpUpdate, ID: in.ExistingID}
	}
	if match != nil {
		return Op{Kind: OpUpdate, ID: match.ID}
	}
	return Op{Kind: OpCreate}
}

// Reconciler executes save/list/touch against a store.
type Reconciler struct {
	store store.Store
	now   func() time.Time
}

func New(s store.Store) *Reconciler {
	return &Reconciler{store: s, now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// SaveOrUpdate persists in and returns the id of the record now holding it.
// On backends that support it the lookup and the write share a transaction.
func (r *Reconciler) SaveOrUpdate(ctx context.Context, in SaveInput) (string, error) {
	var (
		op  Op
		err error
	)
	if a, ok := r.store.(store.Atomic); ok {
		err = a.InTx(ctx, func(w store.Writer) error {
			op, err = r.save(ctx, w, in)
			return err
		})
	} else {
		op, err = r.save(ctx, r.store, in)
	}
	if err != nil {
		return "", err
	}

	if op.Kind == OpCreate {
		log.Printf("Reconciler: created record %s", op.ID)
	} else {
		log.Printf("Reconciler: updated record %s", op.ID)
	}
	return op.ID, nil
}

// save decides and applies one save through w. The returned Op carries the
// id that was written.
func (r *Reconciler) save(ctx context.Context, w store.Writer, in SaveInput) (Op, error) {
	var match *store.Record
	if in.ExistingID == "" {
		rec, ok, err := w.FindBySummary(ctx, in.UserID, in.Summary)
		if err != nil {
			return Op{}, fmt.Errorf("query by summary: %w", err)
		}
		if ok {
			match = &rec
		}
	}

	op := Decide(in, match)
	now := r.now()

	if op.Kind == OpUpdate {
		err := w.Update(ctx, op.ID, store.Patch{
			Summary:          &in.Summary,
			Script:           &in.Script,
			FullConversation: &in.FullText,
			LastOpenedAt:     now,
		})
		if err != nil {
			return Op{}, fmt.Errorf("update record %s: %w", op.ID, err)
		}
		return op, nil
	}

	id, err := w.Create(ctx, store.Record{
		UserID:           in.UserID,
		Summary:          in.Summary,
		Script:           in.Script,
		FullConversation: in.FullText,
		CreatedAt:        now,
		LastOpenedAt:     now,
	})
	if err != nil {
		return Op{}, fmt.Errorf("create record: %w", err)
	}
	op.ID = id
	return op, nil
}

// ListConversations returns the user's records, most recently opened first.
func (r *Reconciler) ListConversations(ctx context.Context, userID string) ([]store.Record, error) {
	recs, err := r.store.ListByLastOpened(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return recs, nil
}

// TouchLastOpened marks a record as opened now without touching its content.
func (r *Reconciler) TouchLastOpened(ctx context.Context, userID, id string) error {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec.UserID != userID {
		return fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	if err := r.store.Update(ctx, id, store.Patch{LastOpenedAt: r.now()}); err != nil {
		return fmt.Errorf("touch record %s: %w", id, err)
	}
	return nil
}

// Load fetches one of the user's records.
func (r *Reconciler) Load(ctx context.Context, userID, id string) (store.Record, error) {
	rec, err := r.store.Get(ctx, id)
	if err != nil {
		return store.Record{}, err
	}
	if rec.UserID != userID {
		return store.Record{}, fmt.Errorf("record %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}
