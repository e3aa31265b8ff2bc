// Package store persists conversation records. Two backends are provided: an
// embedded bbolt key-value file and a SQLite database.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// Record is one persisted conversation.
type Record struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Summary          string    `json:"summary"`
	Script           string    `json:"script"`
	FullConversation string    `json:"full_conversation"`
	CreatedAt        time.Time `json:"created_at"`
	LastOpenedAt     time.Time `json:"last_opened_at"`
}

// Patch lists the fields an update touches. Nil content fields are left alone.
type Patch struct {
	Summary          *string
	Script           *string
	FullConversation *string
	LastOpenedAt     time.Time
}

func (p Patch) apply(rec *Record) {
	if p.Summary != nil {
		rec.Summary = *p.Summary
	}
	if p.Script != nil {
		rec.Script = *p.Script
	}
	if p.FullConversation != nil {
		rec.FullConversation = *p.FullConversation
	}
	if !p.LastOpenedAt.IsZero() {
		rec.LastOpenedAt = p.LastOpenedAt
	}
}

// Store is the record collection: create, update-by-id, query by field
// equality and query ordered by lastOpenedAt descending.
type Store interface {
	Create(ctx context.Context, rec Record) (string, error)
	Update(ctx context.Context, id string, patch Patch) error
	Get(ctx context.Context, id string) (Record, error)
	FindBySummary(ctx context.Context, userID, summary string) (Record, bool, error)
	ListByLastOpened(ctx context.Context, userID string) ([]Record, error)
	Close() error
}

// Writer is the part of a store a save needs. Every Store is a Writer, and so
// is the transaction an Atomic backend hands to InTx.
type Writer interface {
	Create(ctx context.Context, rec Record) (string, error)
	Update(ctx context.Context, id string, patch Patch) error
	FindBySummary(ctx context.Context, userID, summary string) (Record, bool, error)
}

// Atomic is implemented by backends that can run a lookup and the write it
// decides in one transaction. An error from fn rolls the transaction back.
type Atomic interface {
	InTx(ctx context.Context, fn func(w Writer) error) error
}

// Config selects and locates a backend.
type Config struct {
	Backend string // "bolt" or "sqlite"
	Path    string
}

// DefaultPath returns ~/.local/share/idealoop/<file> for the backend.
func DefaultPath(backend string) (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".local", "share")
	}
	name := "records.bolt"
	if backend == "sqlite" {
		name = "records.sqlite"
	}
	return filepath.Join(dir, "idealoop", name), nil
}

// Open creates the store described by cfg.
func Open(cfg Config) (Store, error) {
	path := cfg.Path
	if path == "" {
		p, err := DefaultPath(cfg.Backend)
		if err != nil {
			return nil, fmt.Errorf("resolve store path: %w", err)
		}
		path = p
	}

	switch cfg.Backend {
	case "", "bolt":
		return OpenBolt(path)
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", cfg.Backend)
	}
}

func newID() string {
	return uuid.NewString()
}
