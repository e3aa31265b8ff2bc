package session

import (
	"context"
	"fmt"
	"log"

	"github.com/idealoop/idealoop/internal/store"
)

// RefreshHistory reloads the user's records and applies the auto-load rule:
// an untouched session adopts the most recently opened record, unless the
// user explicitly started a new idea.
func (c *Controller) RefreshHistory(ctx context.Context) ([]store.Record, error) {
	c.mu.Lock()
	userID := c.opts.UserID
	c.mu.Unlock()

	recs, err := c.recon.ListConversations(ctx, userID)
	if err != nil {
		c.mu.Lock()
		c.obs.Failed(CodeHistory, err)
		c.mu.Unlock()
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = recs
	if len(recs) > 0 && c.pristineLocked() {
		log.Printf("Session: auto-loading record %s", recs[0].ID)
		c.loadLocked(recs[0])
	}
	return recs, nil
}

// OpenHistory is the user deliberately opening the history list. It lifts the
// explicit-reset latch.
func (c *Controller) OpenHistory(ctx context.Context) ([]store.Record, error) {
	c.mu.Lock()
	c.reset = false
	c.historyOpen = true
	c.mu.Unlock()
	return c.RefreshHistory(ctx)
}

func (c *Controller) CloseHistory() {
	c.mu.Lock()
	c.historyOpen = false
	c.mu.Unlock()
}

// HistoryOpen reports whether the history list is showing. Capture is
// blocked while it is.
func (c *Controller) HistoryOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.historyOpen
}

// Records returns the list cached by the last refresh.
func (c *Controller) Records() []store.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]store.Record(nil), c.records...)
}

// SelectRecord marks a history item as opened and loads it verbatim.
func (c *Controller) SelectRecord(ctx context.Context, id string) (store.Record, error) {
	c.mu.Lock()
	userID := c.opts.UserID
	c.mu.Unlock()

	if err := c.recon.TouchLastOpened(ctx, userID, id); err != nil {
		return store.Record{}, fmt.Errorf("open record %s: %w", id, err)
	}
	rec, err := c.recon.Load(ctx, userID, id)
	if err != nil {
		return store.Record{}, fmt.Errorf("load record %s: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadLocked(rec)
	c.historyOpen = false
	c.reset = false
	c.setGenLocked(GenIdle)
	return rec, nil
}

func (c *Controller) pristineLocked() bool {
	return c.activeID == "" &&
		c.text == "" &&
		c.summary == "" &&
		c.script == "" &&
		!c.reset &&
		c.pending == 0 &&
		c.cancelGen == nil
}

func (c *Controller) loadLocked(rec store.Record) {
	c.invalidateScriptLocked()
	// summaries issued against the previous buffer are now stale
	c.issued++
	c.text = rec.FullConversation
	c.summary = rec.Summary
	c.summaryErr = ""
	c.script = rec.Script
	c.activeID = rec.ID
	c.obs.SummaryChanged(rec.Summary)
	c.obs.RecordLoaded(rec.ID)
}
