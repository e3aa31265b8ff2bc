package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

const chunkSeparator = "\n\n"

// AcceptChunk appends text to the conversation and summarizes the result.
// Empty text re-summarizes the existing buffer. Only the most recently
// issued summarization may commit, so a call that was overtaken returns nil
// without changing the summary.
func (c *Controller) AcceptChunk(ctx context.Context, text string) error {
	seq, input, ok := c.appendChunk(text)
	if !ok {
		return nil
	}
	return c.summarize(ctx, seq, input)
}

// SubmitChunk appends text synchronously and summarizes in the background.
func (c *Controller) SubmitChunk(text string) {
	seq, input, ok := c.appendChunk(text)
	if !ok {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.summarize(c.ctx, seq, input); err != nil {
			log.Printf("Session: background summary failed: %v", err)
		}
	}()
}

// appendChunk updates the buffer and issues a summarization ticket. ok is
// false when the buffer is empty and nothing needs summarizing.
func (c *Controller) appendChunk(text string) (seq uint64, input string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if chunk := strings.TrimSpace(text); chunk != "" {
		if c.text != "" {
			c.text += chunkSeparator
		}
		c.text += chunk
		// new content invalidates any script generated from the old buffer
		c.invalidateScriptLocked()
		c.script = ""
		c.activeID = ""
		c.reset = false
	}

	c.issued++
	if c.text == "" {
		if c.summary != "" {
			c.summary = ""
			c.obs.SummaryChanged("")
		}
		return 0, "", false
	}
	c.pending++
	return c.issued, c.text, true
}

func (c *Controller) summarize(ctx context.Context, seq uint64, input string) error {
	out, err := c.summarizer.Summarize(ctx, input)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending--

	if seq != c.issued {
		log.Printf("Session: discarding stale summary #%d (latest #%d)", seq, c.issued)
		return nil
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		c.summaryErr = "Couldn't summarize your idea. Add more or try again."
		c.obs.Failed(CodeSummarize, err)
		return fmt.Errorf("summarize: %w", err)
	}
	c.commitSummaryLocked(out)
	return nil
}

func (c *Controller) commitSummaryLocked(out string) string {
	out = strings.TrimSpace(out)
	if out == "" {
		out = c.opts.FallbackSummary
	}
	c.summary = out
	c.summaryErr = ""
	c.obs.SummaryChanged(out)
	return out
}
