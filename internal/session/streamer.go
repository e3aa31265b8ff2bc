package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/idealoop/idealoop/internal/llm"
	"github.com/idealoop/idealoop/internal/reconciler"
)

// Result describes how one Generate call ended.
type Result struct {
	Script    string
	RecordID  string
	Cancelled bool
}

// Generate streams a new script for the session, replacing the previous one
// and preempting any generation still in flight. A preempted call returns a
// cancelled Result and a nil error. On success the script is persisted once
// and the record id adopted.
func (c *Controller) Generate(ctx context.Context) (Result, error) {
	c.mu.Lock()
	if c.summary == "" && c.text == "" {
		c.mu.Unlock()
		return Result{}, ErrNothingToGenerate
	}

	c.cancelGenerationLocked()
	c.genSeq++
	seq := c.genSeq
	gctx, cancel := context.WithCancel(ctx)
	c.cancelGen = cancel
	defer cancel()

	c.script = ""
	c.activeID = ""
	c.setGenLocked(GenStreaming)

	summary, text := c.summary, c.text
	req := llm.ScriptRequest{
		FullContext: text,
		VideoForm:   c.opts.VideoForm,
		VideoLength: c.opts.VideoLength,
	}
	needSummary := summary == ""
	if needSummary {
		// takes a ticket so older summaries still in flight are discarded
		c.issued++
		c.pending++
	}
	c.mu.Unlock()

	if needSummary {
		out, err := c.summarizer.Summarize(gctx, text)

		c.mu.Lock()
		c.pending--
		if !c.currentLocked(seq, gctx) {
			c.abandonLocked(seq)
			c.mu.Unlock()
			return Result{Cancelled: true}, nil
		}
		if err != nil {
			c.summaryErr = "Couldn't summarize your idea. Add more or try again."
			c.failGenerationLocked(seq, CodeSummarize, err)
			c.mu.Unlock()
			return Result{}, fmt.Errorf("summarize before generate: %w", err)
		}
		// awaited inline, so it commits even if a background summary is pending
		summary = c.commitSummaryLocked(out)
		c.mu.Unlock()
	}
	req.ContextSummary = summary

	stream, err := c.generator.StreamScript(gctx, req)
	if err != nil {
		return c.endStream(seq, gctx, err)
	}
	defer stream.Close()

	for {
		frag, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return c.endStream(seq, gctx, err)
		}

		c.mu.Lock()
		if !c.currentLocked(seq, gctx) {
			c.abandonLocked(seq)
			c.mu.Unlock()
			return Result{Cancelled: true}, nil
		}
		c.script += frag
		c.obs.Fragment(frag)
		c.mu.Unlock()
	}

	c.mu.Lock()
	if !c.currentLocked(seq, gctx) {
		c.abandonLocked(seq)
		c.mu.Unlock()
		return Result{Cancelled: true}, nil
	}
	in := reconciler.SaveInput{
		UserID:     c.opts.UserID,
		Summary:    c.summary,
		Script:     c.script,
		FullText:   c.text,
		ExistingID: c.activeID,
	}
	c.cancelGen = nil
	c.setGenLocked(GenCompleted)
	c.mu.Unlock()

	script := in.Script
	if strings.TrimSpace(script) == "" {
		log.Printf("Session: generation finished with an empty script, not saving")
		return Result{Script: script}, nil
	}

	// the stream is done; a later preemption must not abort the save
	id, err := c.recon.SaveOrUpdate(context.WithoutCancel(ctx), in)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.obs.Failed(CodePersist, err)
		return Result{Script: script}, fmt.Errorf("persist script: %w", err)
	}
	// a chunk, reset or load during the save moved the session on
	if c.genSeq == seq {
		c.activeID = id
		c.obs.ScriptCompleted(id)
	}
	return Result{Script: script, RecordID: id}, nil
}

// CancelGeneration stops the stream in flight, if any, keeping the partial
// script.
func (c *Controller) CancelGeneration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelGenerationLocked()
}

func (c *Controller) currentLocked(seq uint64, gctx context.Context) bool {
	return c.genSeq == seq && gctx.Err() == nil
}

func (c *Controller) endStream(seq uint64, gctx context.Context, err error) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.currentLocked(seq, gctx) || errors.Is(err, context.Canceled) {
		c.abandonLocked(seq)
		return Result{Cancelled: true}, nil
	}
	c.failGenerationLocked(seq, CodeGenerate, err)
	return Result{Script: c.script}, fmt.Errorf("generate script: %w", err)
}

// abandonLocked settles a generation whose own context was cancelled. A
// generation that was preempted has nothing left to settle.
func (c *Controller) abandonLocked(seq uint64) {
	if c.genSeq == seq && c.cancelGen != nil {
		c.cancelGen = nil
		c.setGenLocked(GenCancelled)
	}
}

func (c *Controller) failGenerationLocked(seq uint64, code ErrorCode, err error) {
	if c.genSeq == seq {
		c.cancelGen = nil
		c.setGenLocked(GenErrored)
	}
	c.obs.Failed(code, err)
}
