// Package session owns the state of one video-idea session: the accumulated
// conversation, its running summary, the generated script and the link to the
// persisted record.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/idealoop/idealoop/internal/llm"
	"github.com/idealoop/idealoop/internal/reconciler"
	"github.com/idealoop/idealoop/internal/store"
)

var ErrNothingToGenerate = errors.New("nothing to generate: add an idea first")

const DefaultFallbackSummary = "Untitled video idea"

type GenerationState string

const (
	GenIdle      GenerationState = "idle"
	GenStreaming GenerationState = "streaming"
	GenCompleted GenerationState = "completed"
	GenCancelled GenerationState = "cancelled"
	GenErrored   GenerationState = "errored"
)

// ErrorCode classifies failures reported to the Observer.
type ErrorCode string

const (
	CodeCaptureUnavailable ErrorCode = "capture_unavailable"
	CodePermissionDenied   ErrorCode = "permission_denied"
	CodeRecognition        ErrorCode = "recognition"
	CodeSummarize          ErrorCode = "summarize"
	CodeGenerate           ErrorCode = "generate"
	CodePersist            ErrorCode = "persist"
	CodeHistory            ErrorCode = "history"
)

// Observer receives session changes. Methods are called with the controller
// locked, in the order the changes happen, and must not call back into the
// Controller.
type Observer interface {
	SummaryChanged(summary string)
	Fragment(text string)
	GenerationChanged(state GenerationState)
	ScriptCompleted(recordID string)
	RecordLoaded(recordID string)
	Failed(code ErrorCode, err error)
}

type NopObserver struct{}

func (NopObserver) SummaryChanged(string)             {}
func (NopObserver) Fragment(string)                   {}
func (NopObserver) GenerationChanged(GenerationState) {}
func (NopObserver) ScriptCompleted(string)            {}
func (NopObserver) RecordLoaded(string)               {}
func (NopObserver) Failed(ErrorCode, error)           {}

type Options struct {
	UserID          string
	VideoForm       string
	VideoLength     string
	FallbackSummary string
	Observer        Observer
}

// Snapshot is a copy of the visible session state.
type Snapshot struct {
	UserID          string          `json:"userId"`
	Text            string          `json:"fullConversationText"`
	Summary         string          `json:"currentSummary"`
	Summarizing     bool            `json:"summarizing"`
	SummaryError    string          `json:"summaryError,omitempty"`
	Script          string          `json:"generatedScript"`
	Generation      GenerationState `json:"generation"`
	ActiveRecordID  string          `json:"activeRecordId,omitempty"`
	ExplicitlyReset bool            `json:"hasExplicitlyReset"`
	HistoryOpen     bool            `json:"historyOpen"`
	VideoForm       string          `json:"videoForm,omitempty"`
	VideoLength     string          `json:"videoLength,omitempty"`
}

// Controller is the single writer of session state.
type Controller struct {
	summarizer llm.Summarizer
	generator  llm.Generator
	recon      *reconciler.Reconciler
	obs        Observer

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu          sync.Mutex
	opts        Options
	text        string
	summary     string
	summaryErr  string
	issued      uint64
	pending     int
	script      string
	gen         GenerationState
	genSeq      uint64
	cancelGen   context.CancelFunc
	activeID    string
	reset       bool
	historyOpen bool
	records     []store.Record
}

func NewController(s llm.Summarizer, g llm.Generator, r *reconciler.Reconciler, opts Options) *Controller {
	if opts.FallbackSummary == "" {
		opts.FallbackSummary = DefaultFallbackSummary
	}
	obs := opts.Observer
	if obs == nil {
		obs = NopObserver{}
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Controller{
		summarizer: s,
		generator:  g,
		recon:      r,
		obs:        obs,
		ctx:        ctx,
		stop:       stop,
		opts:       opts,
		gen:        GenIdle,
	}
}

// SetScriptOptions changes the video form and length sent with future
// generation requests.
func (c *Controller) SetScriptOptions(form, length string) {
	c.mu.Lock()
	c.opts.VideoForm = form
	c.opts.VideoLength = length
	c.mu.Unlock()
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		UserID:          c.opts.UserID,
		Text:            c.text,
		Summary:         c.summary,
		Summarizing:     c.pending > 0,
		SummaryError:    c.summaryErr,
		Script:          c.script,
		Generation:      c.gen,
		ActiveRecordID:  c.activeID,
		ExplicitlyReset: c.reset,
		HistoryOpen:     c.historyOpen,
		VideoForm:       c.opts.VideoForm,
		VideoLength:     c.opts.VideoLength,
	}
}

// NewIdea clears the session and suppresses auto-loading until history is
// opened again.
func (c *Controller) NewIdea() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.invalidateScriptLocked()
	c.issued++
	c.text = ""
	c.summary = ""
	c.summaryErr = ""
	c.script = ""
	c.activeID = ""
	c.reset = true
	c.setGenLocked(GenIdle)
	c.obs.SummaryChanged("")
}

// Close cancels in-flight work and waits for background summaries.
func (c *Controller) Close() {
	c.mu.Lock()
	c.cancelGenerationLocked()
	c.mu.Unlock()
	c.stop()
	c.wg.Wait()
}

// cancelGenerationLocked makes any in-flight stream stale and aborts it.
func (c *Controller) cancelGenerationLocked() {
	if c.cancelGen == nil {
		return
	}
	c.cancelGen()
	c.cancelGen = nil
	c.genSeq++
	c.setGenLocked(GenCancelled)
}

// invalidateScriptLocked aborts any stream and stops a save still in flight
// from adopting its record id.
func (c *Controller) invalidateScriptLocked() {
	c.cancelGenerationLocked()
	c.genSeq++
}

func (c *Controller) setGenLocked(s GenerationState) {
	if c.gen == s {
		return
	}
	c.gen = s
	c.obs.GenerationChanged(s)
}
