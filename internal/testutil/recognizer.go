package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/idealoop/idealoop/internal/capture"
)

var errNotRunning = errors.New("recognizer not running")

// FakeRecognizer is a capture.Recognizer driven by the test. Stop and Abort
// deliver their callbacks synchronously, the way a browser-style engine
// would queue them.
type FakeRecognizer struct {
	Unavailable bool
	StartErr    error
	// StopResult is delivered as the pending result when Stop is called.
	StopResult string
	// FireStart makes Start call OnStart before returning.
	FireStart bool

	mu       sync.Mutex
	listener capture.Listener
	running  bool
	starts   int
	stops    int
	aborts   int
}

func (f *FakeRecognizer) Available() bool { return !f.Unavailable }

func (f *FakeRecognizer) Start(ctx context.Context, l capture.Listener) error {
	f.mu.Lock()
	f.starts++
	if f.StartErr != nil {
		f.mu.Unlock()
		return f.StartErr
	}
	if f.running {
		f.mu.Unlock()
		return capture.ErrAlreadyStarted
	}
	f.running = true
	f.listener = l
	fire := f.FireStart
	f.mu.Unlock()

	if fire {
		l.OnStart()
	}
	return nil
}

func (f *FakeRecognizer) Stop() error {
	f.mu.Lock()
	f.stops++
	if !f.running {
		f.mu.Unlock()
		return errNotRunning
	}
	f.running = false
	l, result := f.listener, f.StopResult
	f.mu.Unlock()

	if result != "" {
		l.OnResult(result, 0.9)
	}
	l.OnEnd()
	return nil
}

func (f *FakeRecognizer) Abort() error {
	f.mu.Lock()
	f.aborts++
	if !f.running {
		f.mu.Unlock()
		return errNotRunning
	}
	f.running = false
	l := f.listener
	f.mu.Unlock()

	l.OnError(capture.CodeAborted)
	l.OnEnd()
	return nil
}

// Listener returns the listener of the most recent Start.
func (f *FakeRecognizer) Listener() capture.Listener {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listener
}

// EmitStart, EmitResult, EmitError and EmitEnd fire callbacks on the current
// listener as the engine would.
func (f *FakeRecognizer) EmitStart() { f.Listener().OnStart() }

func (f *FakeRecognizer) EmitResult(text string) {
	f.Listener().OnResult(text, 0.9)
}

func (f *FakeRecognizer) EmitError(code string) {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.Listener().OnError(code)
}

func (f *FakeRecognizer) EmitEnd() {
	f.mu.Lock()
	f.running = false
	f.mu.Unlock()
	f.Listener().OnEnd()
}

func (f *FakeRecognizer) Running() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Counts returns how often Start, Stop and Abort were called.
func (f *FakeRecognizer) Counts() (starts, stops, aborts int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops, f.aborts
}

// FakeProber is a capture.PermissionProber with a fixed answer.
type FakeProber struct {
	Err error

	mu     sync.Mutex
	probes int
}

func (p *FakeProber) Probe(ctx context.Context) error {
	p.mu.Lock()
	p.probes++
	p.mu.Unlock()
	return p.Err
}

func (p *FakeProber) Probes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.probes
}

// OutcomeRecorder collects capture outcomes.
type OutcomeRecorder struct {
	mu       sync.Mutex
	outcomes []capture.Outcome
}

func (r *OutcomeRecorder) CaptureEnded(o capture.Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

func (r *OutcomeRecorder) Outcomes() []capture.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Outcome(nil), r.outcomes...)
}
