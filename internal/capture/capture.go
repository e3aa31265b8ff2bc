// Package capture runs push-to-talk speech capture sessions.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
)

type State string

const (
	Idle       State = "idle"
	Attempting State = "attempting"
	Listening  State = "listening"
)

type OutcomeKind string

const (
	OutcomeTranscript OutcomeKind = "transcript"
	OutcomeNoResult   OutcomeKind = "no_result"
	OutcomeError      OutcomeKind = "error"
	OutcomeEnded      OutcomeKind = "ended"
)

// Outcome is the single terminal result of one activation.
type Outcome struct {
	Kind OutcomeKind
	Text string
	Code string
	Err  error
}

// Handler receives outcomes. CaptureEnded must not block.
type Handler interface {
	CaptureEnded(o Outcome)
}

type HandlerFunc func(o Outcome)

func (f HandlerFunc) CaptureEnded(o Outcome) { f(o) }

type Options struct {
	// Blocked reports whether the host UI is in a mode where capture must
	// not start.
	Blocked func() bool
	Prober  PermissionProber
	OnState func(State)
}

type stopMode int

const (
	stopGraceful stopMode = iota
	stopAbort
)

// Session owns one recognizer and allows at most one activation at a time.
type Session struct {
	recognizer Recognizer
	releases   *ReleaseHub
	handler    Handler
	opts       Options

	mu      sync.Mutex
	state   State
	current *activation
	seq     uint64
}

// activation is the listener handed to one Recognizer.Start call. Callbacks
// that arrive for an activation which is no longer current are stale.
type activation struct {
	s           *Session
	id          uint64
	unsubscribe func()
	delivered   bool
	stopped     bool
}

func NewSession(r Recognizer, releases *ReleaseHub, h Handler, opts Options) *Session {
	return &Session{
		recognizer: r,
		releases:   releases,
		handler:    h,
		opts:       opts,
		state:      Idle,
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Begin starts an activation. It returns false without error when a capture
// is already in progress or the host is blocked.
func (s *Session) Begin(ctx context.Context) (bool, error) {
	if s.opts.Blocked != nil && s.opts.Blocked() {
		log.Printf("Capture: begin ignored, host blocked")
		return false, nil
	}
	if !s.recognizer.Available() {
		return false, ErrUnavailable
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return false, nil
	}
	s.seq++
	a := &activation{s: s, id: s.seq}
	s.current = a
	s.state = Attempting
	a.unsubscribe = s.releases.Subscribe(func() { s.forceStop(a, stopGraceful) })
	s.mu.Unlock()
	s.emitState(Attempting)

	if s.opts.Prober != nil {
		if err := s.opts.Prober.Probe(ctx); err != nil {
			s.forceStop(a, stopAbort)
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
			s.deliver(a, Outcome{Kind: OutcomeError, Code: CodeNotAllowed, Err: err})
			return false, err
		}

		s.mu.Lock()
		released := a.stopped
		s.mu.Unlock()
		if released {
			log.Printf("Capture: released during permission check, not starting")
			s.deliver(a, Outcome{Kind: OutcomeNoResult})
			return false, nil
		}
	}

	if err := s.recognizer.Start(ctx, a); err != nil {
		s.forceStop(a, stopAbort)
		if errors.Is(err, ErrAlreadyStarted) {
			log.Printf("Capture: recognizer still running, reset to idle")
			s.deliver(a, Outcome{Kind: OutcomeNoResult})
			return false, nil
		}
		s.deliver(a, Outcome{Kind: OutcomeError, Code: CodeAudioCapture, Err: err})
		return false, fmt.Errorf("start recognition: %w", err)
	}

	s.mu.Lock()
	released := a.stopped
	listening := s.current == a && s.state == Attempting
	if listening {
		s.state = Listening
	}
	s.mu.Unlock()

	if released {
		// released while the recognizer was starting
		if err := s.recognizer.Stop(); err != nil {
			log.Printf("Capture: stop after early release: %v", err)
		}
		return true, nil
	}
	if listening {
		s.emitState(Listening)
	}
	return true, nil
}

// Release ends the current activation gracefully.
func (s *Session) Release() {
	s.mu.Lock()
	a := s.current
	s.mu.Unlock()
	if a != nil {
		s.forceStop(a, stopGraceful)
	}
}

// Close aborts any activation in progress.
func (s *Session) Close() {
	s.mu.Lock()
	a := s.current
	s.mu.Unlock()
	if a != nil {
		s.forceStop(a, stopAbort)
	}
}

// forceStop is the single exit path of an activation. Only the first call
// per activation has any effect.
func (s *Session) forceStop(a *activation, mode stopMode) {
	s.mu.Lock()
	if a.stopped {
		s.mu.Unlock()
		return
	}
	a.stopped = true
	unsubscribe := a.unsubscribe
	a.unsubscribe = nil
	current := s.current == a
	if current {
		s.current = nil
		s.state = Idle
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if !current {
		return
	}
	s.emitState(Idle)

	var err error
	switch mode {
	case stopGraceful:
		err = s.recognizer.Stop()
	case stopAbort:
		err = s.recognizer.Abort()
	}
	if err != nil {
		log.Printf("Capture: ignoring recognizer stop error: %v", err)
	}
}

func (s *Session) deliver(a *activation, o Outcome) {
	s.mu.Lock()
	if a.delivered {
		s.mu.Unlock()
		return
	}
	a.delivered = true
	s.mu.Unlock()

	if s.handler != nil {
		s.handler.CaptureEnded(o)
	}
}

func (s *Session) emitState(st State) {
	if s.opts.OnState != nil {
		s.opts.OnState(st)
	}
}

func (a *activation) OnStart() {
	s := a.s
	s.mu.Lock()
	ok := s.current == a && s.state == Attempting
	if ok {
		s.state = Listening
	}
	s.mu.Unlock()
	if ok {
		s.emitState(Listening)
	}
}

func (a *activation) OnResult(transcript string, confidence float64) {
	text := strings.TrimSpace(transcript)
	if text == "" {
		a.s.deliver(a, Outcome{Kind: OutcomeNoResult})
	} else {
		log.Printf("Capture: transcript received (%d chars, confidence %.2f)", len(text), confidence)
		a.s.deliver(a, Outcome{Kind: OutcomeTranscript, Text: text})
	}
	a.s.forceStop(a, stopGraceful)
}

func (a *activation) OnError(code string) {
	if IsSilent(code) {
		a.s.deliver(a, Outcome{Kind: OutcomeNoResult, Code: code})
	} else {
		log.Printf("Capture: recognition error: %s", code)
		a.s.deliver(a, Outcome{Kind: OutcomeError, Code: code, Err: fmt.Errorf("recognition error: %s", code)})
	}
	a.s.forceStop(a, stopAbort)
}

func (a *activation) OnEnd() {
	a.s.deliver(a, Outcome{Kind: OutcomeEnded})
	a.s.forceStop(a, stopAbort)
}
