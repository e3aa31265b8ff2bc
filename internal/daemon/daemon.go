package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/idealoop/idealoop/internal/bus"
	"github.com/idealoop/idealoop/internal/capture"
	"github.com/idealoop/idealoop/internal/config"
	"github.com/idealoop/idealoop/internal/injection"
	"github.com/idealoop/idealoop/internal/llm"
	"github.com/idealoop/idealoop/internal/notify"
	"github.com/idealoop/idealoop/internal/reconciler"
	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/store"
)

const subscriberBuffer = 256

// Deps are the collaborators the daemon wires together.
type Deps struct {
	Summarizer llm.Summarizer
	Generator  llm.Generator
	Store      store.Store
	Recognizer capture.Recognizer
	Prober     capture.PermissionProber
	Injector   injection.Injector
	Notifier   notify.Notifier
	Session    session.Options
}

type Daemon struct {
	ctrl     *session.Controller
	capture  *capture.Session
	releases *capture.ReleaseHub
	injector injection.Injector

	mu       sync.RWMutex
	notifier notify.Notifier
	subs     map[*subscriber]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup
}

// subscriber queues events for one connection. A lossless subscriber keeps
// every event; any other drops events once subscriberBuffer are waiting and
// is sent a resync event in their place.
type subscriber struct {
	lossless bool
	ready    chan struct{}

	mu      sync.Mutex
	queue   []bus.Event
	dropped bool
	closed  bool
}

func newSubscriber(lossless bool) *subscriber {
	return &subscriber{lossless: lossless, ready: make(chan struct{}, 1)}
}

// push never blocks. It reports false when the event was dropped.
func (s *subscriber) push(ev bus.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if !s.lossless && len(s.queue) >= subscriberBuffer {
		s.dropped = true
		return false
	}
	s.queue = append(s.queue, ev)
	s.signal()
	return true
}

// drain takes everything queued so far.
func (s *subscriber) drain() (evs []bus.Event, closed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	evs, s.queue = s.queue, nil
	if s.dropped {
		s.dropped = false
		evs = append(evs, bus.Event{Event: bus.EvResync})
	}
	return evs, s.closed
}

func (s *subscriber) close() {
	s.mu.Lock()
	s.closed = true
	s.signal()
	s.mu.Unlock()
}

func (s *subscriber) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func New(deps Deps) *Daemon {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		releases: capture.NewReleaseHub(),
		injector: deps.Injector,
		notifier: deps.Notifier,
		subs:     make(map[*subscriber]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}

	opts := deps.Session
	opts.Observer = d
	d.ctrl = session.NewController(deps.Summarizer, deps.Generator, reconciler.New(deps.Store), opts)
	d.capture = capture.NewSession(deps.Recognizer, d.releases, d, capture.Options{
		Blocked: d.ctrl.HistoryOpen,
		Prober:  deps.Prober,
		OnState: d.captureState,
	})
	return d
}

// Controller exposes the session controller owned by the daemon.
func (d *Daemon) Controller() *session.Controller { return d.ctrl }

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}

	if err := bus.CreatePidFile(); err != nil {
		ln.Close()
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	return d.Serve(ln)
}

// Serve accepts connections on ln until the daemon is stopped, then shuts
// the session down.
func (d *Daemon) Serve(ln net.Listener) error {
	defer ln.Close()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Daemon started, listening on socket")

	if _, err := d.ctrl.RefreshHistory(d.ctx); err != nil {
		log.Printf("Daemon: initial history load failed: %v", err)
	}

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				d.shutdown()
				return nil
			}
			log.Printf("Accept error: %v", err)
			d.cancel()
			d.shutdown()
			return fmt.Errorf("accept failed: %w", err)
		}
		d.conns.Add(1)
		go func() {
			defer d.conns.Done()
			d.handle(c)
		}()
	}
}

// Stop asks Serve to return.
func (d *Daemon) Stop() { d.cancel() }

func (d *Daemon) shutdown() {
	d.capture.Close()
	d.ctrl.Close()
	d.conns.Wait()
}

// ApplyConfig takes the parts of a reloaded configuration that can change
// while running.
func (d *Daemon) ApplyConfig(cfg *config.Config) {
	d.ctrl.SetScriptOptions(cfg.Script.VideoForm, cfg.Script.VideoLength)

	d.mu.Lock()
	d.notifier = notify.New(cfg.NotificationKind(), cfg.Notifications.Messages.Resolve())
	d.mu.Unlock()

	d.notify(notify.MsgConfigReloaded, "")
	log.Printf("Daemon: configuration applied")
}

func (d *Daemon) notify(mt notify.MessageType, detail string) {
	d.mu.RLock()
	n := d.notifier
	d.mu.RUnlock()
	go n.Send(mt, detail)
}

func (d *Daemon) subscribe(lossless bool) *subscriber {
	s := newSubscriber(lossless)
	d.mu.Lock()
	d.subs[s] = struct{}{}
	d.mu.Unlock()
	return s
}

func (d *Daemon) unsubscribe(s *subscriber) {
	d.mu.Lock()
	delete(d.subs, s)
	d.mu.Unlock()
	s.close()
}

// broadcast never blocks: it runs under the controller lock.
func (d *Daemon) broadcast(ev bus.Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for s := range d.subs {
		if !s.push(ev) {
			log.Printf("Daemon: subscriber too slow, dropped %s event", ev.Event)
		}
	}
}

func (d *Daemon) captureState(st capture.State) {
	d.broadcast(bus.Event{Event: bus.EvCapture, State: string(st)})
	if st == capture.Listening {
		d.notify(notify.MsgCaptureStarted, "")
	}
}

// CaptureEnded implements capture.Handler.
func (d *Daemon) CaptureEnded(o capture.Outcome) {
	d.ctrl.CaptureEnded(o)
}

func (d *Daemon) SummaryChanged(summary string) {
	d.broadcast(bus.Event{Event: bus.EvSummary, Text: summary})
	if summary != "" {
		d.notify(notify.MsgSummaryReady, summary)
	}
}

func (d *Daemon) Fragment(text string) {
	d.broadcast(bus.Event{Event: bus.EvFragment, Text: text})
}

func (d *Daemon) GenerationChanged(state session.GenerationState) {
	d.broadcast(bus.Event{Event: bus.EvGeneration, State: string(state)})
}

func (d *Daemon) ScriptCompleted(recordID string) {
	d.broadcast(bus.Event{Event: bus.EvCompleted, RecordID: recordID})
	d.notify(notify.MsgScriptSaved, "")
}

func (d *Daemon) RecordLoaded(recordID string) {
	d.broadcast(bus.Event{Event: bus.EvLoaded, RecordID: recordID})
}

func (d *Daemon) Failed(code session.ErrorCode, err error) {
	text := ""
	if err != nil {
		text = err.Error()
	}
	d.broadcast(bus.Event{Event: bus.EvFailed, Code: string(code), Text: text})
	d.notify(messageFor(code), "")
	log.Printf("Daemon: %s failure: %v", code, err)
}

func messageFor(code session.ErrorCode) notify.MessageType {
	switch code {
	case session.CodeCaptureUnavailable:
		return notify.MsgCaptureUnavailable
	case session.CodePermissionDenied:
		return notify.MsgPermissionDenied
	case session.CodeRecognition:
		return notify.MsgRecognitionFailed
	case session.CodeSummarize:
		return notify.MsgSummarizeFailed
	case session.CodePersist:
		return notify.MsgPersistFailed
	case session.CodeHistory:
		return notify.MsgHistoryFailed
	default:
		return notify.MsgGenerateFailed
	}
}

func (d *Daemon) begin() (bool, error) {
	started, err := d.capture.Begin(d.ctx)
	if errors.Is(err, capture.ErrUnavailable) {
		d.ctrl.ReportFailure(session.CodeCaptureUnavailable, err)
	}
	return started, err
}
