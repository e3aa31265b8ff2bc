package transcriber

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/idealoop/idealoop/internal/capture"
	"github.com/idealoop/idealoop/internal/recording"
)

// AudioSource is the part of recording.Recorder the recognizer drives.
type AudioSource interface {
	Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error)
	Stop() error
}

type RecognizerOptions struct {
	// MaxDuration ends an utterance as if the user had released.
	MaxDuration       time.Duration
	TranscribeTimeout time.Duration
}

// Recognizer records one utterance per Start and transcribes it when the
// recording ends.
type Recognizer struct {
	source  AudioSource
	adapter BatchAdapter
	opts    RecognizerOptions

	mu  sync.Mutex
	cur *utterance
}

type utterance struct {
	listener capture.Listener
	aborted  bool
	cancel   context.CancelFunc
}

func NewRecognizer(source AudioSource, adapter BatchAdapter, opts RecognizerOptions) *Recognizer {
	if opts.TranscribeTimeout <= 0 {
		opts.TranscribeTimeout = 30 * time.Second
	}
	return &Recognizer{source: source, adapter: adapter, opts: opts}
}

func (r *Recognizer) Available() bool {
	return r.source != nil && r.adapter != nil
}

func (r *Recognizer) Start(ctx context.Context, l capture.Listener) error {
	r.mu.Lock()
	if r.cur != nil {
		r.mu.Unlock()
		return capture.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	frames, errs, err := r.source.Start(runCtx)
	if err != nil {
		r.mu.Unlock()
		cancel()
		if errors.Is(err, recording.ErrAlreadyRecording) {
			return capture.ErrAlreadyStarted
		}
		return err
	}
	u := &utterance{listener: l, cancel: cancel}
	r.cur = u
	r.mu.Unlock()

	go r.run(runCtx, u, frames, errs)
	return nil
}

// Stop ends recording; the utterance is still transcribed and delivered.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	running := r.cur != nil
	r.mu.Unlock()
	if !running {
		return nil
	}
	return r.source.Stop()
}

// Abort ends recording and discards the utterance.
func (r *Recognizer) Abort() error {
	r.mu.Lock()
	u := r.cur
	if u != nil {
		u.aborted = true
	}
	r.mu.Unlock()
	if u == nil {
		return nil
	}
	u.cancel()
	return r.source.Stop()
}

func (r *Recognizer) isAborted(u *utterance) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return u.aborted
}

func (r *Recognizer) run(ctx context.Context, u *utterance, frames <-chan recording.AudioFrame, errs <-chan error) {
	defer u.cancel()

	u.listener.OnStart()

	var timeout <-chan time.Time
	if r.opts.MaxDuration > 0 {
		timer := time.NewTimer(r.opts.MaxDuration)
		defer timer.Stop()
		timeout = timer.C
	}

	var audio []byte
	var captureErr error
	for frames != nil {
		select {
		case f, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			audio = append(audio, f.Data...)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if captureErr == nil {
				captureErr = err
			}
		case <-timeout:
			log.Printf("Recognizer: max duration %v reached", r.opts.MaxDuration)
			timeout = nil
			_ = r.source.Stop()
		}
	}
	// the error channel may still hold a failure reported just before close
	if errs != nil {
		if err, ok := <-errs; ok && captureErr == nil {
			captureErr = err
		}
	}

	code, text := r.finish(ctx, u, audio, captureErr)

	r.mu.Lock()
	r.cur = nil
	r.mu.Unlock()

	switch {
	case code != "":
		u.listener.OnError(code)
	case text != "":
		u.listener.OnResult(text, 1)
	}
	u.listener.OnEnd()
}

func (r *Recognizer) finish(ctx context.Context, u *utterance, audio []byte, captureErr error) (code, text string) {
	if r.isAborted(u) {
		return capture.CodeAborted, ""
	}
	if captureErr != nil {
		log.Printf("Recognizer: capture failed: %v", captureErr)
		return capture.CodeAudioCapture, ""
	}
	if len(audio) == 0 {
		return capture.CodeNoSpeech, ""
	}

	tctx, cancel := context.WithTimeout(ctx, r.opts.TranscribeTimeout)
	defer cancel()
	out, err := r.adapter.Transcribe(tctx, audio)
	if err != nil {
		if r.isAborted(u) {
			return capture.CodeAborted, ""
		}
		log.Printf("Recognizer: transcription failed: %v", err)
		return capture.CodeNetwork, ""
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return capture.CodeNoSpeech, ""
	}
	return "", out
}
