package capture

import (
	"context"
	"errors"
)

var (
	ErrUnavailable      = errors.New("speech recognition unavailable")
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrAlreadyStarted   = errors.New("recognition already started")
)

// Recognition error codes reported through Listener.OnError.
const (
	CodeNoSpeech     = "no-speech"
	CodeAborted      = "aborted"
	CodeAudioCapture = "audio-capture"
	CodeNetwork      = "network"
	CodeNotAllowed   = "not-allowed"
)

// IsSilent reports whether a recognition error code is expected and should
// not be shown to the user.
func IsSilent(code string) bool {
	return code == CodeNoSpeech || code == CodeAborted
}

// Listener receives the recognition lifecycle callbacks of one Start call.
type Listener interface {
	OnStart()
	OnResult(transcript string, confidence float64)
	OnError(code string)
	OnEnd()
}

// Recognizer is the platform speech-recognition capability.
//
// Stop ends capture gracefully: a pending result is still delivered before
// OnEnd. Abort ends immediately and discards any pending result. Start
// returns ErrAlreadyStarted when a previous run has not finished.
type Recognizer interface {
	Available() bool
	Start(ctx context.Context, l Listener) error
	Stop() error
	Abort() error
}

// PermissionProber checks microphone access without keeping the device open.
type PermissionProber interface {
	Probe(ctx context.Context) error
}
