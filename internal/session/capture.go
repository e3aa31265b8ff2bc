package session

import (
	"errors"
	"log"

	"github.com/idealoop/idealoop/internal/capture"
)

// CaptureEnded routes a capture outcome into the session. Transcripts are
// appended immediately and summarized in the background.
func (c *Controller) CaptureEnded(o capture.Outcome) {
	switch o.Kind {
	case capture.OutcomeTranscript:
		c.SubmitChunk(o.Text)
	case capture.OutcomeError:
		code := CodeRecognition
		if errors.Is(o.Err, capture.ErrPermissionDenied) || o.Code == capture.CodeNotAllowed {
			code = CodePermissionDenied
		}
		c.ReportFailure(code, o.Err)
	default:
		log.Printf("Session: capture ended without a transcript (%s %s)", o.Kind, o.Code)
	}
}

// ReportFailure forwards a failure from outside the controller to the
// Observer.
func (c *Controller) ReportFailure(code ErrorCode, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.obs.Failed(code, err)
}
