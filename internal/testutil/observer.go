package testutil

import (
	"fmt"
	"strings"
	"sync"

	"github.com/idealoop/idealoop/internal/notify"
	"github.com/idealoop/idealoop/internal/session"
)

// RecordingObserver logs every session event as "kind:value".
type RecordingObserver struct {
	mu     sync.Mutex
	events []string
	errs   []error
}

func (o *RecordingObserver) add(kind, value string) {
	o.mu.Lock()
	o.events = append(o.events, kind+":"+value)
	o.mu.Unlock()
}

func (o *RecordingObserver) SummaryChanged(summary string) { o.add("summary", summary) }

func (o *RecordingObserver) Fragment(text string) { o.add("fragment", text) }

func (o *RecordingObserver) GenerationChanged(state session.GenerationState) {
	o.add("generation", string(state))
}

func (o *RecordingObserver) ScriptCompleted(recordID string) { o.add("completed", recordID) }

func (o *RecordingObserver) RecordLoaded(recordID string) { o.add("loaded", recordID) }

func (o *RecordingObserver) Failed(code session.ErrorCode, err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
	o.add("failed", string(code))
}

func (o *RecordingObserver) Events() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.events...)
}

// Of returns the values of events of one kind, in order.
func (o *RecordingObserver) Of(kind string) []string {
	var out []string
	for _, e := range o.Events() {
		if v, ok := strings.CutPrefix(e, kind+":"); ok {
			out = append(out, v)
		}
	}
	return out
}

// RecordingNotifier collects notifications as "type|detail".
type RecordingNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (n *RecordingNotifier) Send(mt notify.MessageType, detail string) {
	n.mu.Lock()
	n.sent = append(n.sent, fmt.Sprintf("%s|%s", mt, detail))
	n.mu.Unlock()
}

func (n *RecordingNotifier) Sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}
