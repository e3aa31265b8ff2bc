package testutil

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/idealoop/idealoop/internal/llm"
)

type summaryReply struct {
	out string
	err error
}

// SummarizeCall is one blocked Summarize invocation of a gated
// FakeSummarizer.
type SummarizeCall struct {
	Input string
	reply chan summaryReply
}

// Reply unblocks the call with the given result.
func (c *SummarizeCall) Reply(out string, err error) {
	c.reply <- summaryReply{out: out, err: err}
}

// FakeSummarizer answers Summarize with Fn, or with "summary of <input>" when
// Fn is nil. When Gated, every call blocks until the test replies to it.
type FakeSummarizer struct {
	Gated bool
	Fn    func(input string) (string, error)

	once  sync.Once
	calls chan *SummarizeCall

	mu     sync.Mutex
	inputs []string
}

func (f *FakeSummarizer) queue() chan *SummarizeCall {
	f.once.Do(func() { f.calls = make(chan *SummarizeCall, 32) })
	return f.calls
}

func (f *FakeSummarizer) Summarize(ctx context.Context, input string) (string, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, input)
	f.mu.Unlock()

	if !f.Gated {
		if f.Fn != nil {
			return f.Fn(input)
		}
		return "summary of " + input, nil
	}

	call := &SummarizeCall{Input: input, reply: make(chan summaryReply, 1)}
	f.queue() <- call
	select {
	case r := <-call.reply:
		return r.out, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// NextCall waits for the next gated call.
func (f *FakeSummarizer) NextCall(t *testing.T) *SummarizeCall {
	t.Helper()
	select {
	case c := <-f.queue():
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a summarize call")
		return nil
	}
}

func (f *FakeSummarizer) Inputs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.inputs...)
}

type streamItem struct {
	frag string
	err  error
}

// FakeStream is an llm.FragmentStream fed by the test.
type FakeStream struct {
	Request llm.ScriptRequest

	ctx   context.Context
	items chan streamItem

	mu     sync.Mutex
	closed bool
}

func newFakeStream(ctx context.Context, req llm.ScriptRequest, size int) *FakeStream {
	return &FakeStream{Request: req, ctx: ctx, items: make(chan streamItem, max(size, 64))}
}

func (s *FakeStream) Send(frag string) { s.items <- streamItem{frag: frag} }

// Finish ends the stream successfully.
func (s *FakeStream) Finish() { s.items <- streamItem{err: io.EOF} }

func (s *FakeStream) Fail(err error) { s.items <- streamItem{err: err} }

func (s *FakeStream) Recv() (string, error) {
	select {
	case it := <-s.items:
		return it.frag, it.err
	case <-s.ctx.Done():
		return "", s.ctx.Err()
	}
}

func (s *FakeStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *FakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Cancelled reports whether the generation that opened the stream was
// cancelled.
func (s *FakeStream) Cancelled() bool { return s.ctx.Err() != nil }

// FakeGenerator hands every opened stream to the test. With Script set, each
// stream is pre-filled with those fragments and finished.
type FakeGenerator struct {
	Err    error
	Script []string

	once    sync.Once
	streams chan *FakeStream
}

func (g *FakeGenerator) queue() chan *FakeStream {
	g.once.Do(func() { g.streams = make(chan *FakeStream, 32) })
	return g.streams
}

func (g *FakeGenerator) StreamScript(ctx context.Context, req llm.ScriptRequest) (llm.FragmentStream, error) {
	if g.Err != nil {
		return nil, g.Err
	}
	s := newFakeStream(ctx, req, len(g.Script)+1)
	if g.Script != nil {
		for _, frag := range g.Script {
			s.Send(frag)
		}
		s.Finish()
	}
	g.queue() <- s
	return s, nil
}

// NextStream waits for the next opened stream.
func (g *FakeGenerator) NextStream(t *testing.T) *FakeStream {
	t.Helper()
	select {
	case s := <-g.queue():
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a script stream")
		return nil
	}
}
