package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/idealoop/idealoop/internal/capture"
	"github.com/idealoop/idealoop/internal/reconciler"
	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/testutil"
)

type fixture struct {
	ctrl  *session.Controller
	sum   *testutil.FakeSummarizer
	gen   *testutil.FakeGenerator
	store *testutil.MemoryStore
	obs   *testutil.RecordingObserver
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sum:   &testutil.FakeSummarizer{},
		gen:   &testutil.FakeGenerator{},
		store: testutil.NewMemoryStore(),
		obs:   &testutil.RecordingObserver{},
		now:   time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
	recon := reconciler.New(f.store).WithClock(func() time.Time { return f.now })
	f.ctrl = session.NewController(f.sum, f.gen, recon, session.Options{
		UserID:      "user-1",
		VideoForm:   "short-form vertical video",
		VideoLength: "60 seconds",
		Observer:    f.obs,
	})
	t.Cleanup(f.ctrl.Close)
	return f
}

func TestAcceptChunk_JoinsChunks(t *testing.T) {
	tests := []struct {
		name   string
		chunks []string
		want   string
	}{
		{"single", []string{"a trip to Japan"}, "a trip to Japan"},
		{"two", []string{"a trip to Japan", "focus on food"}, "a trip to Japan\n\nfocus on food"},
		{"trimmed", []string{"  one  ", "\ttwo\n"}, "one\n\ntwo"},
		{"blank skipped", []string{"one", "   ", "two"}, "one\n\ntwo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			for _, c := range tt.chunks {
				if err := f.ctrl.AcceptChunk(context.Background(), c); err != nil {
					t.Fatalf("AcceptChunk(%q): %v", c, err)
				}
			}
			snap := f.ctrl.Snapshot()
			if snap.Text != tt.want {
				t.Errorf("text = %q, want %q", snap.Text, tt.want)
			}
			if snap.Summary != "summary of "+tt.want {
				t.Errorf("summary = %q", snap.Summary)
			}
		})
	}
}

func TestAcceptChunk_LastIssuedWins(t *testing.T) {
	orders := []struct {
		name       string
		replyFirst string
	}{
		{"earlier finishes last", "B"},
		{"earlier finishes first", "A"},
	}

	for _, o := range orders {
		t.Run(o.name, func(t *testing.T) {
			f := newFixture(t)
			f.sum.Gated = true
			ctx := context.Background()

			errA := make(chan error, 1)
			go func() { errA <- f.ctrl.AcceptChunk(ctx, "idea A") }()
			callA := f.sum.NextCall(t)

			errB := make(chan error, 1)
			go func() { errB <- f.ctrl.AcceptChunk(ctx, "more B") }()
			callB := f.sum.NextCall(t)

			if o.replyFirst == "B" {
				callB.Reply("Summary B", nil)
				if err := <-errB; err != nil {
					t.Fatalf("B: %v", err)
				}
				callA.Reply("Summary A", nil)
				if err := <-errA; err != nil {
					t.Fatalf("A: %v", err)
				}
			} else {
				callA.Reply("Summary A", nil)
				if err := <-errA; err != nil {
					t.Fatalf("A: %v", err)
				}
				callB.Reply("Summary B", nil)
				if err := <-errB; err != nil {
					t.Fatalf("B: %v", err)
				}
			}

			if got := f.ctrl.Snapshot().Summary; got != "Summary B" {
				t.Errorf("summary = %q, want Summary B", got)
			}
			summaries := f.obs.Of("summary")
			if len(summaries) != 1 || summaries[0] != "Summary B" {
				t.Errorf("committed summaries = %q, want only Summary B", summaries)
			}
			if callB.Input != "idea A\n\nmore B" {
				t.Errorf("B input = %q", callB.Input)
			}
		})
	}
}

func TestAcceptChunk_EmptyResummarizes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.ctrl.AcceptChunk(ctx, ""); err != nil {
		t.Fatalf("AcceptChunk on empty buffer: %v", err)
	}
	if n := len(f.sum.Inputs()); n != 0 {
		t.Errorf("summarizer called %d times for an empty buffer", n)
	}

	if err := f.ctrl.AcceptChunk(ctx, "idea"); err != nil {
		t.Fatal(err)
	}
	if err := f.ctrl.AcceptChunk(ctx, ""); err != nil {
		t.Fatal(err)
	}
	inputs := f.sum.Inputs()
	if len(inputs) != 2 || inputs[0] != "idea" || inputs[1] != "idea" {
		t.Errorf("summarizer inputs = %q", inputs)
	}
	if got := f.ctrl.Snapshot().Text; got != "idea" {
		t.Errorf("text = %q, want unchanged", got)
	}
}

func TestAcceptChunk_FallbackSummary(t *testing.T) {
	f := newFixture(t)
	f.sum.Fn = func(string) (string, error) { return "  ", nil }

	if err := f.ctrl.AcceptChunk(context.Background(), "hmm"); err != nil {
		t.Fatal(err)
	}
	if got := f.ctrl.Snapshot().Summary; got != session.DefaultFallbackSummary {
		t.Errorf("summary = %q, want fallback", got)
	}
}

func TestAcceptChunk_SummarizeError(t *testing.T) {
	f := newFixture(t)
	f.sum.Fn = func(string) (string, error) { return "", errors.New("rate limited") }

	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err == nil {
		t.Fatal("expected error")
	}
	snap := f.ctrl.Snapshot()
	if snap.SummaryError == "" {
		t.Error("summary error not recorded")
	}
	if snap.Text != "idea" {
		t.Errorf("text = %q, chunk must be kept", snap.Text)
	}
	if failed := f.obs.Of("failed"); len(failed) != 1 || failed[0] != string(session.CodeSummarize) {
		t.Errorf("failures = %q", failed)
	}

	f.sum.Fn = nil
	if err := f.ctrl.AcceptChunk(context.Background(), ""); err != nil {
		t.Fatal(err)
	}
	if snap := f.ctrl.Snapshot(); snap.SummaryError != "" || snap.Summary != "summary of idea" {
		t.Errorf("retry did not clear the error: %+v", snap)
	}
}

func TestSubmitChunk_SummarizesInBackground(t *testing.T) {
	f := newFixture(t)
	f.ctrl.SubmitChunk("voice idea")

	if got := f.ctrl.Snapshot().Text; got != "voice idea" {
		t.Errorf("text = %q, want appended synchronously", got)
	}
	testutil.WaitForCondition(t, func() bool {
		return f.ctrl.Snapshot().Summary == "summary of voice idea"
	}, 2*time.Second)
	if f.ctrl.Snapshot().Summarizing {
		t.Error("still summarizing after commit")
	}
}

func TestNewIdea_ClearsSession(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"script"}
	ctx := context.Background()
	if err := f.ctrl.AcceptChunk(ctx, "idea"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Generate(ctx); err != nil {
		t.Fatal(err)
	}

	f.ctrl.NewIdea()
	snap := f.ctrl.Snapshot()
	if snap.Text != "" || snap.Summary != "" || snap.Script != "" || snap.ActiveRecordID != "" {
		t.Errorf("session not cleared: %+v", snap)
	}
	if !snap.ExplicitlyReset {
		t.Error("reset latch not set")
	}
	if snap.Generation != session.GenIdle {
		t.Errorf("generation = %s, want idle", snap.Generation)
	}
}

func TestNewIdea_DiscardsInFlightSummary(t *testing.T) {
	f := newFixture(t)
	f.sum.Gated = true

	done := make(chan error, 1)
	go func() { done <- f.ctrl.AcceptChunk(context.Background(), "old idea") }()
	call := f.sum.NextCall(t)

	f.ctrl.NewIdea()
	call.Reply("Old summary", nil)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := f.ctrl.Snapshot().Summary; got != "" {
		t.Errorf("summary = %q, stale result committed after reset", got)
	}
}

func TestCaptureEnded(t *testing.T) {
	f := newFixture(t)
	tr := captureOutcome("transcript", "spoken idea", "", nil)
	f.ctrl.CaptureEnded(tr)

	testutil.WaitForCondition(t, func() bool {
		return f.ctrl.Snapshot().Summary == "summary of spoken idea"
	}, 2*time.Second)

	f.ctrl.CaptureEnded(captureOutcome("no_result", "", "no-speech", nil))
	f.ctrl.CaptureEnded(captureOutcome("ended", "", "", nil))
	if failed := f.obs.Of("failed"); len(failed) != 0 {
		t.Errorf("silent outcomes reported failures: %q", failed)
	}

	f.ctrl.CaptureEnded(captureOutcome("error", "", "network", errors.New("recognition error: network")))
	f.ctrl.CaptureEnded(captureOutcome("error", "", "not-allowed", errors.New("denied")))
	want := []string{string(session.CodeRecognition), string(session.CodePermissionDenied)}
	failed := f.obs.Of("failed")
	if len(failed) != len(want) {
		t.Fatalf("failures = %q, want %q", failed, want)
	}
	for i := range want {
		if failed[i] != want[i] {
			t.Errorf("failure[%d] = %s, want %s", i, failed[i], want[i])
		}
	}
	if got := f.ctrl.Snapshot().Text; got != "spoken idea" {
		t.Errorf("text = %q, errors must not change the buffer", got)
	}
}

func captureOutcome(kind, text, code string, err error) capture.Outcome {
	return capture.Outcome{Kind: capture.OutcomeKind(kind), Text: text, Code: code, Err: err}
}
