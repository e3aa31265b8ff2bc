package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/store"
	"github.com/idealoop/idealoop/internal/testutil"
)

type genResult struct {
	res session.Result
	err error
}

func (f *fixture) generateAsync() <-chan genResult {
	ch := make(chan genResult, 1)
	go func() {
		res, err := f.ctrl.Generate(context.Background())
		ch <- genResult{res, err}
	}()
	return ch
}

func (f *fixture) waitScript(t *testing.T, want string) {
	t.Helper()
	testutil.WaitForCondition(t, func() bool {
		return f.ctrl.Snapshot().Script == want
	}, 2*time.Second)
}

func wait(t *testing.T, ch <-chan genResult) genResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("Generate did not return")
		return genResult{}
	}
}

func TestGenerate_NothingToGenerate(t *testing.T) {
	f := newFixture(t)
	if _, err := f.ctrl.Generate(context.Background()); !errors.Is(err, session.ErrNothingToGenerate) {
		t.Errorf("Generate() error = %v, want ErrNothingToGenerate", err)
	}
}

func TestGenerate_StreamsAndPersists(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"Hook: ", "Tokyo at night"}
	ctx := context.Background()
	if err := f.ctrl.AcceptChunk(ctx, "a trip to Japan"); err != nil {
		t.Fatal(err)
	}

	res, err := f.ctrl.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.Script != "Hook: Tokyo at night" || res.RecordID == "" || res.Cancelled {
		t.Errorf("result = %+v", res)
	}

	stream := f.gen.NextStream(t)
	if stream.Request.ContextSummary != "summary of a trip to Japan" {
		t.Errorf("context summary = %q", stream.Request.ContextSummary)
	}
	if stream.Request.FullContext != "a trip to Japan" {
		t.Errorf("full context = %q", stream.Request.FullContext)
	}
	if stream.Request.VideoForm != "short-form vertical video" || stream.Request.VideoLength != "60 seconds" {
		t.Errorf("video options = %q / %q", stream.Request.VideoForm, stream.Request.VideoLength)
	}
	if !stream.Closed() {
		t.Error("stream not closed")
	}

	snap := f.ctrl.Snapshot()
	if snap.ActiveRecordID != res.RecordID || snap.Generation != session.GenCompleted {
		t.Errorf("snapshot = %+v", snap)
	}
	recs := f.store.All()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want 1", len(recs))
	}
	if recs[0].Script != res.Script || recs[0].FullConversation != "a trip to Japan" || recs[0].UserID != "user-1" {
		t.Errorf("record = %+v", recs[0])
	}

	frags := f.obs.Of("fragment")
	if len(frags) != 2 || frags[0] != "Hook: " || frags[1] != "Tokyo at night" {
		t.Errorf("fragments = %q", frags)
	}
	if done := f.obs.Of("completed"); len(done) != 1 || done[0] != res.RecordID {
		t.Errorf("completed = %q", done)
	}
}

func TestGenerate_SummarizesInlineWhenMissing(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"Day 1 in Tokyo"}
	calls := 0
	f.sum.Fn = func(string) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("timeout")
		}
		return "Trip to Japan", nil
	}
	ctx := context.Background()
	_ = f.ctrl.AcceptChunk(ctx, "I want to film a trip to Japan")
	if f.ctrl.Snapshot().Summary != "" {
		t.Fatal("precondition: summary should be empty")
	}

	res, err := f.ctrl.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	snap := f.ctrl.Snapshot()
	if snap.Summary != "Trip to Japan" {
		t.Errorf("summary = %q", snap.Summary)
	}
	if snap.ActiveRecordID == "" || snap.ActiveRecordID != res.RecordID {
		t.Errorf("active record = %q, result = %q", snap.ActiveRecordID, res.RecordID)
	}
	if got := f.gen.NextStream(t).Request.ContextSummary; got != "Trip to Japan" {
		t.Errorf("stream context summary = %q", got)
	}
	rec, err := f.store.Get(ctx, res.RecordID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Summary != "Trip to Japan" {
		t.Errorf("persisted summary = %q", rec.Summary)
	}
}

func TestGenerate_RapidRegenerateKeepsOnlySecond(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}

	first := f.generateAsync()
	s1 := f.gen.NextStream(t)
	s1.Send("old ")
	f.waitScript(t, "old ")

	second := f.generateAsync()
	s2 := f.gen.NextStream(t)

	r1 := wait(t, first)
	if r1.err != nil || !r1.res.Cancelled {
		t.Errorf("first Generate = %+v, %v; want cancelled", r1.res, r1.err)
	}
	if !s1.Cancelled() {
		t.Error("first stream not cancelled")
	}
	s1.Send("stale")

	s2.Send("new ")
	s2.Send("script")
	s2.Finish()
	r2 := wait(t, second)
	if r2.err != nil {
		t.Fatalf("second Generate: %v", r2.err)
	}

	snap := f.ctrl.Snapshot()
	if snap.Script != "new script" {
		t.Errorf("script = %q, want only the second stream", snap.Script)
	}
	recs := f.store.All()
	if len(recs) != 1 {
		t.Fatalf("records = %d, want exactly 1", len(recs))
	}
	if recs[0].Script != "new script" || recs[0].ID != snap.ActiveRecordID {
		t.Errorf("record = %+v", recs[0])
	}
}

func TestGenerate_CancelKeepsPartial(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}

	ch := f.generateAsync()
	s := f.gen.NextStream(t)
	s.Send("partial")
	f.waitScript(t, "partial")

	f.ctrl.CancelGeneration()
	r := wait(t, ch)
	if r.err != nil || !r.res.Cancelled {
		t.Errorf("Generate = %+v, %v; want cancelled", r.res, r.err)
	}

	snap := f.ctrl.Snapshot()
	if snap.Script != "partial" || snap.Generation != session.GenCancelled {
		t.Errorf("snapshot = %+v", snap)
	}
	if n := len(f.store.All()); n != 0 {
		t.Errorf("cancelled generation persisted %d records", n)
	}
}

func TestGenerate_CallerContextCancelled(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan genResult, 1)
	go func() {
		res, err := f.ctrl.Generate(ctx)
		ch <- genResult{res, err}
	}()
	f.gen.NextStream(t)
	cancel()

	r := wait(t, ch)
	if r.err != nil || !r.res.Cancelled {
		t.Errorf("Generate = %+v, %v; want cancelled", r.res, r.err)
	}
	if got := f.ctrl.Snapshot().Generation; got != session.GenCancelled {
		t.Errorf("generation = %s, want cancelled", got)
	}
}

func TestGenerate_StreamErrorKeepsPartial(t *testing.T) {
	f := newFixture(t)
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}

	ch := f.generateAsync()
	s := f.gen.NextStream(t)
	s.Send("half a ")
	f.waitScript(t, "half a ")
	s.Fail(errors.New("connection reset"))

	r := wait(t, ch)
	if r.err == nil {
		t.Fatal("expected error")
	}
	if r.res.Script != "half a " {
		t.Errorf("result script = %q", r.res.Script)
	}
	snap := f.ctrl.Snapshot()
	if snap.Script != "half a " || snap.Generation != session.GenErrored {
		t.Errorf("snapshot = %+v", snap)
	}
	if failed := f.obs.Of("failed"); len(failed) != 1 || failed[0] != string(session.CodeGenerate) {
		t.Errorf("failures = %q", failed)
	}
	if n := len(f.store.All()); n != 0 {
		t.Errorf("failed generation persisted %d records", n)
	}
}

func TestGenerate_OpenStreamError(t *testing.T) {
	f := newFixture(t)
	f.gen.Err = errors.New("401 unauthorized")
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}

	if _, err := f.ctrl.Generate(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if got := f.ctrl.Snapshot().Generation; got != session.GenErrored {
		t.Errorf("generation = %s, want errored", got)
	}
}

func TestGenerate_PersistFailureKeepsScript(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"the script"}
	f.store.CreateErr = errors.New("disk full")
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}

	res, err := f.ctrl.Generate(context.Background())
	if err == nil {
		t.Fatal("expected persist error")
	}
	if res.Script != "the script" {
		t.Errorf("result script = %q", res.Script)
	}
	snap := f.ctrl.Snapshot()
	if snap.Script != "the script" || snap.ActiveRecordID != "" {
		t.Errorf("snapshot = %+v", snap)
	}
	if failed := f.obs.Of("failed"); len(failed) != 1 || failed[0] != string(session.CodePersist) {
		t.Errorf("failures = %q", failed)
	}
}

func TestGenerate_RegenerateUpdatesSameRecord(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"v1"}
	ctx := context.Background()
	if err := f.ctrl.AcceptChunk(ctx, "idea"); err != nil {
		t.Fatal(err)
	}

	first, err := f.ctrl.Generate(ctx)
	if err != nil {
		t.Fatal(err)
	}
	f.gen.Script = []string{"v2"}
	second, err := f.ctrl.Generate(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if first.RecordID != second.RecordID {
		t.Errorf("record ids differ: %s vs %s", first.RecordID, second.RecordID)
	}
	creates, updates := f.store.Counts()
	if creates != 1 || updates != 1 {
		t.Errorf("creates=%d updates=%d, want 1/1", creates, updates)
	}
	rec, _ := f.store.Get(ctx, second.RecordID)
	if rec.Script != "v2" {
		t.Errorf("persisted script = %q", rec.Script)
	}
}

func TestGenerate_NewChunkInvalidatesScript(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"script"}
	ctx := context.Background()
	if err := f.ctrl.AcceptChunk(ctx, "idea"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Generate(ctx); err != nil {
		t.Fatal(err)
	}

	if err := f.ctrl.AcceptChunk(ctx, "another angle"); err != nil {
		t.Fatal(err)
	}
	snap := f.ctrl.Snapshot()
	if snap.Script != "" || snap.ActiveRecordID != "" {
		t.Errorf("snapshot = %+v, want script and record link cleared", snap)
	}
}

func TestSetScriptOptions(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"x"}
	f.ctrl.SetScriptOptions("YouTube long-form", "10 minutes")
	if err := f.ctrl.AcceptChunk(context.Background(), "idea"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.ctrl.Generate(context.Background()); err != nil {
		t.Fatal(err)
	}
	req := f.gen.NextStream(t).Request
	if req.VideoForm != "YouTube long-form" || req.VideoLength != "10 minutes" {
		t.Errorf("request = %+v", req)
	}
}

func TestGenerate_ChangeDuringSaveKeepsNewState(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		change   func(t *testing.T, f *fixture)
		wantText string
		wantID   string
	}{
		{
			name: "new chunk",
			change: func(t *testing.T, f *fixture) {
				if err := f.ctrl.AcceptChunk(ctx, "a totally different idea"); err != nil {
					t.Fatal(err)
				}
			},
			wantText: "coffee vlog\n\na totally different idea",
		},
		{
			name:   "new idea",
			change: func(t *testing.T, f *fixture) { f.ctrl.NewIdea() },
		},
		{
			name: "history selection",
			change: func(t *testing.T, f *fixture) {
				if _, err := f.ctrl.SelectRecord(ctx, "old-1"); err != nil {
					t.Fatal(err)
				}
			},
			wantText: "old notes",
			wantID:   "old-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.gen.Script = []string{"Hook"}
			if err := f.ctrl.AcceptChunk(ctx, "coffee vlog"); err != nil {
				t.Fatal(err)
			}
			f.store.Seed(store.Record{
				ID:               "old-1",
				UserID:           "user-1",
				Summary:          "Old idea",
				Script:           "Old script",
				FullConversation: "old notes",
			})

			saving := make(chan struct{}, 1)
			release := make(chan struct{})
			f.store.BeforeFind = func() {
				select {
				case saving <- struct{}{}:
				default:
				}
				<-release
			}

			done := f.generateAsync()
			select {
			case <-saving:
			case <-time.After(2 * time.Second):
				t.Fatal("save did not start")
			}
			tt.change(t, f)
			close(release)

			r := wait(t, done)
			if r.err != nil {
				t.Fatalf("Generate: %v", r.err)
			}
			snap := f.ctrl.Snapshot()
			if snap.Text != tt.wantText {
				t.Errorf("text = %q, want %q", snap.Text, tt.wantText)
			}
			if snap.ActiveRecordID != tt.wantID {
				t.Errorf("active record = %q, want %q", snap.ActiveRecordID, tt.wantID)
			}
			if got := f.obs.Of("completed"); len(got) != 0 {
				t.Errorf("completed events = %q, want none", got)
			}
		})
	}
}

func TestGenerate_InlineSummaryOutranksOlderBackground(t *testing.T) {
	f := newFixture(t)
	f.sum.Gated = true
	f.gen.Script = []string{"Day 1"}

	f.ctrl.SubmitChunk("a trip to Tokyo")
	background := f.sum.NextCall(t)

	done := f.generateAsync()
	inline := f.sum.NextCall(t)
	inline.Reply("Tokyo travel vlog", nil)
	r := wait(t, done)
	if r.err != nil {
		t.Fatalf("Generate: %v", r.err)
	}

	background.Reply("Stale older title", nil)
	testutil.WaitForCondition(t, func() bool { return !f.ctrl.Snapshot().Summarizing }, 2*time.Second)

	if got := f.gen.NextStream(t).Request.ContextSummary; got != "Tokyo travel vlog" {
		t.Errorf("stream context summary = %q", got)
	}
	if got := f.ctrl.Snapshot().Summary; got != "Tokyo travel vlog" {
		t.Errorf("summary = %q, want the inline result", got)
	}
	rec, err := f.store.Get(context.Background(), r.res.RecordID)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Summary != "Tokyo travel vlog" {
		t.Errorf("persisted summary = %q", rec.Summary)
	}
}

func TestGenerate_EmptyScriptNotSaved(t *testing.T) {
	f := newFixture(t)
	f.gen.Script = []string{"  ", "\n"}
	ctx := context.Background()
	if err := f.ctrl.AcceptChunk(ctx, "idea"); err != nil {
		t.Fatal(err)
	}

	res, err := f.ctrl.Generate(ctx)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if res.RecordID != "" {
		t.Errorf("record id = %q, want none", res.RecordID)
	}
	if n := len(f.store.All()); n != 0 {
		t.Errorf("records = %d, want 0", n)
	}
	if snap := f.ctrl.Snapshot(); snap.Generation != session.GenCompleted || snap.ActiveRecordID != "" {
		t.Errorf("snapshot = %+v", snap)
	}
}
