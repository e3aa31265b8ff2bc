package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/idealoop/idealoop/internal/deps"
	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/store"
)

func TestPrintSummary(t *testing.T) {
	tests := []struct {
		name string
		snap *session.Snapshot
		want string
	}{
		{"nil", nil, ""},
		{"empty", &session.Snapshot{}, "No idea yet.\n"},
		{"summary", &session.Snapshot{Summary: "Trip to Japan"}, "Trip to Japan\n"},
		{"error", &session.Snapshot{Summary: "old", SummaryError: "rate limited"}, "Summary failed: rate limited\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printSummary(&buf, tt.snap)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintSnapshot(t *testing.T) {
	var buf bytes.Buffer
	printSnapshot(&buf, &session.Snapshot{
		Summary:        "Trip to Japan",
		Text:           "I went to Japan\nIt rained",
		Script:         "Hook.\nPayoff.",
		Generation:     session.GenCompleted,
		ActiveRecordID: "rec-1",
	})

	out := buf.String()
	for _, want := range []string{
		"Idea:       Trip to Japan",
		"Generation: completed",
		"Record:     rec-1",
		"  I went to Japan\n  It rained",
		"  Hook.\n  Payoff.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "History:") {
		t.Error("history line shown while closed")
	}
}

func TestPrintRecords(t *testing.T) {
	var buf bytes.Buffer
	printRecords(&buf, nil)
	if buf.String() != "No saved ideas.\n" {
		t.Errorf("empty list = %q", buf.String())
	}

	buf.Reset()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.Local)
	printRecords(&buf, []store.Record{
		{ID: "rec-2", Summary: "Trip to Japan", Script: "Hook.", LastOpenedAt: at},
		{ID: "rec-1", Summary: "Old idea", LastOpenedAt: at.Add(-time.Hour)},
	})
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[1], "rec-2") || !strings.Contains(lines[1], "2024-05-01 12:00") || !strings.Contains(lines[1], "yes") {
		t.Errorf("first row = %q", lines[1])
	}
	if !strings.HasSuffix(lines[2], "Old idea") {
		t.Errorf("second row = %q", lines[2])
	}
}

func TestFormatToolLine(t *testing.T) {
	tests := []struct {
		tool   deps.Tool
		status deps.Status
		want   string
	}{
		{deps.Tool{Name: "pw-record", Purpose: "voice capture"}, deps.Status{Installed: true, Version: "pw-record 1.0"}, "  [x] pw-record (voice capture) pw-record 1.0"},
		{deps.Tool{Name: "wtype", Purpose: "export (typing)"}, deps.Status{Installed: true}, "  [x] wtype (export (typing))"},
		{deps.Tool{Name: "wl-copy", Purpose: "export (clipboard)", Optional: true}, deps.Status{}, "  [ ] wl-copy (export (clipboard)) not found, optional"},
		{deps.Tool{Name: "pw-cli", Purpose: "microphone check"}, deps.Status{}, "  [ ] pw-cli (microphone check) not found"},
	}
	for _, tt := range tests {
		if got := formatToolLine(tt.tool, tt.status); got != tt.want {
			t.Errorf("got %q, want %q", got, tt.want)
		}
	}
}

func TestFinishScript(t *testing.T) {
	tests := []struct {
		name    string
		printed string
		snap    *session.Snapshot
		want    string
	}{
		{"nil session", "Hook.", nil, ""},
		{"complete", "Hook. Payoff.", &session.Snapshot{Script: "Hook. Payoff.", Generation: session.GenCompleted}, ""},
		{"missing tail", "Hook. ", &session.Snapshot{Script: "Hook. Payoff.", Generation: session.GenCompleted}, "Payoff."},
		{"gap", "Hook. Outro.", &session.Snapshot{Script: "Hook. Middle. Outro.", Generation: session.GenCompleted}, "\n--- full script ---\nHook. Middle. Outro."},
		{"errored keeps partial", "Ho", &session.Snapshot{Script: "Hook", Generation: session.GenErrored}, "ok"},
		{"preempted", "old", &session.Snapshot{Script: "new", Generation: session.GenStreaming}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			finishScript(&buf, tt.printed, tt.snap)
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}
