package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/idealoop/idealoop/internal/deps"
	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/store"
)

func printSummary(w io.Writer, snap *session.Snapshot) {
	if snap == nil {
		return
	}
	switch {
	case snap.SummaryError != "":
		fmt.Fprintf(w, "Summary failed: %s\n", snap.SummaryError)
	case snap.Summary == "":
		fmt.Fprintln(w, "No idea yet.")
	default:
		fmt.Fprintln(w, snap.Summary)
	}
}

// finishScript prints whatever part of the final script the streamed
// fragments did not cover.
func finishScript(w io.Writer, printed string, snap *session.Snapshot) {
	if snap == nil || snap.Script == printed {
		return
	}
	// a newer generation owns the script now
	if snap.Generation == session.GenCancelled || snap.Generation == session.GenStreaming {
		return
	}
	if rest, ok := strings.CutPrefix(snap.Script, printed); ok {
		fmt.Fprint(w, rest)
		return
	}
	fmt.Fprintf(w, "\n--- full script ---\n%s", snap.Script)
}

func printSnapshot(w io.Writer, snap *session.Snapshot) {
	if snap == nil {
		fmt.Fprintln(w, "No session.")
		return
	}

	fmt.Fprintf(w, "Idea:       %s\n", orNone(snap.Summary))
	if snap.Summarizing {
		fmt.Fprintln(w, "            (summarizing...)")
	}
	if snap.SummaryError != "" {
		fmt.Fprintf(w, "Error:      %s\n", snap.SummaryError)
	}
	fmt.Fprintf(w, "Generation: %s\n", snap.Generation)
	if snap.ActiveRecordID != "" {
		fmt.Fprintf(w, "Record:     %s\n", snap.ActiveRecordID)
	}
	if snap.HistoryOpen {
		fmt.Fprintln(w, "History:    open")
	}

	if snap.Text != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Conversation:")
		fmt.Fprintln(w, indent(snap.Text))
	}
	if snap.Script != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Script:")
		fmt.Fprintln(w, indent(snap.Script))
	}
}

func printRecords(w io.Writer, recs []store.Record) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "No saved ideas.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tLAST OPENED\tSCRIPT\tSUMMARY")
	for _, r := range recs {
		script := "-"
		if r.Script != "" {
			script = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.LastOpenedAt.Local().Format("2006-01-02 15:04"), script, r.Summary)
	}
	tw.Flush()
}

func formatToolLine(tool deps.Tool, status deps.Status) string {
	mark := "[x]"
	if !status.Installed {
		mark = "[ ]"
	}
	line := fmt.Sprintf("  %s %s (%s)", mark, tool.Name, tool.Purpose)
	switch {
	case status.Installed && status.Version != "":
		line += " " + status.Version
	case !status.Installed && tool.Optional:
		line += " not found, optional"
	case !status.Installed:
		line += " not found"
	}
	return line
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(strings.TrimRight(s, "\n"), "\n", "\n  ")
}
