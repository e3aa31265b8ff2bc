package tui

import (
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/idealoop/idealoop/internal/bus"
	"github.com/idealoop/idealoop/internal/session"
)

// Messages fed into the watch model.
type (
	eventMsg    bus.Event
	snapshotMsg session.Snapshot
	// resyncMsg is applied even mid-stream: the view missed events.
	resyncMsg   session.Snapshot
	streamEnded struct{ err error }
	commandDone struct {
		cmd string
		err error
	}
)

// Sender issues one command to the daemon and returns its final response.
type Sender func(bus.Command) (bus.Response, error)

type watchModel struct {
	events <-chan tea.Msg
	send   Sender

	capture    string
	summary    string
	script     string
	generation session.GenerationState
	recordID   string
	history    bool

	status  string
	lastErr string
	width   int
	ended   bool
}

func newWatchModel(snap session.Snapshot, events <-chan tea.Msg, send Sender) watchModel {
	m := watchModel{events: events, send: send, capture: "idle"}
	return m.apply(snap)
}

func (m watchModel) apply(snap session.Snapshot) watchModel {
	m.summary = snap.Summary
	m.script = snap.Script
	m.generation = snap.Generation
	m.recordID = snap.ActiveRecordID
	m.history = snap.HistoryOpen
	return m
}

func (m watchModel) Init() tea.Cmd {
	return m.next()
}

// next waits for the following message from the subscription.
func (m watchModel) next() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		msg, ok := <-events
		if !ok {
			return streamEnded{}
		}
		return msg
	}
}

func (m watchModel) run(cmd bus.Command) tea.Cmd {
	send := m.send
	return func() tea.Msg {
		resp, err := send(cmd)
		if err == nil {
			err = resp.Err()
		}
		return commandDone{cmd: cmd.Cmd, err: err}
	}
}

func (m watchModel) refresh() tea.Cmd {
	send := m.send
	return func() tea.Msg {
		resp, err := send(bus.Command{Cmd: bus.CmdStatus})
		if err != nil || resp.Session == nil {
			return nil
		}
		return snapshotMsg(*resp.Session)
	}
}

func (m watchModel) resync() tea.Cmd {
	send := m.send
	return func() tea.Msg {
		resp, err := send(bus.Command{Cmd: bus.CmdStatus})
		if err != nil || resp.Session == nil {
			return nil
		}
		return resyncMsg(*resp.Session)
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "g":
			m.status = "generating..."
			return m, m.run(bus.Command{Cmd: bus.CmdGenerate})
		case "c":
			return m, m.run(bus.Command{Cmd: bus.CmdCancel})
		case "n":
			m.status = "new idea"
			return m, m.run(bus.Command{Cmd: bus.CmdNew})
		case "e":
			return m, m.run(bus.Command{Cmd: bus.CmdExport})
		}
		return m, nil

	case eventMsg:
		if msg.Event == bus.EvResync {
			return m, tea.Batch(m.next(), m.resync())
		}
		var stale bool
		m, stale = m.handleEvent(bus.Event(msg))
		if stale {
			return m, tea.Batch(m.next(), m.refresh())
		}
		return m, m.next()

	case snapshotMsg:
		if m.generation == session.GenStreaming {
			return m, nil
		}
		return m.apply(session.Snapshot(msg)), nil

	case resyncMsg:
		return m.apply(session.Snapshot(msg)), nil

	case commandDone:
		if msg.err != nil {
			m.lastErr = fmt.Sprintf("%s: %v", msg.cmd, msg.err)
		} else if msg.cmd == bus.CmdExport {
			m.status = "script exported"
		}
		return m, nil

	case streamEnded:
		m.ended = true
		if msg.err != nil && !errors.Is(msg.err, io.EOF) {
			m.lastErr = "connection lost: " + msg.err.Error()
		}
		return m, tea.Quit
	}
	return m, nil
}

// handleEvent folds one daemon event into the view. It reports whether the
// rest of the session should be fetched again.
func (m watchModel) handleEvent(ev bus.Event) (watchModel, bool) {
	switch ev.Event {
	case bus.EvCapture:
		m.capture = ev.State
		return m, false
	case bus.EvSummary:
		m.summary = ev.Text
		m.lastErr = ""
		return m, m.generation != session.GenStreaming
	case bus.EvFragment:
		m.script += ev.Text
		return m, false
	case bus.EvGeneration:
		state := session.GenerationState(ev.State)
		if state == session.GenStreaming {
			m.script = ""
			m.lastErr = ""
		}
		m.generation = state
		if state != session.GenStreaming {
			m.status = ""
		}
		return m, false
	case bus.EvCompleted:
		m.recordID = ev.RecordID
		m.status = "script saved"
		return m, true
	case bus.EvLoaded:
		m.recordID = ev.RecordID
		m.status = "loaded saved idea"
		return m, true
	case bus.EvFailed:
		m.lastErr = ev.Code
		if ev.Text != "" {
			m.lastErr += ": " + ev.Text
		}
		return m, m.generation != session.GenStreaming
	}
	return m, false
}

func (m watchModel) View() string {
	var b strings.Builder

	b.WriteString(StyleHeader.Render("idealoop"))
	b.WriteString("\n")

	b.WriteString(StyleLabel.Render("Capture: "))
	b.WriteString(captureStyle(m.capture).Render(m.capture))
	if m.history {
		b.WriteString(StyleMuted.Render("  (history open)"))
	}
	b.WriteString("\n")

	b.WriteString(StyleLabel.Render("Idea:    "))
	if m.summary == "" {
		b.WriteString(StyleMuted.Render("nothing yet, hold to talk"))
	} else {
		b.WriteString(StyleHighlight.Render(m.summary))
	}
	b.WriteString("\n")

	gen := string(m.generation)
	if gen == "" {
		gen = string(session.GenIdle)
	}
	b.WriteString(StyleLabel.Render("Script:  "))
	b.WriteString(generationStyle(m.generation).Render(gen))
	if m.recordID != "" {
		b.WriteString(StyleMuted.Render("  record " + m.recordID))
	}
	b.WriteString("\n\n")

	box := StyleBox
	if m.generation == session.GenStreaming {
		box = StyleFocusedBox
	}
	if m.width > 4 {
		box = box.Width(m.width - 4)
	}
	body := m.script
	if body == "" {
		body = StyleMuted.Render("no script")
	}
	b.WriteString(box.Render(body))
	b.WriteString("\n")

	if m.status != "" {
		b.WriteString(StyleSuccess.Render(m.status))
		b.WriteString("\n")
	}
	if m.lastErr != "" {
		b.WriteString(StyleError.Render(m.lastErr))
		b.WriteString("\n")
	}

	b.WriteString(StyleSubtle.Render("g generate • c cancel • n new idea • e export • q quit"))
	return b.String()
}

func captureStyle(state string) lipgloss.Style {
	switch state {
	case "listening":
		return StyleError
	case "attempting":
		return StyleWarning
	default:
		return StyleMuted
	}
}

func generationStyle(state session.GenerationState) lipgloss.Style {
	switch state {
	case session.GenStreaming:
		return StyleWarning
	case session.GenCompleted:
		return StyleSuccess
	case session.GenErrored:
		return StyleError
	default:
		return StyleMuted
	}
}

// RunWatch subscribes to the running daemon and shows the session live until
// the user quits or the daemon goes away.
func RunWatch() error {
	client, err := bus.Dial()
	if err != nil {
		return fmt.Errorf("connect to daemon: %w", err)
	}
	defer client.Close()

	resp, err := client.SendCommand(bus.Command{Cmd: bus.CmdSubscribe})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	var snap session.Snapshot
	if resp.Session != nil {
		snap = *resp.Session
	}

	events := make(chan tea.Msg, 64)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(events)
		for {
			ev, err := client.ReadEvent()
			var msg tea.Msg = eventMsg(ev)
			if err != nil {
				msg = streamEnded{err: err}
			}
			select {
			case events <- msg:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	m := newWatchModel(snap, events, bus.SendCommand)
	final, err := tea.NewProgram(m, tea.WithAltScreen()).Run()
	if err != nil {
		return err
	}
	if fm, ok := final.(watchModel); ok && fm.ended && fm.lastErr != "" {
		return errors.New(fm.lastErr)
	}
	return nil
}
