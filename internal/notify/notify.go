// Package notify surfaces session events to the user.
package notify

import (
	"log"
	"os/exec"
)

type MessageType int

const (
	MsgCaptureStarted MessageType = iota
	MsgSummaryReady
	MsgScriptSaved
	MsgExported
	MsgConfigReloaded
	MsgCaptureUnavailable
	MsgPermissionDenied
	MsgRecognitionFailed
	MsgSummarizeFailed
	MsgGenerateFailed
	MsgPersistFailed
	MsgHistoryFailed
)

type Message struct {
	Title   string
	Body    string
	IsError bool
}

// MessageDef describes a message and the config key that overrides it.
type MessageDef struct {
	Type         MessageType
	ConfigKey    string
	DefaultTitle string
	DefaultBody  string
	IsError      bool
}

var MessageDefs = []MessageDef{
	{MsgCaptureStarted, "capture_started", "idealoop", "Listening...", false},
	{MsgSummaryReady, "summary_ready", "idealoop", "Idea updated", false},
	{MsgScriptSaved, "script_saved", "idealoop", "Script saved", false},
	{MsgExported, "exported", "idealoop", "Script exported", false},
	{MsgConfigReloaded, "config_reloaded", "idealoop", "Config reloaded", false},
	{MsgCaptureUnavailable, "capture_unavailable", "idealoop", "Voice input is unavailable. Typing still works.", true},
	{MsgPermissionDenied, "permission_denied", "idealoop", "Microphone access denied", true},
	{MsgRecognitionFailed, "recognition_failed", "idealoop", "Speech recognition failed", true},
	{MsgSummarizeFailed, "summarize_failed", "idealoop", "Couldn't summarize your idea", true},
	{MsgGenerateFailed, "generate_failed", "idealoop", "Script generation failed", true},
	{MsgPersistFailed, "persist_failed", "idealoop", "Couldn't save the script. It is still on screen.", true},
	{MsgHistoryFailed, "history_failed", "idealoop", "Couldn't load history", true},
}

// String returns the config key of mt.
func (mt MessageType) String() string {
	for _, def := range MessageDefs {
		if def.Type == mt {
			return def.ConfigKey
		}
	}
	return "unknown"
}

// DefaultMessages returns every message with its default text.
func DefaultMessages() map[MessageType]Message {
	out := make(map[MessageType]Message, len(MessageDefs))
	for _, def := range MessageDefs {
		out[def.Type] = Message{Title: def.DefaultTitle, Body: def.DefaultBody, IsError: def.IsError}
	}
	return out
}

// Notifier shows a message. detail, when set, is appended to the body.
type Notifier interface {
	Send(mt MessageType, detail string)
}

// New returns the notifier for kind: "desktop", "log" or "none".
func New(kind string, messages map[MessageType]Message) Notifier {
	if messages == nil {
		messages = DefaultMessages()
	}
	switch kind {
	case "desktop":
		return Desktop{Messages: messages}
	case "log":
		return Log{Messages: messages}
	default:
		return Nop{}
	}
}

// Format resolves the title and body for mt.
func Format(messages map[MessageType]Message, mt MessageType, detail string) Message {
	msg, ok := messages[mt]
	if !ok {
		msg = DefaultMessages()[mt]
	}
	if detail != "" {
		msg.Body += ": " + detail
	}
	return msg
}

type Desktop struct {
	Messages map[MessageType]Message
}

func (d Desktop) Send(mt MessageType, detail string) {
	msg := Format(d.Messages, mt, detail)
	args := []string{"-a", "idealoop"}
	if msg.IsError {
		args = append(args, "-u", "critical")
	}
	args = append(args, msg.Title, msg.Body)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

type Log struct {
	Messages map[MessageType]Message
}

func (l Log) Send(mt MessageType, detail string) {
	msg := Format(l.Messages, mt, detail)
	if msg.IsError {
		log.Printf("Notification error: %s: %s", msg.Title, msg.Body)
		return
	}
	log.Printf("Notification: %s: %s", msg.Title, msg.Body)
}

// Nop is a Notifier that does absolutely nothing.
type Nop struct{}

func (Nop) Send(MessageType, string) {}
