package config

import (
	"reflect"
	"time"

	"github.com/idealoop/idealoop/internal/notify"
)

type Config struct {
	General       GeneralConfig             `toml:"general"`
	Recording     RecordingConfig           `toml:"recording"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	LLM           LLMConfig                 `toml:"llm"`
	Script        ScriptConfig              `toml:"script"`
	Store         StoreConfig               `toml:"store"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Injection     InjectionConfig           `toml:"injection"`
	Notifications NotificationsConfig       `toml:"notifications"`
}

// GeneralConfig holds global settings that apply across the application
type GeneralConfig struct {
	// UserID owns every record this daemon writes. Empty means the OS user.
	UserID string `toml:"user_id"`
}

// ProviderConfig holds API key for a provider
type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type RecordingConfig struct {
	SampleRate        int           `toml:"sample_rate"`
	Channels          int           `toml:"channels"`
	Format            string        `toml:"format"`
	BufferSize        int           `toml:"buffer_size"`
	Device            string        `toml:"device"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
	Timeout           time.Duration `toml:"timeout"`
}

type TranscriptionConfig struct {
	Provider string `toml:"provider"`
	Language string `toml:"language"`
	Model    string `toml:"model"`
}

// LLMConfig configures summarization and script generation
type LLMConfig struct {
	Provider     string  `toml:"provider"`
	Model        string  `toml:"model"`
	SummaryModel string  `toml:"summary_model"`
	Temperature  float32 `toml:"temperature"`
}

type ScriptConfig struct {
	VideoForm       string `toml:"video_form"`
	VideoLength     string `toml:"video_length"`
	FallbackSummary string `toml:"fallback_summary"`
}

type StoreConfig struct {
	Backend string `toml:"backend"`
	Path    string `toml:"path"`
}

type InjectionConfig struct {
	Backends         []string      `toml:"backends"`
	YdotoolTimeout   time.Duration `toml:"ydotool_timeout"`
	WtypeTimeout     time.Duration `toml:"wtype_timeout"`
	ClipboardTimeout time.Duration `toml:"clipboard_timeout"`
}

type NotificationsConfig struct {
	Enabled  bool           `toml:"enabled"`
	Type     string         `toml:"type"` // "desktop", "log", "none"
	Messages MessagesConfig `toml:"messages"`
}

type MessageConfig struct {
	Title string `toml:"title"`
	Body  string `toml:"body"`
}

type MessagesConfig struct {
	CaptureStarted     MessageConfig `toml:"capture_started"`
	SummaryReady       MessageConfig `toml:"summary_ready"`
	ScriptSaved        MessageConfig `toml:"script_saved"`
	Exported           MessageConfig `toml:"exported"`
	ConfigReloaded     MessageConfig `toml:"config_reloaded"`
	CaptureUnavailable MessageConfig `toml:"capture_unavailable"`
	PermissionDenied   MessageConfig `toml:"permission_denied"`
	RecognitionFailed  MessageConfig `toml:"recognition_failed"`
	SummarizeFailed    MessageConfig `toml:"summarize_failed"`
	GenerateFailed     MessageConfig `toml:"generate_failed"`
	PersistFailed      MessageConfig `toml:"persist_failed"`
	HistoryFailed      MessageConfig `toml:"history_failed"`
}

// Resolve merges user config with defaults from MessageDefs
func (m *MessagesConfig) Resolve() map[notify.MessageType]notify.Message {
	result := make(map[notify.MessageType]notify.Message)

	v := reflect.ValueOf(m).Elem()
	t := v.Type()
	tagToField := make(map[string]int)
	for i := 0; i < t.NumField(); i++ {
		tagToField[t.Field(i).Tag.Get("toml")] = i
	}

	for _, def := range notify.MessageDefs {
		msg := notify.Message{
			Title:   def.DefaultTitle,
			Body:    def.DefaultBody,
			IsError: def.IsError,
		}
		if idx, ok := tagToField[def.ConfigKey]; ok {
			userMsg := v.Field(idx).Interface().(MessageConfig)
			if userMsg.Title != "" {
				msg.Title = userMsg.Title
			}
			if userMsg.Body != "" {
				msg.Body = userMsg.Body
			}
		}
		result[def.Type] = msg
	}
	return result
}
