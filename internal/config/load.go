package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

var ErrConfigNotFound = errors.New("config not found")

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	dir := filepath.Join(configDir, "idealoop")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(dir, "config.toml"), nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads the config at path. A missing file yields ErrConfigNotFound.
func LoadFrom(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run idealoop configure", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("Config: loading configuration from %s", configPath)
	config := DefaultConfig()
	if _, err := toml.DecodeFile(configPath, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if config.Providers == nil {
		config.Providers = make(map[string]ProviderConfig)
	}

	log.Printf("Config: configuration loaded successfully")
	return config, nil
}

// Save writes cfg to the user config path.
func Save(cfg *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(configPath, cfg)
}

func SaveTo(configPath string, cfg *Config) error {
	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(render(cfg)), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	log.Printf("Config: saved configuration to %s", configPath)
	return nil
}

// SaveDefaultConfig writes the defaults unless a config already exists.
func SaveDefaultConfig() error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	if _, err := os.Stat(configPath); err == nil {
		return nil
	}
	return SaveTo(configPath, DefaultConfig())
}

func q(s string) string { return strconv.Quote(s) }

func render(c *Config) string {
	var b strings.Builder

	b.WriteString("# idealoop configuration\n")
	b.WriteString("# Changes are applied immediately without daemon restart.\n\n")

	b.WriteString("[general]\n")
	fmt.Fprintf(&b, "  user_id = %s              # Owner of saved ideas (empty = OS user)\n\n", q(c.General.UserID))

	b.WriteString("# Push-to-talk audio capture via pw-record\n[recording]\n")
	fmt.Fprintf(&b, "  sample_rate = %d\n", c.Recording.SampleRate)
	fmt.Fprintf(&b, "  channels = %d\n", c.Recording.Channels)
	fmt.Fprintf(&b, "  format = %s\n", q(c.Recording.Format))
	fmt.Fprintf(&b, "  buffer_size = %d\n", c.Recording.BufferSize)
	fmt.Fprintf(&b, "  device = %s                # PipeWire source (empty = default microphone)\n", q(c.Recording.Device))
	fmt.Fprintf(&b, "  channel_buffer_size = %d\n", c.Recording.ChannelBufferSize)
	fmt.Fprintf(&b, "  timeout = %s            # Longest single utterance\n\n", q(c.Recording.Timeout.String()))

	b.WriteString("[transcription]\n")
	fmt.Fprintf(&b, "  provider = %s         # \"openai\" or \"groq\"\n", q(c.Transcription.Provider))
	fmt.Fprintf(&b, "  language = %s               # Empty for auto-detect, or \"en\", \"it\", ...\n", q(c.Transcription.Language))
	fmt.Fprintf(&b, "  model = %s\n\n", q(c.Transcription.Model))

	b.WriteString("# Summaries and script generation\n[llm]\n")
	fmt.Fprintf(&b, "  provider = %s         # \"openai\" or \"groq\"\n", q(c.LLM.Provider))
	fmt.Fprintf(&b, "  model = %s\n", q(c.LLM.Model))
	fmt.Fprintf(&b, "  summary_model = %s          # Empty = same as model\n", q(c.LLM.SummaryModel))
	fmt.Fprintf(&b, "  temperature = %s\n\n", strconv.FormatFloat(float64(c.LLM.Temperature), 'f', -1, 32))

	b.WriteString("[script]\n")
	fmt.Fprintf(&b, "  video_form = %s\n", q(c.Script.VideoForm))
	fmt.Fprintf(&b, "  video_length = %s\n", q(c.Script.VideoLength))
	fmt.Fprintf(&b, "  fallback_summary = %s       # Shown when a summary comes back empty\n\n", q(c.Script.FallbackSummary))

	b.WriteString("[store]\n")
	fmt.Fprintf(&b, "  backend = %s            # \"bolt\" or \"sqlite\"\n", q(c.Store.Backend))
	fmt.Fprintf(&b, "  path = %s                   # Empty = $XDG_DATA_HOME/idealoop\n\n", q(c.Store.Path))

	names := make([]string, 0, len(c.Providers))
	for name := range c.Providers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "[providers.%s]\n", name)
		fmt.Fprintf(&b, "  api_key = %s\n\n", q(c.Providers[name].APIKey))
	}

	b.WriteString("# Used by `idealoop export`\n[injection]\n")
	quoted := make([]string, len(c.Injection.Backends))
	for i, be := range c.Injection.Backends {
		quoted[i] = q(be)
	}
	fmt.Fprintf(&b, "  backends = [%s]\n", strings.Join(quoted, ", "))
	fmt.Fprintf(&b, "  ydotool_timeout = %s\n", q(c.Injection.YdotoolTimeout.String()))
	fmt.Fprintf(&b, "  wtype_timeout = %s\n", q(c.Injection.WtypeTimeout.String()))
	fmt.Fprintf(&b, "  clipboard_timeout = %s\n\n", q(c.Injection.ClipboardTimeout.String()))

	b.WriteString("[notifications]\n")
	fmt.Fprintf(&b, "  enabled = %t\n", c.Notifications.Enabled)
	fmt.Fprintf(&b, "  type = %s           # \"desktop\", \"log\", \"none\"\n", q(c.Notifications.Type))
	for _, def := range messageOverrides(&c.Notifications.Messages) {
		fmt.Fprintf(&b, "\n[notifications.messages.%s]\n", def.key)
		if def.msg.Title != "" {
			fmt.Fprintf(&b, "  title = %s\n", q(def.msg.Title))
		}
		if def.msg.Body != "" {
			fmt.Fprintf(&b, "  body = %s\n", q(def.msg.Body))
		}
	}

	return b.String()
}

type messageOverride struct {
	key string
	msg MessageConfig
}

func messageOverrides(m *MessagesConfig) []messageOverride {
	all := []messageOverride{
		{"capture_started", m.CaptureStarted},
		{"summary_ready", m.SummaryReady},
		{"script_saved", m.ScriptSaved},
		{"exported", m.Exported},
		{"config_reloaded", m.ConfigReloaded},
		{"capture_unavailable", m.CaptureUnavailable},
		{"permission_denied", m.PermissionDenied},
		{"recognition_failed", m.RecognitionFailed},
		{"summarize_failed", m.SummarizeFailed},
		{"generate_failed", m.GenerateFailed},
		{"persist_failed", m.PersistFailed},
		{"history_failed", m.HistoryFailed},
	}
	var set []messageOverride
	for _, o := range all {
		if o.msg.Title != "" || o.msg.Body != "" {
			set = append(set, o)
		}
	}
	return set
}
