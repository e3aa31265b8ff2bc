package config

import (
	"os"
	"os/user"

	"github.com/idealoop/idealoop/internal/injection"
	"github.com/idealoop/idealoop/internal/llm"
	"github.com/idealoop/idealoop/internal/recording"
	"github.com/idealoop/idealoop/internal/store"
	"github.com/idealoop/idealoop/internal/transcriber"
)

var providerEnvVars = map[string]string{
	"openai": "OPENAI_API_KEY",
	"groq":   "GROQ_API_KEY",
}

// resolveAPIKey returns the provider's key from [providers.<name>] or its
// environment variable.
func (c *Config) resolveAPIKey(providerName string) string {
	if c.Providers != nil {
		if pc, ok := c.Providers[providerName]; ok && pc.APIKey != "" {
			return pc.APIKey
		}
	}
	if envVar := providerEnvVars[providerName]; envVar != "" {
		return os.Getenv(envVar)
	}
	return ""
}

// UserID returns the configured record owner, defaulting to the OS user.
func (c *Config) UserID() string {
	if c.General.UserID != "" {
		return c.General.UserID
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "local"
}

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToRecognizerOptions() transcriber.RecognizerOptions {
	return transcriber.RecognizerOptions{MaxDuration: c.Recording.Timeout}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider:   c.Transcription.Provider,
		APIKey:     c.resolveAPIKey(c.Transcription.Provider),
		Language:   c.Transcription.Language,
		Model:      c.Transcription.Model,
		SampleRate: c.Recording.SampleRate,
		Channels:   c.Recording.Channels,
	}
}

func (c *Config) ToLLMConfig() llm.Config {
	return llm.Config{
		Provider:     c.LLM.Provider,
		APIKey:       c.resolveAPIKey(c.LLM.Provider),
		Model:        c.LLM.Model,
		SummaryModel: c.LLM.SummaryModel,
		Temperature:  c.LLM.Temperature,
	}
}

func (c *Config) ToStoreConfig() store.Config {
	return store.Config{Backend: c.Store.Backend, Path: c.Store.Path}
}

func (c *Config) ToInjectionConfig() injection.Config {
	return injection.Config{
		Backends:         c.Injection.Backends,
		YdotoolTimeout:   c.Injection.YdotoolTimeout,
		WtypeTimeout:     c.Injection.WtypeTimeout,
		ClipboardTimeout: c.Injection.ClipboardTimeout,
	}
}

// NotificationKind is the notifier type to build, honouring enabled = false.
func (c *Config) NotificationKind() string {
	if !c.Notifications.Enabled {
		return "none"
	}
	return c.Notifications.Type
}
