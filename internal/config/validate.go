package config

import (
	"fmt"

	"github.com/idealoop/idealoop/internal/language"
)

var supportedProviders = map[string]bool{"openai": true, "groq": true}

func (c *Config) Validate() error {
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.Format == "" {
		return fmt.Errorf("invalid recording.format: empty")
	}
	if c.Recording.Timeout <= 0 {
		return fmt.Errorf("invalid recording.timeout: %v", c.Recording.Timeout)
	}

	if !supportedProviders[c.Transcription.Provider] {
		return fmt.Errorf("unsupported transcription.provider: %q (must be openai or groq)", c.Transcription.Provider)
	}
	if c.resolveAPIKey(c.Transcription.Provider) == "" {
		return missingKeyError("transcription", c.Transcription.Provider)
	}
	if c.Transcription.Language != "" && !language.IsValidCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'en', 'es', 'fr')", c.Transcription.Language)
	}
	if c.Transcription.Provider == "groq" && c.Transcription.Model != "" {
		validGroqModels := map[string]bool{"whisper-large-v3": true, "whisper-large-v3-turbo": true}
		if !validGroqModels[c.Transcription.Model] {
			return fmt.Errorf("invalid model for groq transcription: %s (must be whisper-large-v3 or whisper-large-v3-turbo)", c.Transcription.Model)
		}
	}

	if !supportedProviders[c.LLM.Provider] {
		return fmt.Errorf("invalid llm.provider: %q (must be openai or groq)", c.LLM.Provider)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("invalid llm.model: empty")
	}
	if c.resolveAPIKey(c.LLM.Provider) == "" {
		return missingKeyError("llm", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("invalid llm.temperature: %v (must be between 0 and 2)", c.LLM.Temperature)
	}

	switch c.Store.Backend {
	case "bolt", "sqlite":
	default:
		return fmt.Errorf("invalid store.backend: %q (must be bolt or sqlite)", c.Store.Backend)
	}

	if len(c.Injection.Backends) == 0 {
		return fmt.Errorf("invalid injection.backends: empty (must have at least one backend)")
	}
	validBackends := map[string]bool{"ydotool": true, "wtype": true, "clipboard": true}
	for _, backend := range c.Injection.Backends {
		if !validBackends[backend] {
			return fmt.Errorf("invalid injection.backends: unknown backend %q (must be ydotool, wtype, or clipboard)", backend)
		}
	}
	if c.Injection.YdotoolTimeout <= 0 {
		return fmt.Errorf("invalid injection.ydotool_timeout: %v", c.Injection.YdotoolTimeout)
	}
	if c.Injection.WtypeTimeout <= 0 {
		return fmt.Errorf("invalid injection.wtype_timeout: %v", c.Injection.WtypeTimeout)
	}
	if c.Injection.ClipboardTimeout <= 0 {
		return fmt.Errorf("invalid injection.clipboard_timeout: %v", c.Injection.ClipboardTimeout)
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	return nil
}

func missingKeyError(section, provider string) error {
	switch provider {
	case "groq":
		return fmt.Errorf("Groq API key required for %s: not found in config (providers.groq.api_key) or environment variable (GROQ_API_KEY)", section)
	default:
		return fmt.Errorf("OpenAI API key required for %s: not found in config (providers.openai.api_key) or environment variable (OPENAI_API_KEY)", section)
	}
}
