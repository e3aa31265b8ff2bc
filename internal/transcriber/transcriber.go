// Package transcriber turns recorded utterances into text.
package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// BatchAdapter transcribes one complete utterance of raw PCM audio.
type BatchAdapter interface {
	Transcribe(ctx context.Context, audioData []byte) (string, error)
}

type Config struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Language   string
	Model      string
	SampleRate int
	Channels   int
}

func DefaultConfig() Config {
	return Config{
		Provider:   "openai",
		Model:      "whisper-1",
		SampleRate: 16000,
		Channels:   1,
	}
}

// NewAdapter builds the whisper adapter for cfg.Provider.
func NewAdapter(cfg Config) (BatchAdapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s API key required", cfg.Provider)
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	switch cfg.Provider {
	case "openai":
		if cfg.Model == "" {
			cfg.Model = "whisper-1"
		}
		return NewWhisperAdapter("openai", cfg), nil
	case "groq":
		if cfg.BaseURL == "" {
			cfg.BaseURL = groqBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = "whisper-large-v3-turbo"
		}
		return NewWhisperAdapter("groq", cfg), nil
	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", cfg.Provider)
	}
}

// WhisperAdapter talks to any OpenAI-compatible /audio/transcriptions endpoint.
type WhisperAdapter struct {
	name   string
	client *openai.Client
	config Config
}

func NewWhisperAdapter(name string, cfg Config) *WhisperAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &WhisperAdapter{
		name:   name,
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (a *WhisperAdapter) Transcribe(ctx context.Context, audioData []byte) (string, error) {
	if len(audioData) == 0 {
		return "", nil
	}

	req := openai.AudioRequest{
		Model:    a.config.Model,
		Reader:   bytes.NewReader(convertToWAV(audioData, a.config.SampleRate, a.config.Channels)),
		FilePath: "audio.wav",
		Language: a.config.Language,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	duration := time.Since(start)
	if err != nil {
		log.Printf("%s-transcription: API call failed after %v: %v", a.name, duration, err)
		return "", fmt.Errorf("%s transcription: %w", a.name, err)
	}

	log.Printf("%s-transcription: transcribed %d bytes in %v", a.name, len(audioData), duration)
	return resp.Text, nil
}
