package llm

import (
	"context"
	"fmt"
)

// Summarizer turns the accumulated conversation into a one-line title.
type Summarizer interface {
	Summarize(ctx context.Context, input string) (string, error)
}

// ScriptRequest is the payload of a streaming script generation.
type ScriptRequest struct {
	ContextSummary string
	FullContext    string
	VideoForm      string
	VideoLength    string
}

// FragmentStream yields raw script text in arrival order. Recv returns io.EOF
// once the stream is finished.
type FragmentStream interface {
	Recv() (string, error)
	Close() error
}

// Generator opens cancelable script streams; cancel ctx to abort one.
type Generator interface {
	StreamScript(ctx context.Context, req ScriptRequest) (FragmentStream, error)
}

// Adapter is a provider able to both summarize and generate.
type Adapter interface {
	Summarizer
	Generator
}

// Config holds LLM adapter configuration
type Config struct {
	Provider     string
	APIKey       string
	BaseURL      string // overrides the provider endpoint when set
	Model        string
	SummaryModel string
	Temperature  float32
}

// NewAdapter creates an LLM adapter based on the provider
func NewAdapter(cfg Config) (Adapter, error) {
	switch cfg.Provider {
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(cfg), nil
	case "groq":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Groq API key required")
		}
		return NewGroqAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
