package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAIAdapter implements Adapter using OpenAI-compatible chat completions.
// Groq reuses it with a different endpoint and default models.
type OpenAIAdapter struct {
	name         string
	client       *openai.Client
	model        string
	summaryModel string
	temperature  float32
}

// NewOpenAIAdapter creates a new OpenAI LLM adapter
func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	return newChatAdapter("openai", cfg, "", "gpt-4o-mini")
}

func newChatAdapter(name string, cfg Config, baseURL, defaultModel string) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	summaryModel := cfg.SummaryModel
	if summaryModel == "" {
		summaryModel = model
	}
	temperature := cfg.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	return &OpenAIAdapter{
		name:         name,
		client:       openai.NewClientWithConfig(clientConfig),
		model:        model,
		summaryModel: summaryModel,
		temperature:  temperature,
	}
}

func (a *OpenAIAdapter) Summarize(ctx context.Context, input string) (string, error) {
	if input == "" {
		return "", nil
	}

	req := openai.ChatCompletionRequest{
		Model: a.summaryModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSummaryPrompt()},
			{Role: openai.ChatMessageRoleUser, Content: input},
		},
		Temperature: 0.3, // Low temperature keeps titles stable across re-summaries
	}

	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("%s-llm-adapter: summary call failed after %v: %v", a.name, duration, err)
		return "", fmt.Errorf("%s chat completion: %w", a.name, err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s chat completion: no response choices", a.name)
	}

	summary := SanitizeSummary(resp.Choices[0].Message.Content)
	log.Printf("%s-llm-adapter: summarized %d chars in %v: %q", a.name, len(input), duration, summary)
	return summary, nil
}

func (a *OpenAIAdapter) StreamScript(ctx context.Context, req ScriptRequest) (FragmentStream, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: a.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildScriptSystemPrompt(req.VideoForm, req.VideoLength)},
			{Role: openai.ChatMessageRoleUser, Content: BuildScriptUserPrompt(req)},
		},
		Temperature: a.temperature,
		Stream:      true,
	}

	stream, err := a.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		log.Printf("%s-llm-adapter: stream open failed: %v", a.name, err)
		return nil, fmt.Errorf("%s chat stream: %w", a.name, err)
	}
	log.Printf("%s-llm-adapter: script stream opened (model=%s)", a.name, a.model)
	return &chatStream{name: a.name, stream: stream}, nil
}

// chatStream flattens completion deltas into text fragments.
type chatStream struct {
	name   string
	stream *openai.ChatCompletionStream
}

func (s *chatStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		if err != nil {
			return "", fmt.Errorf("%s chat stream: %w", s.name, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if text := resp.Choices[0].Delta.Content; text != "" {
			return text, nil
		}
	}
}

func (s *chatStream) Close() error {
	return s.stream.Close()
}
