package llm

// GroqAdapter talks to Groq's OpenAI-compatible API
type GroqAdapter struct {
	*OpenAIAdapter
}

// NewGroqAdapter creates a new Groq LLM adapter
func NewGroqAdapter(cfg Config) *GroqAdapter {
	return &GroqAdapter{
		OpenAIAdapter: newChatAdapter("groq", cfg, "https://api.groq.com/openai/v1", "llama-3.3-70b-versatile"),
	}
}
