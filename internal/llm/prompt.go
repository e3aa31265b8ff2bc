package llm

import (
	"fmt"
	"strings"
)

// BuildSummaryPrompt generates the system prompt for the running title
func BuildSummaryPrompt() string {
	prompt := "You summarize a creator's evolving video idea. The input is everything they said or typed so far, in order.\n\n"
	prompt += "Rules:\n"
	prompt += "- Reply with ONE short line, like a working title (max 12 words)\n"
	prompt += "- Reflect the cumulative intent; later chunks refine earlier ones\n"
	prompt += "- Keep the same language as the input\n"
	prompt += "- No quotes, no trailing punctuation, no preamble\n"
	return prompt
}

// BuildScriptSystemPrompt generates the system prompt for script generation
func BuildScriptSystemPrompt(videoForm, videoLength string) string {
	prompt := "You are a scriptwriter for online video creators. Write a complete, ready-to-record script.\n\n"

	var constraints []string
	if videoForm != "" {
		constraints = append(constraints, fmt.Sprintf("Format: %s", videoForm))
	}
	if videoLength != "" {
		constraints = append(constraints, fmt.Sprintf("Target length: %s", videoLength))
	}
	if len(constraints) > 0 {
		prompt += "Constraints:\n"
		for _, c := range constraints {
			prompt += fmt.Sprintf("- %s\n", c)
		}
		prompt += "\n"
	}

	prompt += "Rules:\n"
	prompt += "- Open with a hook in the first line\n"
	prompt += "- Mark scenes or beats on their own lines\n"
	prompt += "- Keep the same language as the idea\n"
	prompt += "- Output ONLY the script, nothing else\n"
	return prompt
}

// BuildScriptUserPrompt carries the summary and the full idea context
func BuildScriptUserPrompt(req ScriptRequest) string {
	if req.FullContext == "" || req.FullContext == req.ContextSummary {
		return fmt.Sprintf("Idea: %s", req.ContextSummary)
	}
	return fmt.Sprintf("Idea: %s\n\nEverything the creator said about it:\n%s", req.ContextSummary, req.FullContext)
}

// SanitizeSummary reduces a model reply to a single clean line
func SanitizeSummary(raw string) string {
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimPrefix(line, "Title:")
		line = strings.Trim(line, " \"'`*#")
		if line != "" {
			return line
		}
	}
	return ""
}
