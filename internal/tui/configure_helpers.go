package tui

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/idealoop/idealoop/internal/config"
	"github.com/idealoop/idealoop/internal/language"
)

var backendOrder = []string{"ydotool", "wtype", "clipboard"}

func getProviderDisplayName(providerName string) string {
	if name, ok := providerDisplayNames[providerName]; ok {
		return name
	}
	return providerName
}

// maskAPIKey returns a masked version of an API key for display
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

// getConfiguredProviders returns the providers with a key in the config, sorted
func getConfiguredProviders(cfg *config.Config) []string {
	var providers []string
	for name, pc := range cfg.Providers {
		if pc.APIKey != "" {
			providers = append(providers, name)
		}
	}
	sort.Strings(providers)
	return providers
}

func formatProviderOption(cfg *config.Config, name string) string {
	label := getProviderDisplayName(name)
	if pc, ok := cfg.Providers[name]; ok && pc.APIKey != "" {
		return fmt.Sprintf("%s (%s)", label, maskAPIKey(pc.APIKey))
	}
	return label + " (not set)"
}

func providerOptions(current string) []huh.Option[string] {
	var options []huh.Option[string]
	for _, name := range AllProviders {
		label := getProviderDisplayName(name)
		if name == current {
			label += " (current)"
		}
		options = append(options, huh.NewOption(label, name))
	}
	return options
}

func languageOptions(current string) []huh.Option[string] {
	autoLabel := "Auto-detect (recommended)"
	if current == "" {
		autoLabel += " (current)"
	}
	options := []huh.Option[string]{huh.NewOption(autoLabel, "")}
	for _, l := range language.List() {
		label := fmt.Sprintf("%s (%s)", language.Label(l.Code), l.Code)
		if l.Code == current {
			label += " (current)"
		}
		options = append(options, huh.NewOption(label, l.Code))
	}
	return options
}

func defaultTranscriptionModel(provider string) string {
	if provider == "groq" {
		return "whisper-large-v3-turbo"
	}
	return "whisper-1"
}

// orderBackends puts the chosen backends in fallback order
func orderBackends(selected []string) []string {
	chosen := make(map[string]bool, len(selected))
	for _, b := range selected {
		chosen[b] = true
	}
	var out []string
	for _, b := range backendOrder {
		if chosen[b] {
			out = append(out, b)
		}
	}
	return out
}

func requireValue(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func parseTemperature(s string) (float32, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 32)
	if err != nil {
		return 0, errors.New("temperature must be a number")
	}
	if v < 0 || v > 2 {
		return 0, errors.New("temperature must be between 0 and 2")
	}
	return float32(v), nil
}

func parsePositiveInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || v <= 0 {
		return 0, errors.New("must be a positive whole number")
	}
	return v, nil
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil || d <= 0 {
		return 0, errors.New("must be a positive duration like 90s or 2m")
	}
	return d, nil
}

func formatIdentityLabel(cfg *config.Config) string {
	return fmt.Sprintf("Identity (%s)", cfg.UserID())
}

func formatProvidersLabel(cfg *config.Config) string {
	configured := getConfiguredProviders(cfg)
	if len(configured) == 0 {
		return "API Keys (from environment)"
	}
	names := make([]string, len(configured))
	for i, p := range configured {
		names[i] = getProviderDisplayName(p)
	}
	return fmt.Sprintf("API Keys (%s)", strings.Join(names, ", "))
}

func formatTranscriptionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Transcription (%s, %s)", getProviderDisplayName(cfg.Transcription.Provider), language.Label(cfg.Transcription.Language))
}

func formatLLMLabel(cfg *config.Config) string {
	return fmt.Sprintf("LLM (%s %s)", getProviderDisplayName(cfg.LLM.Provider), cfg.LLM.Model)
}

func formatScriptLabel(cfg *config.Config) string {
	return fmt.Sprintf("Script (%s, %s)", cfg.Script.VideoForm, cfg.Script.VideoLength)
}

func formatStoreLabel(cfg *config.Config) string {
	return fmt.Sprintf("Storage (%s)", cfg.Store.Backend)
}

func formatInjectionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Export (%s)", strings.Join(cfg.Injection.Backends, " -> "))
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (off)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	fmt.Println()

	row := func(label, value string) {
		fmt.Printf("  %s %s\n", StyleLabel.Render(label), value)
	}

	row("User:", cfg.UserID())
	keys := getConfiguredProviders(cfg)
	if len(keys) == 0 {
		row("API keys:", StyleMuted.Render("from environment"))
	} else {
		row("API keys:", strings.Join(keys, ", "))
	}
	row("Transcription:", fmt.Sprintf("%s (%s), %s", cfg.Transcription.Provider, cfg.Transcription.Model, language.Label(cfg.Transcription.Language)))
	llmLine := fmt.Sprintf("%s (%s, temperature %g)", cfg.LLM.Provider, cfg.LLM.Model, cfg.LLM.Temperature)
	if cfg.LLM.SummaryModel != "" {
		llmLine += ", summaries with " + cfg.LLM.SummaryModel
	}
	row("LLM:", llmLine)
	row("Script:", fmt.Sprintf("%s, %s", cfg.Script.VideoForm, cfg.Script.VideoLength))
	storeLine := cfg.Store.Backend
	if cfg.Store.Path != "" {
		storeLine += " at " + cfg.Store.Path
	}
	row("Storage:", storeLine)
	row("Export:", strings.Join(cfg.Injection.Backends, " -> "))
	if cfg.Notifications.Enabled {
		row("Notifications:", cfg.Notifications.Type)
	} else {
		row("Notifications:", "disabled")
	}

	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}

	return confirmed, nil
}
