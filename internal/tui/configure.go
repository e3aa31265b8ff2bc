package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/idealoop/idealoop/internal/config"
	"github.com/muesli/termenv"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// AllProviders is the list of providers that can back transcription and the LLM
var AllProviders = []string{"openai", "groq"}

var providerDisplayNames = map[string]string{
	"openai": "OpenAI",
	"groq":   "Groq",
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionIdentity      ConfigSection = "identity"
	SectionProviders     ConfigSection = "providers"
	SectionTranscription ConfigSection = "transcription"
	SectionLLM           ConfigSection = "llm"
	SectionScript        ConfigSection = "script"
	SectionStore         ConfigSection = "store"
	SectionInjection     ConfigSection = "injection"
	SectionNotifications ConfigSection = "notifications"
	SectionAdvanced      ConfigSection = "advanced"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

var sectionEditors = map[ConfigSection]func(*config.Config) error{
	SectionIdentity:      editIdentity,
	SectionProviders:     editProviders,
	SectionTranscription: editTranscription,
	SectionLLM:           editLLM,
	SectionScript:        editScript,
	SectionStore:         editStore,
	SectionInjection:     editInjection,
	SectionNotifications: editNotifications,
	SectionAdvanced:      editAdvanced,
}

// RunConfigure starts the menu-based configuration editor. A nil config starts from
// defaults.
func RunConfigure(existing *config.Config) (*ConfigureResult, error) {
	cfg := existing
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render("Configuration is not valid: " + err.Error()))
				if !confirmContinue() {
					return &ConfigureResult{Cancelled: true}, nil
				}
				continue
			}
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}

		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil

		default:
			// an aborted form just returns to the menu
			if edit, ok := sectionEditors[section]; ok {
				_ = edit(cfg)
			}
		}
	}
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatIdentityLabel(cfg), SectionIdentity),
		huh.NewOption(formatProvidersLabel(cfg), SectionProviders),
		huh.NewOption(formatTranscriptionLabel(cfg), SectionTranscription),
		huh.NewOption(formatLLMLabel(cfg), SectionLLM),
		huh.NewOption(formatScriptLabel(cfg), SectionScript),
		huh.NewOption(formatStoreLabel(cfg), SectionStore),
		huh.NewOption(formatInjectionLabel(cfg), SectionInjection),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption("Advanced Settings", SectionAdvanced),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}

	return selected, nil
}

func confirmContinue() bool {
	keepEditing := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Keep editing?").
				Affirmative("Back to menu").
				Negative("Discard").
				Value(&keepEditing),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return false
	}
	return keepEditing
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}
