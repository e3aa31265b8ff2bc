package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/idealoop/idealoop/internal/config"
)

func editIdentity(cfg *config.Config) error {
	userID := cfg.General.UserID
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("User ID").
				Description("Owner of every saved idea. Leave empty to use your login name.").
				Placeholder(cfg.UserID()).
				Value(&userID),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.General.UserID = userID
	return nil
}

// editProviders loops over the provider list until the user picks Done
func editProviders(cfg *config.Config) error {
	for {
		var options []huh.Option[string]
		for _, name := range AllProviders {
			options = append(options, huh.NewOption(formatProviderOption(cfg, name), name))
		}
		options = append(options, huh.NewOption("Done", "back"))

		var selected string
		form := huh.NewForm(
			huh.NewGroup(
				huh.NewSelect[string]().
					Title("API Keys").
					Description("Keys can also come from OPENAI_API_KEY or GROQ_API_KEY").
					Options(options...).
					Value(&selected),
			),
		).WithTheme(getTheme())

		if err := form.Run(); err != nil {
			return err
		}
		if selected == "back" {
			return nil
		}
		if err := inputAPIKey(cfg, selected); err != nil {
			return err
		}
	}
}

func inputAPIKey(cfg *config.Config, provider string) error {
	var key string
	desc := "Leave empty to keep the current key"
	if pc, ok := cfg.Providers[provider]; !ok || pc.APIKey == "" {
		desc = "Leave empty to rely on the environment"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(getProviderDisplayName(provider) + " API key").
				Description(desc).
				EchoMode(huh.EchoModePassword).
				Value(&key),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}
	cfg.Providers[provider] = config.ProviderConfig{APIKey: key}
	return nil
}

func editTranscription(cfg *config.Config) error {
	provider := cfg.Transcription.Provider
	lang := cfg.Transcription.Language

	providerForm := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Transcription provider").
				Options(providerOptions(provider)...).
				Value(&provider),
			huh.NewSelect[string]().
				Title("Spoken language").
				Options(languageOptions(lang)...).
				Value(&lang),
		),
	).WithTheme(getTheme())

	if err := providerForm.Run(); err != nil {
		return err
	}

	model := cfg.Transcription.Model
	if provider != cfg.Transcription.Provider || model == "" {
		model = defaultTranscriptionModel(provider)
	}
	modelForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Transcription model").
				Value(&model),
		),
	).WithTheme(getTheme())

	if err := modelForm.Run(); err != nil {
		return err
	}

	cfg.Transcription.Provider = provider
	cfg.Transcription.Language = lang
	cfg.Transcription.Model = model
	return nil
}

func editLLM(cfg *config.Config) error {
	provider := cfg.LLM.Provider
	model := cfg.LLM.Model
	summaryModel := cfg.LLM.SummaryModel
	temperature := strconv.FormatFloat(float64(cfg.LLM.Temperature), 'f', -1, 32)

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("LLM provider").
				Description("Writes summaries and scripts").
				Options(providerOptions(provider)...).
				Value(&provider),
			huh.NewInput().
				Title("Script model").
				Value(&model).
				Validate(requireValue("model")),
			huh.NewInput().
				Title("Summary model").
				Description("Leave empty to use the script model").
				Value(&summaryModel),
			huh.NewInput().
				Title("Temperature").
				Description("Between 0 and 2").
				Value(&temperature).
				Validate(func(s string) error {
					_, err := parseTemperature(s)
					return err
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	temp, err := parseTemperature(temperature)
	if err != nil {
		return err
	}
	cfg.LLM.Provider = provider
	cfg.LLM.Model = model
	cfg.LLM.SummaryModel = summaryModel
	cfg.LLM.Temperature = temp
	return nil
}

func editScript(cfg *config.Config) error {
	form := cfg.Script.VideoForm
	length := cfg.Script.VideoLength
	fallback := cfg.Script.FallbackSummary

	f := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Video form").
				Description("e.g. short-form vertical video, long-form tutorial").
				Value(&form).
				Validate(requireValue("video form")),
			huh.NewInput().
				Title("Video length").
				Description("e.g. 60 seconds, 10 minutes").
				Value(&length).
				Validate(requireValue("video length")),
			huh.NewInput().
				Title("Fallback summary").
				Description("Used when the summarizer returns nothing").
				Placeholder("Untitled video idea").
				Value(&fallback),
		),
	).WithTheme(getTheme())

	if err := f.Run(); err != nil {
		return err
	}
	cfg.Script.VideoForm = form
	cfg.Script.VideoLength = length
	cfg.Script.FallbackSummary = fallback
	return nil
}

func editStore(cfg *config.Config) error {
	backend := cfg.Store.Backend
	path := cfg.Store.Path

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Storage backend").
				Options(
					huh.NewOption("bbolt (single file, no server)", "bolt"),
					huh.NewOption("SQLite", "sqlite"),
				).
				Value(&backend),
			huh.NewInput().
				Title("Database path").
				Description("Leave empty for the default location").
				Value(&path),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Store.Backend = backend
	cfg.Store.Path = path
	return nil
}

// editInjection picks the export backends; order of the list is the fallback order
func editInjection(cfg *config.Config) error {
	backends := cfg.Injection.Backends
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Export backends").
				Description("Tried in order until one succeeds").
				Options(
					huh.NewOption("ydotool (type into focused window)", "ydotool"),
					huh.NewOption("wtype (type into focused window)", "wtype"),
					huh.NewOption("clipboard", "clipboard"),
				).
				Value(&backends).
				Validate(func(v []string) error {
					if len(v) == 0 {
						return fmt.Errorf("select at least one backend")
					}
					return nil
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Injection.Backends = orderBackends(backends)
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	notifType := cfg.Notifications.Type
	if notifType == "" {
		notifType = "desktop"
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Enable notifications?").
				Description("Shown when a summary is ready, a script is saved, or something fails").
				Value(&enabled),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Notification Type").
				Options(
					huh.NewOption("Desktop notifications (notify-send)", "desktop"),
					huh.NewOption("Log to console only", "log"),
					huh.NewOption("None (silent)", "none"),
				).
				Value(&notifType),
		).WithHideFunc(func() bool { return !enabled }),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}
	cfg.Notifications.Enabled = enabled
	cfg.Notifications.Type = notifType
	return nil
}

// editAdvanced covers the recorder settings most users never touch
func editAdvanced(cfg *config.Config) error {
	device := cfg.Recording.Device
	sampleRate := strconv.Itoa(cfg.Recording.SampleRate)
	timeout := cfg.Recording.Timeout.String()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Recording device").
				Description("PipeWire target; empty uses the default source").
				Value(&device),
			huh.NewInput().
				Title("Sample rate").
				Value(&sampleRate).
				Validate(func(s string) error {
					_, err := parsePositiveInt(s)
					return err
				}),
			huh.NewInput().
				Title("Maximum capture length").
				Description("Go duration, e.g. 2m or 90s").
				Value(&timeout).
				Validate(func(s string) error {
					_, err := parseDuration(s)
					return err
				}),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return err
	}

	rate, err := parsePositiveInt(sampleRate)
	if err != nil {
		return err
	}
	d, err := parseDuration(timeout)
	if err != nil {
		return err
	}
	cfg.Recording.Device = device
	cfg.Recording.SampleRate = rate
	cfg.Recording.Timeout = d
	return nil
}
