package config

import "time"

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() *Config {
	return &Config{
		Recording: RecordingConfig{
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			Timeout:           2 * time.Minute,
		},
		Transcription: TranscriptionConfig{
			Provider: "openai",
			Language: "",
			Model:    "whisper-1",
		},
		LLM: LLMConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			SummaryModel: "",
			Temperature:  0.7,
		},
		Script: ScriptConfig{
			VideoForm:   "short-form vertical video",
			VideoLength: "60 seconds",
		},
		Store: StoreConfig{
			Backend: "bolt",
		},
		Providers: make(map[string]ProviderConfig),
		Injection: InjectionConfig{
			Backends:         []string{"wtype", "clipboard"},
			YdotoolTimeout:   5 * time.Second,
			WtypeTimeout:     5 * time.Second,
			ClipboardTimeout: 3 * time.Second,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
	}
}
