package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/idealoop/idealoop/internal/bus"
	"github.com/idealoop/idealoop/internal/config"
	"github.com/idealoop/idealoop/internal/daemon"
	"github.com/idealoop/idealoop/internal/deps"
	"github.com/idealoop/idealoop/internal/injection"
	"github.com/idealoop/idealoop/internal/llm"
	"github.com/idealoop/idealoop/internal/mcpserver"
	"github.com/idealoop/idealoop/internal/notify"
	"github.com/idealoop/idealoop/internal/recording"
	"github.com/idealoop/idealoop/internal/session"
	"github.com/idealoop/idealoop/internal/store"
	"github.com/idealoop/idealoop/internal/transcriber"
	"github.com/idealoop/idealoop/internal/tui"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "idealoop: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "idealoop",
	Short:         "Talk through a video idea, get a script",
	SilenceErrors: true,
	SilenceUsage:  true,
}

func init() {
	rootCmd.AddCommand(
		serveCmd(),
		holdCmd(),
		sayCmd(),
		generateCmd(),
		cancelCmd(),
		newCmd(),
		historyCmd(),
		openCmd(),
		statusCmd(),
		exportCmd(),
		watchCmd(),
		configureCmd(),
		mcpCmd(),
		doctorCmd(),
		versionCmd(),
		stopCmd(),
	)
}

// send runs one command against the daemon and turns a daemon-side failure
// into an error.
func send(cmd bus.Command) (bus.Response, error) {
	resp, err := bus.SendCommand(cmd)
	if err != nil {
		return bus.Response{}, fmt.Errorf("daemon not reachable (is `idealoop serve` running?): %w", err)
	}
	return resp, resp.Err()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	mgr, err := config.NewManager()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := mgr.GetConfig()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	st, err := store.Open(cfg.ToStoreConfig())
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	adapter, err := llm.NewAdapter(cfg.ToLLMConfig())
	if err != nil {
		return fmt.Errorf("failed to create LLM adapter: %w", err)
	}
	batch, err := transcriber.NewAdapter(cfg.ToTranscriberConfig())
	if err != nil {
		return fmt.Errorf("failed to create transcriber: %w", err)
	}
	recognizer := transcriber.NewRecognizer(
		recording.NewRecorder(cfg.ToRecordingConfig()),
		batch,
		cfg.ToRecognizerOptions(),
	)

	d := daemon.New(daemon.Deps{
		Summarizer: adapter,
		Generator:  adapter,
		Store:      st,
		Recognizer: recognizer,
		Prober:     recording.PipeWireProber{},
		Injector:   injection.NewInjector(cfg.ToInjectionConfig()),
		Notifier:   notify.New(cfg.NotificationKind(), cfg.Notifications.Messages.Resolve()),
		Session: session.Options{
			UserID:          cfg.UserID(),
			VideoForm:       cfg.Script.VideoForm,
			VideoLength:     cfg.Script.VideoLength,
			FallbackSummary: cfg.Script.FallbackSummary,
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mgr.OnReload(d.ApplyConfig)
	if err := mgr.StartWatching(ctx); err != nil {
		log.Printf("Config manager: hot reload disabled: %v", err)
	}
	defer mgr.Stop()

	log.Printf("Serving ideas for user %s", cfg.UserID())
	return d.Run()
}

func holdCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hold",
		Short: "Push-to-talk: capture speech until Enter is pressed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHold()
		},
	}
}

// runHold keeps its connection open for the whole hold. The daemon releases
// the capture if the connection drops, so Ctrl-C also ends the utterance.
func runHold() error {
	client, err := bus.Dial()
	if err != nil {
		return fmt.Errorf("daemon not reachable (is `idealoop serve` running?): %w", err)
	}
	defer client.Close()

	resp, err := client.SendCommand(bus.Command{Cmd: bus.CmdBegin})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	if !resp.Started {
		fmt.Println("Capture not started (already listening, or history is open).")
		return nil
	}

	fmt.Println("Listening... press Enter to finish.")

	released := make(chan struct{})
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		close(released)
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-released:
	case <-sigCh:
	}

	resp, err = client.SendCommand(bus.Command{Cmd: bus.CmdRelease})
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	fmt.Println("Released. Run `idealoop status` to see the updated idea.")
	return nil
}

func sayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "say [text...]",
		Short: "Add a typed chunk to the idea (no text re-summarizes)",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(bus.Command{Cmd: bus.CmdSay, Text: strings.Join(args, " ")})
			if err != nil {
				return err
			}
			printSummary(os.Stdout, resp.Session)
			return nil
		},
	}
}

func generateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "generate",
		Short: "Generate a script for the current idea, printing it as it streams",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := bus.Dial()
			if err != nil {
				return fmt.Errorf("daemon not reachable (is `idealoop serve` running?): %w", err)
			}
			defer client.Close()

			var printed strings.Builder
			resp, err := client.Do(bus.Command{Cmd: bus.CmdGenerate}, func(ev bus.Event) {
				if ev.Event == bus.EvFragment {
					fmt.Print(ev.Text)
					printed.WriteString(ev.Text)
				}
			})
			if err == nil {
				finishScript(os.Stdout, printed.String(), resp.Session)
			}
			fmt.Println()
			if err != nil {
				return err
			}
			if err := resp.Err(); err != nil {
				return err
			}
			if resp.Session != nil && resp.Session.Generation == session.GenCancelled {
				fmt.Println("(cancelled)")
			}
			if resp.RecordID != "" {
				fmt.Printf("Saved as %s\n", resp.RecordID)
			}
			return nil
		},
	}
}

func cancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Stop the running script generation, keeping what arrived",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(bus.Command{Cmd: bus.CmdCancel})
			return err
		},
	}
}

func newCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Start a new idea",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(bus.Command{Cmd: bus.CmdNew})
			return err
		},
	}
}

func historyCmd() *cobra.Command {
	var closeHistory bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved ideas, most recently opened first",
		RunE: func(cmd *cobra.Command, args []string) error {
			if closeHistory {
				_, err := send(bus.Command{Cmd: bus.CmdCloseHistory})
				return err
			}
			resp, err := send(bus.Command{Cmd: bus.CmdHistory})
			if err != nil {
				return err
			}
			printRecords(os.Stdout, resp.Records)
			fmt.Println()
			fmt.Println("History is open: voice capture is paused until `idealoop open <id>` or `idealoop history --close`.")
			return nil
		},
	}

	cmd.Flags().BoolVar(&closeHistory, "close", false, "close history without opening a record")

	return cmd
}

func openCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "open <id>",
		Short: "Open a saved idea",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(bus.Command{Cmd: bus.CmdOpen, ID: args[0]})
			if err != nil {
				return err
			}
			printSnapshot(os.Stdout, resp.Session)
			return nil
		},
	}
}

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(bus.Command{Cmd: bus.CmdStatus})
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(resp.Session)
			}
			printSnapshot(os.Stdout, resp.Session)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw session snapshot")

	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Type or copy the current script into the focused window",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(bus.Command{Cmd: bus.CmdExport})
			return err
		},
	}
}

func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return tui.RunWatch()
		},
	}
}

func configureCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "configure",
		Short: "Interactive configuration setup",
		Long: `Interactive configuration editor for idealoop.
This covers:
- Provider API keys (OpenAI, Groq)
- Transcription and LLM settings
- Video form and length for generated scripts
- Storage, export and notification preferences`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure()
		},
	}
}

func runConfigure() error {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		cfg = config.DefaultConfig()
	} else if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	result, err := tui.RunConfigure(cfg)
	if err != nil {
		return fmt.Errorf("configuration editor error: %w", err)
	}

	if result.Cancelled {
		fmt.Println("Configuration cancelled.")
		return nil
	}

	if err := result.Config.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := config.Save(result.Config); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Println("Configuration saved successfully!")
	fmt.Println()

	showNextSteps()

	return nil
}

func showNextSteps() {
	serviceRunning := false
	if _, err := exec.Command("systemctl", "--user", "is-active", "--quiet", "idealoop.service").CombinedOutput(); err == nil {
		serviceRunning = true
	}
	daemonRunning := false
	if _, err := bus.SendCommand(bus.Command{Cmd: bus.CmdVersion}); err == nil {
		daemonRunning = true
	}

	fmt.Println("Next Steps:")
	switch {
	case serviceRunning:
		fmt.Println("1. Script and notification changes apply live; restart for the rest: systemctl --user restart idealoop.service")
	case daemonRunning:
		fmt.Println("1. Script and notification changes apply live; restart `idealoop serve` for the rest")
	default:
		fmt.Println("1. Start the daemon: idealoop serve")
	}
	fmt.Println("2. Bind `idealoop hold` to a key, or try: idealoop say \"a video about...\"")
	fmt.Println()

	configPath, _ := config.GetConfigPath()
	fmt.Printf("Config file location: %s\n", configPath)
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve saved ideas read-only over MCP (stdio)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault()
			if err != nil {
				return err
			}
			st, err := store.Open(cfg.ToStoreConfig())
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()
			return mcpserver.New(st, cfg.UserID()).ServeStdio()
		},
	}
}

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration and external tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadOrDefault()
			if err != nil {
				return err
			}
			return runDoctor(cfg)
		},
	}
}

func runDoctor(cfg *config.Config) error {
	problems := 0

	if err := cfg.Validate(); err != nil {
		fmt.Printf("  [ ] config: %v\n", err)
		problems++
	} else {
		fmt.Println("  [x] config")
	}

	for _, tool := range deps.ToolsFor(cfg) {
		status := deps.Check(tool.Name, tool.VersionArgs...)
		if !status.Installed && !tool.Optional {
			problems++
		}
		fmt.Println(formatToolLine(tool, status))
	}

	if _, err := bus.SendCommand(bus.Command{Cmd: bus.CmdVersion}); err != nil {
		fmt.Println("  [ ] daemon not running")
	} else {
		fmt.Println("  [x] daemon running")
	}

	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	return nil
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Get protocol version",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := send(bus.Command{Cmd: bus.CmdVersion})
			if err != nil {
				return err
			}
			fmt.Println(resp.Version)
			return nil
		},
	}
}

func stopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := send(bus.Command{Cmd: bus.CmdQuit})
			return err
		},
	}
}

func loadOrDefault() (*config.Config, error) {
	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigNotFound) {
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
