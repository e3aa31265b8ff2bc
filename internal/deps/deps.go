package deps

import (
	"os/exec"
	"strings"

	"github.com/idealoop/idealoop/internal/config"
)

// Status represents the installation status of a dependency
type Status struct {
	Installed bool
	Path      string
	Version   string
}

// Tool is an external program a configuration relies on.
type Tool struct {
	Name        string
	Purpose     string
	VersionArgs []string
	// Optional tools only matter for one fallback among several.
	Optional bool
}

// Check looks name up in PATH and reads the first line of its version output
func Check(name string, versionArgs ...string) Status {
	path, err := exec.LookPath(name)
	if err != nil {
		return Status{Installed: false}
	}

	status := Status{
		Installed: true,
		Path:      path,
	}
	if len(versionArgs) == 0 {
		return status
	}

	output, err := exec.Command(path, versionArgs...).Output()
	if err == nil {
		lines := strings.Split(string(output), "\n")
		if len(lines) > 0 {
			status.Version = strings.TrimSpace(lines[0])
		}
	}

	return status
}

// ToolsFor lists the programs cfg needs: PipeWire for capture, the export
// backends in fallback order, and notify-send for desktop notifications.
func ToolsFor(cfg *config.Config) []Tool {
	tools := []Tool{
		{Name: "pw-record", Purpose: "voice capture", VersionArgs: []string{"--version"}},
		{Name: "pw-cli", Purpose: "microphone check", VersionArgs: []string{"--version"}},
	}

	optional := len(cfg.Injection.Backends) > 1
	for _, b := range cfg.Injection.Backends {
		switch b {
		case "ydotool":
			tools = append(tools, Tool{Name: "ydotool", Purpose: "export (typing)", Optional: optional})
		case "wtype":
			tools = append(tools, Tool{Name: "wtype", Purpose: "export (typing)", Optional: optional})
		case "clipboard":
			tools = append(tools, Tool{Name: "wl-copy", Purpose: "export (clipboard)", VersionArgs: []string{"--version"}, Optional: optional})
		}
	}

	if cfg.NotificationKind() == "desktop" {
		tools = append(tools, Tool{Name: "notify-send", Purpose: "notifications", VersionArgs: []string{"--version"}, Optional: true})
	}
	return tools
}
