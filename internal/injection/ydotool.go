package injection

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

type ydotoolBackend struct {
	getenv func(string) string
}

func NewYdotoolBackend() Backend {
	return &ydotoolBackend{getenv: os.Getenv}
}

func (y *ydotoolBackend) Name() string {
	return "ydotool"
}

// Available also requires a reachable ydotoold when the daemon is installed.
func (y *ydotoolBackend) Available() error {
	if err := lookTool("ydotool", "ydotool"); err != nil {
		return err
	}
	if _, err := exec.LookPath("ydotoold"); err != nil {
		return nil
	}

	socketPath := firstExisting(y.socketCandidates())
	if socketPath == "" {
		return fmt.Errorf("ydotoold socket not found - ensure ydotoold is running")
	}
	// newer ydotoold listens on a datagram socket, older ones on a stream socket
	conn, err := net.Dial("unixgram", socketPath)
	if err != nil {
		conn, err = net.DialTimeout("unix", socketPath, 500*time.Millisecond)
	}
	if err != nil {
		return fmt.Errorf("ydotoold not responding at %s: %w", socketPath, err)
	}
	return conn.Close()
}

// socketCandidates lists where ydotoold may have put its socket, most
// specific first.
func (y *ydotoolBackend) socketCandidates() []string {
	var paths []string
	if sock := y.getenv("YDOTOOL_SOCKET"); sock != "" {
		paths = append(paths, sock)
	}
	if xdg := y.getenv("XDG_RUNTIME_DIR"); xdg != "" {
		paths = append(paths, filepath.Join(xdg, ".ydotool_socket"))
	}
	return append(paths,
		filepath.Join("/run/user", strconv.Itoa(os.Getuid()), ".ydotool_socket"),
		"/tmp/.ydotool_socket",
	)
}

func firstExisting(paths []string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

func (y *ydotoolBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	return typeWith(ctx, timeout, "ydotool", []string{"type"}, text)
}
