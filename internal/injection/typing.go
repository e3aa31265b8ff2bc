package injection

import (
	"context"
	"fmt"
	"os/exec"
	"time"
	"unicode/utf8"
)

// perRune is how long a typing backend is allowed per character on top of
// the configured timeout. Scripts run to thousands of characters.
const perRune = 8 * time.Millisecond

// typingTimeout stretches base so a long script is not cut off mid-way.
func typingTimeout(base time.Duration, text string) time.Duration {
	return base + time.Duration(utf8.RuneCountInString(text))*perRune
}

// typeWith runs a virtual keyboard tool with text as its final argument.
func typeWith(ctx context.Context, timeout time.Duration, tool string, args []string, text string) error {
	ctx, cancel := context.WithTimeout(ctx, typingTimeout(timeout, text))
	defer cancel()

	args = append(append([]string{}, args...), "--", text)
	if err := exec.CommandContext(ctx, tool, args...).Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%s timed out after typing part of the script: %w", tool, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w", tool, err)
	}
	return nil
}

func lookTool(name, pkg string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%s not found: %w (install %s)", name, err, pkg)
	}
	return nil
}
