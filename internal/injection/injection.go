// Package injection delivers finished scripts into the focused window or the
// clipboard.
package injection

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

var ErrNoBackend = errors.New("no injection backend available")

// Backend is one way of getting text to the user.
type Backend interface {
	Name() string
	Available() error
	Inject(ctx context.Context, text string, timeout time.Duration) error
}

type Injector interface {
	Inject(ctx context.Context, text string) error
}

type Config struct {
	Backends         []string
	YdotoolTimeout   time.Duration
	WtypeTimeout     time.Duration
	ClipboardTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Backends:         []string{"wtype", "clipboard"},
		YdotoolTimeout:   5 * time.Second,
		WtypeTimeout:     5 * time.Second,
		ClipboardTimeout: 3 * time.Second,
	}
}

type injector struct {
	config   Config
	backends []Backend
}

// NewInjector builds an injector that tries the configured backends in order.
func NewInjector(config Config) Injector {
	var backends []Backend
	for _, name := range config.Backends {
		if b := backendByName(name); b != nil {
			backends = append(backends, b)
		} else {
			log.Printf("Injection: unknown backend %q ignored", name)
		}
	}
	return &injector{config: config, backends: backends}
}

func newInjectorWithBackends(config Config, backends ...Backend) *injector {
	return &injector{config: config, backends: backends}
}

func backendByName(name string) Backend {
	switch name {
	case "ydotool":
		return NewYdotoolBackend()
	case "wtype":
		return NewWtypeBackend()
	case "clipboard":
		return NewClipboardBackend()
	}
	return nil
}

func (i *injector) timeoutFor(name string) time.Duration {
	var d time.Duration
	switch name {
	case "ydotool":
		d = i.config.YdotoolTimeout
	case "wtype":
		d = i.config.WtypeTimeout
	case "clipboard":
		d = i.config.ClipboardTimeout
	}
	if d <= 0 {
		d = 5 * time.Second
	}
	return d
}

// Inject tries each backend until one succeeds.
func (i *injector) Inject(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("cannot inject empty text")
	}
	if len(i.backends) == 0 {
		return ErrNoBackend
	}

	var errs []error
	for _, b := range i.backends {
		if err := b.Available(); err != nil {
			log.Printf("Injection: %s unavailable: %v", b.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		if err := b.Inject(ctx, text, i.timeoutFor(b.Name())); err != nil {
			log.Printf("Injection: %s failed: %v", b.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		log.Printf("Injection: delivered %d chars via %s", len(text), b.Name())
		return nil
	}
	return fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}
