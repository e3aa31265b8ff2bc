package injection

import (
	"context"
	"time"
)

type wtypeBackend struct{}

func NewWtypeBackend() Backend {
	return &wtypeBackend{}
}

func (w *wtypeBackend) Name() string {
	return "wtype"
}

func (w *wtypeBackend) Available() error {
	return lookTool("wtype", "wtype")
}

func (w *wtypeBackend) Inject(ctx context.Context, text string, timeout time.Duration) error {
	return typeWith(ctx, timeout, "wtype", nil, text)
}
