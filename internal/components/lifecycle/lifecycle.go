package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"platewatch/internal/components/telemetry"
)

const report_hooks_shutdown = "hooks.shutdown"

// SignalContext returns a context that is cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func Fatal(message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(1)
}

type hook struct {
	name string
	fn   func(ctx context.Context) error
}

// Hooks is an ordered list of named shutdown steps. Shutdown runs them in
// registration order exactly once, a failing hook does not stop the rest.
type Hooks struct {
	tel telemetry.API

	mu    sync.Mutex
	hooks []hook
	done  bool
}

func NewHooks(tel telemetry.API) *Hooks {
	return &Hooks{tel: telemetry.NewScopedAPI("lifecycle", tel)}
}

func (h *Hooks) Register(name string, fn func(ctx context.Context) error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks = append(h.hooks, hook{name: name, fn: fn})
}

// Shutdown runs every hook with ctx, calls after the first do nothing.
func (h *Hooks) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	if h.done {
		h.mu.Unlock()
		return nil
	}
	h.done = true
	hooks := h.hooks
	h.mu.Unlock()

	var errs []error
	for _, hk := range hooks {
		h.tel.ReportDebug("shutting down", hk.name)
		err := hk.fn(ctx)
		if err != nil {
			h.tel.ReportBroken(report_hooks_shutdown, err, hk.name)
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
		}
	}
	return errors.Join(errs...)
}
