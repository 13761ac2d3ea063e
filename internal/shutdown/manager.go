package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager runs named shutdown hooks in reverse registration order, each under
// its own timeout.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger
	mu      sync.Mutex
	funcs   []shutdownFunc
}

type shutdownFunc struct {
	name string
	fn   func(context.Context) error
}

func New(timeout time.Duration, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{timeout: timeout, logger: logger}
}

func (m *Manager) Add(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, shutdownFunc{name: name, fn: fn})
}

// Wait blocks until SIGINT/SIGTERM or until ctx is done, then runs the hooks.
func (m *Manager) Wait(ctx context.Context) {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case s := <-sig:
		m.logger.Info("received shutdown signal", zap.String("signal", s.String()))
	case <-ctx.Done():
		m.logger.Info("context done, shutting down")
	}
	m.Run()
}

// Run executes every hook, last registered first. It returns the number of
// hooks that failed.
func (m *Manager) Run() int {
	m.mu.Lock()
	funcs := make([]shutdownFunc, len(m.funcs))
	copy(funcs, m.funcs)
	m.mu.Unlock()

	failed := 0
	for i := len(funcs) - 1; i >= 0; i-- {
		f := funcs[i]
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		start := time.Now()
		err := f.fn(ctx)
		cancel()

		if err != nil {
			failed++
			m.logger.Error("shutdown hook failed",
				zap.String("name", f.name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			continue
		}
		m.logger.Info("shutdown hook completed",
			zap.String("name", f.name),
			zap.Duration("duration", time.Since(start)))
	}
	m.logger.Info("graceful shutdown completed")
	return failed
}

// HTTPServer adapts an http.Server to a shutdown hook.
func HTTPServer(srv interface {
	Shutdown(context.Context) error
}) func(context.Context) error {
	return srv.Shutdown
}

// Func adapts a context-free close function to a shutdown hook.
func Func(fn func()) func(context.Context) error {
	return func(context.Context) error {
		fn()
		return nil
	}
}

// Closer adapts an io.Closer style close function to a shutdown hook.
func Closer(fn func() error) func(context.Context) error {
	return func(context.Context) error { return fn() }
}
