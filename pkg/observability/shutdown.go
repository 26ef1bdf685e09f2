package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultShutdownTimeout bounds a shutdown when none is configured
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager stops the HTTP servers first, then runs the registered
// shutdown functions concurrently.
type ShutdownManager struct {
	logger  *Logger
	timeout time.Duration

	mu      sync.Mutex
	servers []*http.Server
	funcs   []ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, timeout time.Duration) *ShutdownManager {
	if logger == nil {
		logger = NewLogger(InfoLevel, nil)
	}
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	return &ShutdownManager{logger: logger, timeout: timeout}
}

// RegisterServer adds a server stopped before any shutdown function runs
func (sm *ShutdownManager) RegisterServer(server *http.Server) {
	if server == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.servers = append(sm.servers, server)
}

// RegisterShutdownFunc registers a function to call during shutdown
func (sm *ShutdownManager) RegisterShutdownFunc(fn ShutdownFunc) {
	if fn == nil {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.funcs = append(sm.funcs, fn)
}

// Shutdown drains the servers, then runs every shutdown function within the
// manager's timeout. All failures are returned joined.
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, sm.timeout)
	defer cancel()

	sm.mu.Lock()
	servers := append([]*http.Server(nil), sm.servers...)
	funcs := append([]ShutdownFunc(nil), sm.funcs...)
	sm.mu.Unlock()

	var (
		errMu sync.Mutex
		errs  []error
	)
	collect := func(err error) {
		errMu.Lock()
		errs = append(errs, err)
		errMu.Unlock()
	}

	run := func(fns []ShutdownFunc) {
		var g errgroup.Group
		for i, fn := range fns {
			g.Go(func() error {
				if err := fn(ctx); err != nil {
					sm.logger.WithError(err).Errorf("Shutdown step %d failed", i)
					collect(err)
				}
				return nil
			})
		}
		_ = g.Wait()
	}

	serverFuncs := make([]ShutdownFunc, 0, len(servers))
	for _, server := range servers {
		serverFuncs = append(serverFuncs, func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server %s shutdown: %w", server.Addr, err)
			}
			return nil
		})
	}
	run(serverFuncs)
	run(funcs)

	if err := ctx.Err(); err != nil {
		sm.logger.Warn("Shutdown timeout reached")
		collect(fmt.Errorf("shutdown timeout reached: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}

// WaitForShutdown blocks until SIGINT or SIGTERM arrives, or serverErr yields
// an error, then shuts everything down.
func (sm *ShutdownManager) WaitForShutdown(serverErr <-chan error) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var cause error
	select {
	case sig := <-sigChan:
		sm.logger.Infof("Received signal %s, starting graceful shutdown", sig)
	case err := <-serverErr:
		sm.logger.WithError(err).Error("Server failed, starting shutdown")
		cause = err
	}

	return errors.Join(cause, sm.Shutdown(context.Background()))
}
