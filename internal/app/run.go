package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/vk/dlsgrid/internal/ctxlog"
	"github.com/vk/dlsgrid/internal/executor"
	"github.com/vk/dlsgrid/internal/output"
	"github.com/vk/dlsgrid/internal/planner"
)

const shutdownTimeout = 5 * time.Second

// Serve initializes every group for the configured host and answers
// hand-overs until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Serve method started.")

	if err := a.InitializeGroups(ctx); err != nil {
		return err
	}

	addr := net.JoinHostPort("", strconv.Itoa(a.config.ListenPort))
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("🚀 Dispatch server starting", "address", addr, "groups", a.interop.Groups())
		a.logger.Info("🩺 Health check available", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("dispatch server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	a.logger.Info("🏁 Shutting down dispatch server...")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Dispatch server shutdown failed", "error", err)
		return err
	}
	a.logger.Debug("Dispatch server shut down gracefully.")
	return nil
}

// InitializeGroups binds every group of the manifest to the configured host
// and makes them reachable through the dispatch routes.
func (a *App) InitializeGroups(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	for _, group := range a.registry.Groups() {
		if _, err := a.initGroup(ctx, group); err != nil {
			return err
		}
	}
	return nil
}

// RunGroup runs group from the configured host. in seeds the run's output
// and may be nil.
func (a *App) RunGroup(ctx context.Context, group string, in *output.Output, propagate executor.Propagate) (*executor.Result, error) {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if _, ok := a.registry.Group(group); !ok {
		return nil, fmt.Errorf("group '%s' is not defined (defined: %v)", group, a.registry.Groups())
	}

	gc, err := a.initGroup(ctx, group)
	if err != nil {
		return nil, err
	}

	a.logger.Info("🚀 Starting group run...", "group", group)
	res, err := gc.RunGroup(ctx, in, executor.RunOptions{Propagate: propagate})
	if err != nil {
		return nil, fmt.Errorf("execution failed: %w", err)
	}
	a.logger.Info("🏁 Execution finished.", "group", group, "executed", len(res.Executed))
	return res, nil
}

// Plan builds the host-assigned plan of group without initializing it.
func (a *App) Plan(ctx context.Context, group string) (*planner.Plan, error) {
	return planner.Build(ctxlog.WithLogger(ctx, a.logger), a.registry, group)
}
