package main

import (
	"context"
	"fmt"
	"time"

	"github.com/giygas/gho-indicators/data"
	"github.com/giygas/gho-indicators/handlers"
	"github.com/giygas/gho-indicators/health"
	"github.com/giygas/gho-indicators/logging"
	"github.com/giygas/gho-indicators/scheduler"
	"github.com/giygas/gho-indicators/server"
	"github.com/giygas/gho-indicators/validation"
	"github.com/spf13/cobra"
)

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the latest topic tables over HTTP and refresh them on a schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.serve(cmd.Context())
		},
	}
}

// serve runs the API until ctx is cancelled. The initial load runs in the
// background so /health answers while it is in progress.
func (c *cli) serve(ctx context.Context) error {
	topics, err := c.loadTopics()
	if err != nil {
		return err
	}
	p, err := c.newPipeline()
	if err != nil {
		return err
	}

	store := data.NewDataContainer()
	store.SetServerStartTime(time.Now())

	sched := scheduler.NewScheduler(store, p, topics, c.cfg.ScheduleTimes)
	checker := health.NewHealthChecker(store, sched)
	handler := handlers.NewHTTPHandler(store, validation.NewDataValidator(), checker, topics)
	srv := server.NewServer(c.cfg, handler)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- fmt.Errorf("server failed: %w", err)
		}
	}()
	go func() {
		if err := sched.Start(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logging.Info("Shutdown signal received")
	case runErr = <-errCh:
	}

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}
