package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/portfolioviz/internal/api"
	"github.com/wonny/portfolioviz/internal/api/handlers"
	"github.com/wonny/portfolioviz/internal/scheduler"
	"github.com/wonny/portfolioviz/internal/scheduler/jobs"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "대시보드 서버 시작",
	Long: `Starts the dashboard HTTP server.

This command:
- loads the portfolio list from the backend once
- serves the dashboard page and its WebSocket channel
- sweeps idle sessions and probes the backend on a schedule

Endpoints:
  GET  /                 - Dashboard page
  GET  /ws               - Live dashboard session
  GET  /api/view         - One-shot view (?portfolio=&from=&to=)
  GET  /api/portfolios   - Portfolio list
  GET  /health           - Health check

Example:
  go run ./cmd/portfolioviz serve
  go run ./cmd/portfolioviz serve --port 8080`,
	RunE: runServe,
}

var (
	servePort string
)

func init() {
	rootCmd.AddCommand(serveCmd)

	// Flags
	serveCmd.Flags().StringVar(&servePort, "port", "", "HTTP port (default from PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	fmt.Println("=== Portfolio Visualization ===")

	ctx := context.Background()

	a, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	// Override port if flag is set
	if servePort != "" {
		a.cfg.Port = servePort
	}

	log := a.log
	log.WithFields(map[string]interface{}{
		"port":    a.cfg.Port,
		"env":     a.cfg.Env,
		"backend": a.cfg.Backend.BaseURL,
	}).Info("Initializing dashboard server")

	// 1. Portfolio list, once; failure leaves the default portfolio usable
	loadCtx, cancel := context.WithTimeout(ctx, a.cfg.Backend.Timeout)
	_ = a.manager.LoadPortfolios(loadCtx)
	cancel()

	// 2. Scheduler
	sched := scheduler.New(log)
	probe := jobs.NewBackendProbeJob(a.client, a.cfg.Backend.ProbeSchedule, log)
	if err := sched.AddJob(jobs.NewSessionSweepJob(a.manager, a.cfg.Dashboard.SessionSweepSchedule, log)); err != nil {
		return fmt.Errorf("schedule session sweep: %w", err)
	}
	if err := sched.AddJob(probe); err != nil {
		return fmt.Errorf("schedule backend probe: %w", err)
	}
	if a.memory != nil {
		if err := sched.AddJob(jobs.NewCacheCleanupJob(a.memory, log)); err != nil {
			return fmt.Errorf("schedule cache cleanup: %w", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	// first probe now so the log shows backend reachability at start-up
	if _, err := sched.RunJob(probe.Name()); err != nil {
		return err
	}

	// 3. Handlers, router, server
	router := api.NewRouter(
		handlers.NewDashboardHandler(a.manager, probe, log),
		handlers.NewWSHandler(a.manager, log),
		log,
	)
	server := api.New(a.cfg, log, router)

	// 4. Start server with graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	fmt.Printf("\n✅ Dashboard running on http://localhost:%s\n", a.cfg.Port)
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("Shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
