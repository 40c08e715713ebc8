package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/tiroq/meetjoin/internal/bridge"
	"github.com/tiroq/meetjoin/internal/catalog"
	"github.com/tiroq/meetjoin/internal/config"
	"github.com/tiroq/meetjoin/internal/diaglog"
	"github.com/tiroq/meetjoin/internal/engine"
	"github.com/tiroq/meetjoin/internal/ipc"
	"github.com/tiroq/meetjoin/internal/membership"
	"github.com/tiroq/meetjoin/internal/metrics"
	"github.com/tiroq/meetjoin/internal/pidfile"
	"github.com/tiroq/meetjoin/internal/recorder"
	"github.com/tiroq/meetjoin/internal/session"
)

// Version is set at build time via -ldflags "-X main.Version=..."
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, envFile string

	cmd := &cobra.Command{
		Use:           "meetjoin-core",
		Short:         "Join the newest live meeting in the chat workspace and leave when it empties",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: false,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// .env is a local convenience; real deployments use the environment.
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to config.json (default ~/.config/meetjoin/config.json)")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) (err error) {
	outLog, errLog, err := initLogging(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			errLog.Printf("PANIC: %v", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	defer func() {
		if err != nil {
			errLog.Printf("[SHUTDOWN] Exiting with error: %v", err)
		}
	}()

	outLog.Println("===========================================")
	outLog.Println("Starting Meetjoin Core v" + Version + "...")
	outLog.Printf("PID: %d", os.Getpid())
	outLog.Printf("Config: %s", displayPath(cfg.Path))
	outLog.Println("===========================================")

	pidPath := pidfile.Path(cfg.StateDir, "meetjoin-core")
	pf, err := pidfile.New(pidPath)
	if err != nil {
		errLog.Printf("If you're sure no other instance is running, remove: %s", pidPath)
		return err
	}
	defer func() {
		if err := pf.Remove(); err != nil {
			errLog.Printf("Warning: failed to remove PID file: %v", err)
		}
	}()

	diaglog.Version = Version
	diagLogger, diagErr := diaglog.New(diaglog.PathFor(cfg.StateDir))
	if diagErr != nil {
		errLog.Printf("[STARTUP] WARNING: could not open diagnostic log: %v (continuing)", diagErr)
		diagLogger = diaglog.NewNoOp()
	}
	defer func() { _ = diagLogger.Close() }()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		srv := startMetricsServer(cfg.MetricsAddr, m, outLog, errLog)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	clk := clockwork.NewRealClock()
	if cfg.RunAtTime != "" {
		delay, _ := engine.StartDelay(clk.Now(), cfg.RunAtTime)
		outLog.Printf("[STARTUP] Waiting %s until %s", delay.Round(time.Second), cfg.RunAtTime)
		if err := engine.WaitUntilStart(ctx, clk, cfg.RunAtTime); err != nil {
			outLog.Println("[SHUTDOWN] Interrupted before start time")
			return nil
		}
	}

	agent := bridge.NewClient(cfg.Bridge.URL, cfg.Bridge.Token, time.Duration(cfg.Bridge.ActionTimeoutSeconds)*time.Second)
	agent.SetLogger(diagLogger)
	defer func() {
		outLog.Println("[SHUTDOWN] Disconnecting from page agent...")
		agent.Close()
	}()

	readyTimeout := time.Duration(cfg.Bridge.ReadyTimeoutSeconds) * time.Second
	outLog.Printf("[STARTUP] Waiting up to %s for the page agent at %s...", readyTimeout, cfg.Bridge.URL)
	if err := agent.WaitReady(ctx, readyTimeout, 2*time.Second); err != nil {
		if ctx.Err() != nil {
			outLog.Println("[SHUTDOWN] Interrupted while waiting for the page agent")
			return nil
		}
		errLog.Println("Please make sure the chat page is open with the meetjoin agent loaded")
		return err
	}
	outLog.Println("[STARTUP] Page agent ready")

	backend := startRecorder(ctx, cfg.Recorder, diagLogger, outLog, errLog)
	defer backend.Disconnect()
	rec := recorder.NewSessionRecorder(backend, clk, 15*time.Second)
	rec.SetLoggers(outLog, diagLogger)

	ctrl := session.NewController(agent, clk, session.Options{AutoLeaveAfter: cfg.AutoLeaveAfter()})
	ctrl.SetRecorder(rec)
	ctrl.SetLogger(diagLogger)

	builder := catalog.NewBuilder(agent)
	builder.SetLogger(diagLogger)

	tracker := membership.NewTracker()
	tracker.SetLogger(diagLogger)

	eng := engine.New(cfg, engine.Deps{
		Catalog:         builder,
		Session:         ctrl,
		Counter:         agent,
		Tracker:         tracker,
		Clock:           clk,
		Metrics:         m,
		Diag:            diagLogger,
		Out:             outLog,
		Err:             errLog,
		StateDir:        cfg.StateDir,
		RecorderBackend: backend.Name(),
		Version:         Version,
	})

	cmds := make(chan ipc.Command)
	watchCtx, stopWatch := context.WithCancel(ctx)
	defer stopWatch()
	go watchCommands(watchCtx, cfg.StateDir, cmds, outLog, errLog)

	outLog.Printf("[STARTUP] Polling every %s (pause_search=%v, auto_leave=%s, leave_if_last=%v)",
		cfg.PollInterval(), cfg.PauseSearch, cfg.AutoLeaveAfter(), cfg.LeaveIfLast)
	outLog.Println("===========================================")
	outLog.Println("[RUNNING] Meetjoin Core is running")

	runErr := eng.Run(ctx, cmds)

	outLog.Println("===========================================")
	outLog.Printf("[SHUTDOWN] Stopping at %s", time.Now().Format(time.RFC3339))

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()
	if err := ctrl.Close(shutdownCtx); err != nil {
		errLog.Printf("[SHUTDOWN] Failed to leave the meeting: %v", err)
	}
	rec.Close()

	if errors.Is(runErr, catalog.ErrNoTeams) {
		errLog.Println("[SHUTDOWN] No teams are visible; is the account signed in?")
		return runErr
	}
	outLog.Println("[SHUTDOWN] Shut down gracefully")
	return nil
}

// startRecorder connects the configured backend. A backend that cannot
// connect is replaced by the no-op one so meetings are still joined.
func startRecorder(ctx context.Context, cfg config.RecorderConfig, diag *diaglog.Logger, outLog, errLog *log.Logger) recorder.Backend {
	backend, err := recorder.New(cfg, diag)
	if err != nil {
		errLog.Printf("[STARTUP] %v, recording disabled", err)
		return recorder.Nop{}
	}
	if backend.Name() == config.RecorderNone {
		outLog.Println("[STARTUP] Recording disabled (recorder.backend=none)")
		return backend
	}

	outLog.Printf("[STARTUP] Connecting to %s recorder...", backend.Name())
	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := backend.Connect(connectCtx); err != nil {
		errLog.Printf("[STARTUP] Recorder unavailable: %v (continuing without recording)", err)
		errLog.Println("  Enable Tools > obs-websocket Settings > 'Enable WebSocket server' in OBS")
		backend.Disconnect()
		return recorder.Nop{}
	}
	if err := backend.HealthCheck(connectCtx); err != nil {
		errLog.Printf("[STARTUP] Recorder health check failed: %v (continuing)", err)
	}
	outLog.Printf("[STARTUP] Recorder %s connected", backend.Name())
	return backend
}

func startMetricsServer(addr string, m *metrics.Metrics, outLog, errLog *log.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errLog.Printf("metrics server: %v", err)
		}
	}()
	outLog.Printf("[STARTUP] Metrics on http://%s/metrics", addr)
	return srv
}

func displayPath(p string) string {
	if p == "" {
		return "(defaults)"
	}
	return p
}
