package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quantumtrader/chartsnap/internal/api"
	"github.com/quantumtrader/chartsnap/internal/browser"
	"github.com/quantumtrader/chartsnap/internal/capture"
	"github.com/quantumtrader/chartsnap/internal/config"
	"github.com/quantumtrader/chartsnap/internal/controller"
	"github.com/quantumtrader/chartsnap/internal/events"
	"github.com/quantumtrader/chartsnap/internal/netutil"
	"github.com/quantumtrader/chartsnap/internal/symbols"
)

func main() {
	cfg, err := config.LoadSnapshot()
	if err != nil {
		slog.Error("failed to load snapshotd config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("snapshotd config loaded",
		"bind_addr", cfg.BindAddr,
		"headless", cfg.Headless,
		"max_pages", cfg.MaxPages,
		"default_source", cfg.DefaultSource,
		"nav_timeout", cfg.NavTimeout,
		"request_deadline", cfg.RequestDeadline,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	bindAddr, err := netutil.SelectBindAddr(cfg.BindAddr, cfg.BindCandidates, cfg.AutoFallback)
	if err != nil {
		slog.Error("failed to select bind address", "preferred", cfg.BindAddr, "error", err)
		os.Exit(1)
	}

	manager := browser.NewManager(browser.Config{
		Headless:     cfg.Headless,
		BrowserPath:  cfg.BrowserPath,
		WindowWidth:  cfg.WindowWidth,
		WindowHeight: cfg.WindowHeight,
		MaxPages:     cfg.MaxPages,
		IdleClose:    cfg.IdleClose,
		LaunchWait:   cfg.LaunchWait,
	})
	defer manager.Shutdown()

	engine := capture.NewEngine(capture.EngineConfig{
		NavTimeout:    cfg.NavTimeout,
		RenderTimeout: cfg.RenderTimeout,
		MinImageBytes: cfg.MinImageBytes,
	})
	orchestrator := capture.NewOrchestrator(
		symbols.NewResolver(cfg.DefaultSource),
		manager,
		engine,
		capture.Policy{
			SourceRetries:   cfg.SourceRetries,
			RetryBackoff:    cfg.RetryBackoff,
			AttemptDelay:    cfg.AttemptDelay,
			RequestDeadline: cfg.RequestDeadline,
		},
	)

	broker := events.NewBroker()
	svc := controller.NewService(manager, orchestrator, broker, cfg.MinImageBytes)
	h := api.NewServer(svc, broker, api.Options{
		DefaultInterval: cfg.DefaultInterval,
		DefaultTheme:    cfg.DefaultTheme,
		DefaultWidth:    cfg.WindowWidth,
		DefaultHeight:   cfg.WindowHeight,
	})

	srv := &http.Server{Addr: bindAddr, Handler: h}

	go func() {
		slog.Info("snapshotd listening", "addr", bindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("snapshotd server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("snapshotd shutdown failed", "error", err)
	}
}

func setupLogger(level, filename string) error {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}

	logWriter := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    25,
		MaxBackups: 10,
		MaxAge:     14,
		Compress:   true,
	}

	h := slog.NewTextHandler(io.MultiWriter(os.Stdout, logWriter),
		&slog.HandlerOptions{Level: config.ParseLogLevel(level)})
	slog.SetDefault(slog.New(h))
	return nil
}
