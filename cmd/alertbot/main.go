package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/quantumtrader/chartsnap/internal/config"
	"github.com/quantumtrader/chartsnap/internal/notify"
	"github.com/quantumtrader/chartsnap/internal/snapclient"
	"github.com/quantumtrader/chartsnap/internal/tradelog"
	"github.com/quantumtrader/chartsnap/internal/trigger"
	"github.com/quantumtrader/chartsnap/internal/webhook"
)

func main() {
	cfg, err := config.LoadBot()
	if err != nil {
		slog.Error("failed to load alertbot config", "error", err)
		os.Exit(1)
	}

	if err := setupLogger(cfg.LogLevel, cfg.LogFile); err != nil {
		if _, writeErr := io.WriteString(os.Stderr, "logger setup failed: "+err.Error()+"\n"); writeErr != nil {
			slog.Debug("logger setup stderr write failed", "error", writeErr)
		}
		os.Exit(1)
	}

	slog.Info("alertbot config loaded",
		"bind_addr", cfg.BindAddr,
		"snapshot_base_url", cfg.SnapshotBaseURL,
		"telegram_enabled", cfg.TelegramToken != "",
		"auto_trade", cfg.AutoTrade,
		"tradelog_dir", cfg.TradeLogDir,
		"log_level", cfg.LogLevel,
		"log_file", cfg.LogFile,
	)

	httpc := &http.Client{Timeout: 90 * time.Second}
	telegram := notify.NewTelegram(cfg.TelegramToken, httpc)
	charts := snapclient.New(cfg.SnapshotBaseURL, httpc, cfg.MinImageBytes)
	rpa := trigger.NewUIVision(cfg.UIVisionURL, cfg.UIVisionMacro, httpc)

	trades := tradelog.NewStore(cfg.TradeLogDir, 256, 25)
	defer func() {
		if err := trades.Close(); err != nil {
			slog.Debug("trade log close failed", "error", err)
		}
	}()

	hook := webhook.NewHandler(webhook.Config{
		Secret:      cfg.WebhookSecret,
		ChatID:      cfg.TelegramChatID,
		AutoTrade:   cfg.AutoTrade,
		TradeExpiry: cfg.TradeExpiry,
		TradeSize:   cfg.TradeSize,
		Theme:       cfg.ChartTheme,
	}, telegram, charts, rpa, trades)

	router := chi.NewMux()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Mount("/", hook.Routes())
	router.Get("/summary", func(w http.ResponseWriter, r *http.Request) {
		sum, err := tradelog.Summarize(cfg.TradeLogDir)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(sum); err != nil {
			slog.Debug("summary response write failed", "error", err)
		}
	})

	srv := &http.Server{Addr: cfg.BindAddr, Handler: router}

	go func() {
		slog.Info("alertbot listening", "addr", cfg.BindAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("alertbot server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("alertbot shutdown failed", "error", err)
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
