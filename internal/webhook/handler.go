// Package webhook receives TradingView alert posts and relays them: alert
// text plus a chart image to Telegram, a trade-log record, and optionally an
// RPA trade trigger.
package webhook

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quantumtrader/chartsnap/internal/tradelog"
)

// Notifier delivers alert text and chart photos. Satisfied by
// *notify.Telegram.
type Notifier interface {
	SendMessage(ctx context.Context, chatID, text string) error
	SendPhoto(ctx context.Context, chatID string, png []byte, caption string) error
}

// ChartFetcher pulls a chart image for a pair. Satisfied by
// *snapclient.Client.
type ChartFetcher interface {
	Fetch(ctx context.Context, pair, interval, theme string) ([]byte, error)
}

// Trader fires a trade through the RPA bridge. Satisfied by
// *trigger.UIVision.
type Trader interface {
	Trade(ctx context.Context, pair, direction string, expiryMin, size int, mode string) (bool, error)
}

// TradeLogger appends trade records. Satisfied by *tradelog.Store.
type TradeLogger interface {
	Append(r tradelog.Record) (string, error)
}

// Config tunes alert handling.
type Config struct {
	Secret      string
	ChatID      string
	AutoTrade   bool
	TradeExpiry int
	TradeSize   int
	Theme       string
}

type Handler struct {
	cfg      Config
	notifier Notifier
	charts   ChartFetcher
	trader   Trader
	trades   TradeLogger
}

func NewHandler(cfg Config, notifier Notifier, charts ChartFetcher, trader Trader, trades TradeLogger) *Handler {
	if cfg.TradeExpiry <= 0 {
		cfg.TradeExpiry = 1
	}
	if cfg.TradeSize <= 0 {
		cfg.TradeSize = 1
	}
	return &Handler{cfg: cfg, notifier: notifier, charts: charts, trader: trader, trades: trades}
}

// Routes mounts the webhook endpoints. /tv and /webhook accept the same
// payload; TradingView installs differ in which path they post to.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/tv", h.handleAlert)
	r.Post("/webhook", h.handleAlert)
	return r
}

// alertPayload tolerates the field spellings different alert templates use.
type alertPayload struct {
	Pair      string `json:"pair"`
	Symbol    string `json:"symbol"`
	Ticker    string `json:"ticker"`
	Timeframe string `json:"timeframe"`
	TF        string `json:"tf"`
	Direction string `json:"direction"`
	Action    string `json:"action"`
	Message   string `json:"message"`
	Secret    string `json:"secret"`
	Token     string `json:"token"`
}

func (p alertPayload) pair() string {
	for _, v := range []string{p.Pair, p.Symbol, p.Ticker} {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func (p alertPayload) interval() string {
	if p.Timeframe != "" {
		return p.Timeframe
	}
	return p.TF
}

func (p alertPayload) secret() string {
	if p.Secret != "" {
		return p.Secret
	}
	return p.Token
}

// NormalizeDirection maps alert direction words to CALL/PUT. Unrecognized
// words map to empty, which means notify-only.
func NormalizeDirection(word string) string {
	switch strings.ToUpper(strings.TrimSpace(word)) {
	case "CALL", "BUY", "UP", "LONG", "HIGH":
		return "CALL"
	case "PUT", "SELL", "DOWN", "SHORT", "LOW":
		return "PUT"
	}
	return ""
}

func (h *Handler) handleAlert(w http.ResponseWriter, r *http.Request) {
	var p alertPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON payload"})
		return
	}

	if h.cfg.Secret != "" && !h.authorized(r, p) {
		slog.Warn("webhook rejected: bad secret", "remote", r.RemoteAddr)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	pair := p.pair()
	if pair == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing pair"})
		return
	}
	direction := NormalizeDirection(firstNonEmpty(p.Direction, p.Action))

	slog.Info("alert received", "pair", pair, "direction", direction, "interval", p.interval())

	ctx := r.Context()
	h.sendAlert(ctx, pair, direction, p)

	resp := map[string]string{"status": "ok", "pair": pair}
	if direction != "" {
		if id := h.recordTrade(ctx, pair, direction); id != "" {
			resp["trade_id"] = id
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) authorized(r *http.Request, p alertPayload) bool {
	presented := r.Header.Get("X-Webhook-Token")
	if presented == "" {
		presented = p.secret()
	}
	return subtle.ConstantTimeCompare([]byte(presented), []byte(h.cfg.Secret)) == 1
}

// sendAlert delivers the text and chart. Delivery failures are logged and
// absorbed; the webhook must answer TradingView regardless.
func (h *Handler) sendAlert(ctx context.Context, pair, direction string, p alertPayload) {
	text := p.Message
	if text == "" {
		text = fmt.Sprintf("%s %s alert", pair, direction)
		if direction == "" {
			text = pair + " alert"
		}
	}
	if err := h.notifier.SendMessage(ctx, h.cfg.ChatID, text); err != nil {
		slog.Warn("alert message send failed", "pair", pair, "error", err)
	}

	if h.charts == nil {
		return
	}
	png, err := h.charts.Fetch(ctx, pair, p.interval(), h.cfg.Theme)
	if err != nil {
		slog.Warn("chart fetch failed", "pair", pair, "error", err)
		return
	}
	caption := fmt.Sprintf("%s %s", pair, p.interval())
	if err := h.notifier.SendPhoto(ctx, h.cfg.ChatID, png, strings.TrimSpace(caption)); err != nil {
		slog.Warn("chart photo send failed", "pair", pair, "error", err)
	}
}

// recordTrade logs the trade and optionally fires the RPA trigger. Returns
// the trade log ID, empty when logging failed.
func (h *Handler) recordTrade(ctx context.Context, pair, direction string) string {
	var id string
	if h.trades != nil {
		var err error
		id, err = h.trades.Append(tradelog.Record{
			Pair:      pair,
			Direction: direction,
			ExpiryMin: h.cfg.TradeExpiry,
			Size:      h.cfg.TradeSize,
			Source:    "webhook",
		})
		if err != nil {
			slog.Warn("trade log append failed", "pair", pair, "error", err)
		}
	}

	if h.cfg.AutoTrade && h.trader != nil {
		ok, err := h.trader.Trade(ctx, pair, direction, h.cfg.TradeExpiry, h.cfg.TradeSize, "")
		if err != nil {
			slog.Warn("auto trade failed", "pair", pair, "direction", direction, "error", err)
		} else if ok {
			slog.Info("auto trade fired", "pair", pair, "direction", direction)
		}
	}
	return id
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Debug("webhook response write failed", "error", err)
	}
}
