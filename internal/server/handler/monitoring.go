package handler

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
	"github.com/MaksymDeneka/arbitrage-hub/internal/manager"
	"github.com/MaksymDeneka/arbitrage-hub/internal/pricestore"
)

// MonitoringHandler wraps the connection manager's lifecycle operations.
type MonitoringHandler struct {
	manager          *manager.Manager
	store            *pricestore.Store
	defaultThreshold float64
	logger           *slog.Logger
}

// NewMonitoringHandler creates the monitoring endpoints handler.
func NewMonitoringHandler(m *manager.Manager, store *pricestore.Store, defaultThreshold float64, logger *slog.Logger) *MonitoringHandler {
	return &MonitoringHandler{
		manager:          m,
		store:            store,
		defaultThreshold: defaultThreshold,
		logger:           logHandler(logger, "monitoring"),
	}
}

// startRequest is the body of POST /api/monitoring/start. Unknown fields are
// ignored.
type startRequest struct {
	Ticker           string                 `json:"ticker"`
	ThresholdPercent *float64               `json:"thresholdPercent"`
	UseAutoConfig    *bool                  `json:"useAutoConfig"`
	CustomConfig     *domain.MonitoringSpec `json:"customConfig"`
}

// Start handles POST /api/monitoring/start.
func (h *MonitoringHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ticker := domain.NormalizeTicker(req.Ticker)
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	threshold := h.defaultThreshold
	if req.ThresholdPercent != nil {
		threshold = *req.ThresholdPercent
	}
	useAuto := req.UseAutoConfig == nil || *req.UseAutoConfig

	var err error
	switch {
	case req.CustomConfig != nil:
		spec := *req.CustomConfig
		spec.Ticker = ticker
		if spec.ThresholdPercent == 0 {
			spec.ThresholdPercent = threshold
		}
		err = h.manager.StartMonitoring(r.Context(), spec)
	case useAuto:
		err = h.manager.StartMonitoringAuto(r.Context(), ticker, threshold)
	default:
		writeError(w, http.StatusBadRequest, "either useAutoConfig or customConfig is required")
		return
	}

	if err != nil {
		h.logger.Error("start monitoring failed",
			slog.String("ticker", ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("monitoring started for %s", ticker),
	})
}

// stopRequest is the body of POST /api/monitoring/stop.
type stopRequest struct {
	Ticker string `json:"ticker"`
}

// Stop handles POST /api/monitoring/stop.
func (h *MonitoringHandler) Stop(w http.ResponseWriter, r *http.Request) {
	var req stopRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	ticker := domain.NormalizeTicker(req.Ticker)
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	if err := h.manager.StopMonitoring(ticker); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("monitoring stopped for %s", ticker),
	})
}

// reconnectRequest is the body of POST /api/monitoring/reconnect.
type reconnectRequest struct {
	Ticker string            `json:"ticker"`
	Venue  string            `json:"venue"`
	Market domain.MarketKind `json:"market"`
}

// Reconnect handles POST /api/monitoring/reconnect: it forces a session out
// of terminal error state.
func (h *MonitoringHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	var req reconnectRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Ticker == "" || req.Venue == "" || req.Market == "" {
		writeError(w, http.StatusBadRequest, "ticker, venue, and market are required")
		return
	}

	if err := h.manager.ReconnectExchange(r.Context(), req.Ticker, req.Venue, req.Market); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// Status handles GET /api/monitoring/status?ticker=X. Without a ticker it
// returns the overall monitoring info; with one it adds the ticker's
// connections, prices, and opportunities.
func (h *MonitoringHandler) Status(w http.ResponseWriter, r *http.Request) {
	ticker := domain.NormalizeTicker(r.URL.Query().Get("ticker"))

	resp := map[string]any{
		"health":  h.manager.HealthCheck(),
		"tickers": h.manager.GetMonitoringInfo(),
	}
	if ticker != "" {
		resp["connections"] = h.manager.GetConnectionStatus(ticker)
		resp["prices"] = h.store.GetPrices(ticker)
		resp["opportunities"] = h.store.GetOpportunities(ticker)
	}
	writeJSON(w, http.StatusOK, resp)
}
