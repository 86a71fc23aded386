package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MaksymDeneka/arbitrage-hub/internal/discovery"
	"github.com/MaksymDeneka/arbitrage-hub/internal/domain"
)

// TokenHandler wraps the discovery service.
type TokenHandler struct {
	discovery        *discovery.Service
	defaultThreshold float64
	logger           *slog.Logger
}

// NewTokenHandler creates the token discovery endpoints handler.
func NewTokenHandler(d *discovery.Service, defaultThreshold float64, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{
		discovery:        d,
		defaultThreshold: defaultThreshold,
		logger:           logHandler(logger, "token"),
	}
}

type discoverRequest struct {
	Ticker           string   `json:"ticker"`
	ThresholdPercent *float64 `json:"thresholdPercent"`
}

// Discover handles POST /api/token/discover: which venues list the ticker.
func (h *TokenHandler) Discover(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, false)
}

// RecommendConfig handles POST /api/token/config: a ready-to-use monitoring
// spec for the ticker.
func (h *TokenHandler) RecommendConfig(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, true)
}

func (h *TokenHandler) respond(w http.ResponseWriter, r *http.Request, configOnly bool) {
	var req discoverRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if domain.NormalizeTicker(req.Ticker) == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	threshold := h.defaultThreshold
	if req.ThresholdPercent != nil {
		threshold = *req.ThresholdPercent
	}

	result, err := h.discovery.Discover(r.Context(), req.Ticker, threshold)
	if err != nil && !errors.Is(err, domain.ErrNoVenuesFound) {
		h.logger.Error("discovery failed",
			slog.String("ticker", req.Ticker),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), err.Error())
		return
	}

	if configOnly {
		writeJSON(w, http.StatusOK, map[string]any{
			"success":         err == nil,
			"config":          result.Spec,
			"recommendations": result.Recommendations,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   err == nil,
		"discovery": result,
	})
}
