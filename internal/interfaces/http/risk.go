package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Shoebbirader4/Upstockbot/internal/domain/market"
	"github.com/Shoebbirader4/Upstockbot/internal/gates"
)

const maxBodyBytes = 1 << 16

// ErrorResponse is the body of every non-2xx API response
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// signalParam accepts 0/1/2 or "sell"/"hold"/"buy"
type signalParam market.Signal

func (s *signalParam) UnmarshalJSON(data []byte) error {
	raw := string(bytes.Trim(data, `"`))
	sig, err := market.ParseSignal(raw)
	if err != nil {
		return err
	}
	*s = signalParam(sig)
	return nil
}

// CheckRequest is the body of POST /risk/check
type CheckRequest struct {
	Signal  *signalParam `json:"signal"`
	Price   float64      `json:"price"`
	ATR     float64      `json:"atr"`
	AvgATR  float64      `json:"avg_atr"`
	Capital float64      `json:"capital,omitempty"` // when set, an allowed decision carries a lot size
}

// CheckResponse is the body returned by POST /risk/check
type CheckResponse struct {
	gates.Decision
	PositionSize int `json:"position_size,omitempty"`
}

// TradeRequest is the body of POST /risk/trades
type TradeRequest struct {
	PnL *float64 `json:"pnl"`
}

// FlattenResponse is the body of GET /risk/flatten
type FlattenResponse struct {
	Flatten bool   `json:"flatten"`
	Reason  string `json:"reason,omitempty"`
}

// SizeResponse is the body of GET /risk/size
type SizeResponse struct {
	Lots int `json:"lots"`
}

type riskHandlers struct {
	gate  *gates.RiskGate
	saver StateSaver
}

func (h *riskHandlers) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.gate.Status())
}

func (h *riskHandlers) check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.Signal == nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "signal is required")
		return
	}
	if req.ATR < 0 || req.AvgATR < 0 || !finite(req.ATR, req.AvgATR, req.Price, req.Capital) {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "price, atr and avg_atr must be finite and non-negative")
		return
	}

	decision := h.gate.CanTrade(market.Signal(*req.Signal), req.Price, req.ATR, req.AvgATR)
	resp := CheckResponse{Decision: decision}
	if decision.Allowed && req.Capital > 0 {
		resp.PositionSize = h.gate.CalculatePositionSize(req.Capital, req.ATR, 0)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *riskHandlers) recordTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if req.PnL == nil || !finite(*req.PnL) {
		writeError(w, r, http.StatusBadRequest, "invalid_body", "pnl is required and must be finite")
		return
	}

	h.gate.RecordTrade(*req.PnL)
	if h.saver != nil {
		if err := h.saver.SaveGate(r.Context(), h.gate); err != nil {
			log.Warn().Err(err).Str("request_id", requestID(r)).Msg("Failed to persist risk state")
		}
	}
	writeJSON(w, http.StatusOK, h.gate.Status())
}

func (h *riskHandlers) flatten(w http.ResponseWriter, r *http.Request) {
	flatten, reason := h.gate.ShouldFlattenAll()
	writeJSON(w, http.StatusOK, FlattenResponse{Flatten: flatten, Reason: reason})
}

func (h *riskHandlers) size(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	capital, err := strconv.ParseFloat(q.Get("capital"), 64)
	if err != nil || !finite(capital) || capital <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "capital must be a positive number")
		return
	}
	atr, err := strconv.ParseFloat(q.Get("atr"), 64)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_query", "atr must be a number")
		return
	}
	risk := 0.0
	if raw := q.Get("risk_per_trade"); raw != "" {
		if risk, err = strconv.ParseFloat(raw, 64); err != nil || !finite(risk) {
			writeError(w, r, http.StatusBadRequest, "invalid_query", "risk_per_trade must be a finite number")
			return
		}
	}
	writeJSON(w, http.StatusOK, SizeResponse{Lots: h.gate.CalculatePositionSize(capital, atr, risk)})
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a standardized error response
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID(r),
		Timestamp: time.Now().UTC(),
	})
}
