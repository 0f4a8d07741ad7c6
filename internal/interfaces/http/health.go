package http

import (
	"context"
	"encoding/json"
	"net/http"
	"runtime"
	"time"

	"github.com/Shoebbirader4/Upstockbot/internal/gates"
	"github.com/Shoebbirader4/Upstockbot/internal/persistence"
)

// BreakerReporter exposes a circuit breaker state ("closed", "half-open", "open")
type BreakerReporter interface {
	BreakerState() string
}

// HealthHandler provides the system health endpoint
type HealthHandler struct {
	gate      *gates.RiskGate
	db        persistence.RepositoryHealth
	store     BreakerReporter
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler. db and store may be nil.
func NewHealthHandler(gate *gates.RiskGate, db persistence.RepositoryHealth, store BreakerReporter, version string) *HealthHandler {
	return &HealthHandler{
		gate:      gate,
		db:        db,
		store:     store,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string                 `json:"status"` // "healthy", "degraded", "unhealthy"
	Timestamp time.Time              `json:"timestamp"`
	Uptime    string                 `json:"uptime"`
	Version   string                 `json:"version"`
	System    SystemInfo             `json:"system"`
	Checks    map[string]CheckResult `json:"checks"`
}

// SystemInfo provides system-level information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	MemAlloc      uint64 `json:"mem_alloc_bytes"`
	NumGC         uint32 `json:"num_gc"`
}

// CheckResult represents one health check
type CheckResult struct {
	Status    string        `json:"status"` // "pass", "warn", "fail"
	Message   string        `json:"message"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
}

// ServeHTTP implements the health check endpoint
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := h.gatherHealthInfo(r.Context())

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func (h *HealthHandler) gatherHealthInfo(ctx context.Context) HealthResponse {
	response := HealthResponse{
		Timestamp: time.Now(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Version:   h.version,
		System:    h.getSystemInfo(),
		Checks:    make(map[string]CheckResult),
	}

	response.Checks["risk_gate"] = h.checkGate()
	if h.db != nil {
		response.Checks["database"] = h.checkDatabase(ctx)
	}
	if h.store != nil {
		response.Checks["state_store"] = h.checkStore()
	}

	response.Status = overallStatus(response.Checks)
	return response
}

func (h *HealthHandler) checkGate() CheckResult {
	now := time.Now()
	if h.gate == nil {
		return CheckResult{Status: "fail", Message: "risk gate not configured", Timestamp: now}
	}
	if flatten, reason := h.gate.ShouldFlattenAll(); flatten {
		return CheckResult{Status: "warn", Message: reason, Timestamp: now}
	}
	if st := h.gate.Status(); st.InCooldown {
		return CheckResult{Status: "warn", Message: "cooldown active", Timestamp: now}
	}
	return CheckResult{Status: "pass", Message: "accepting trades", Timestamp: now}
}

func (h *HealthHandler) checkDatabase(ctx context.Context) CheckResult {
	start := time.Now()
	hc := h.db.Health(ctx)
	result := CheckResult{Status: "pass", Message: "database reachable", Duration: time.Since(start), Timestamp: time.Now()}
	if !hc.Healthy {
		result.Status = "warn"
		result.Message = "database unreachable"
		if len(hc.Errors) > 0 {
			result.Message = hc.Errors[0]
		}
	}
	return result
}

func (h *HealthHandler) checkStore() CheckResult {
	state := h.store.BreakerState()
	result := CheckResult{Status: "pass", Message: "breaker " + state, Timestamp: time.Now()}
	if state != "closed" {
		result.Status = "warn"
	}
	return result
}

func (h *HealthHandler) getSystemInfo() SystemInfo {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		MemAlloc:      memStats.Alloc,
		NumGC:         memStats.NumGC,
	}
}

// overallStatus: any fail is unhealthy, any warn is degraded
func overallStatus(checks map[string]CheckResult) string {
	status := "healthy"
	for _, c := range checks {
		switch c.Status {
		case "fail":
			return "unhealthy"
		case "warn":
			status = "degraded"
		}
	}
	return status
}
