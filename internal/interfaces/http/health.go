package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/marketsheet/internal/scheduler"
)

// StatusSource reports the loop state
type StatusSource interface {
	LastResult() (scheduler.CycleResult, bool)
	Cycles() int64
}

// HealthHandler serves the last-cycle status
type HealthHandler struct {
	status    StatusSource
	startTime time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(status StatusSource) *HealthHandler {
	return &HealthHandler{
		status:    status,
		startTime: time.Now(),
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string     `json:"status"` // "starting", "healthy", "degraded"
	Timestamp time.Time  `json:"timestamp"`
	Uptime    string     `json:"uptime"`
	Cycles    int64      `json:"cycles"`
	LastCycle *CycleInfo `json:"last_cycle,omitempty"`
}

// CycleInfo summarises one cycle result
type CycleInfo struct {
	ID          string    `json:"id"`
	Success     bool      `json:"success"`
	Kind        string    `json:"kind"`
	FailedStage string    `json:"failed_stage,omitempty"`
	Error       string    `json:"error,omitempty"`
	FinishedAt  time.Time `json:"finished_at"`
	DurationMS  int64     `json:"duration_ms"`
	Assets      int       `json:"assets"`
}

// ServeHTTP always answers 200; a failing cycle degrades the status but the process keeps running.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	resp := HealthResponse{
		Status:    "starting",
		Timestamp: now.UTC(),
		Uptime:    now.Sub(h.startTime).Round(time.Second).String(),
		Cycles:    h.status.Cycles(),
	}

	if last, ok := h.status.LastResult(); ok {
		info := &CycleInfo{
			ID:          last.ID,
			Success:     last.Success,
			Kind:        last.Kind,
			FailedStage: string(last.Stage),
			FinishedAt:  last.EndTime.UTC(),
			DurationMS:  last.Duration.Milliseconds(),
			Assets:      last.Assets,
		}
		if last.Err != nil {
			info.Error = last.Err.Error()
		}
		resp.LastCycle = info

		resp.Status = "healthy"
		if !last.Success {
			resp.Status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}
