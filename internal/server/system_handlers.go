package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/swingscan/swingscan/internal/cache"
	"github.com/swingscan/swingscan/internal/scheduler"
)

// SystemHandlers serves system monitoring endpoints and manual job triggers.
type SystemHandlers struct {
	log       zerolog.Logger
	store     *cache.Store
	startedAt time.Time

	mu   sync.RWMutex
	jobs map[string]scheduler.Job
}

// NewSystemHandlers creates the system handlers.
func NewSystemHandlers(log zerolog.Logger, store *cache.Store, startedAt time.Time) *SystemHandlers {
	return &SystemHandlers{
		log:       log.With().Str("component", "system_handlers").Logger(),
		store:     store,
		startedAt: startedAt,
		jobs:      make(map[string]scheduler.Job),
	}
}

// SetJobs registers jobs for manual triggering, keyed by job name.
func (h *SystemHandlers) SetJobs(jobs ...scheduler.Job) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, job := range jobs {
		h.jobs[job.Name()] = job
	}
}

// systemHealthResponse is the system health snapshot.
type systemHealthResponse struct {
	Status        string  `json:"status"`
	UptimeSeconds int64   `json:"uptime_seconds"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemPercent    float64 `json:"mem_percent"`
	CachedPlans   int     `json:"cached_plans"`
	CachedResults int     `json:"cached_results"`
}

// HandleSystemHealth reports process uptime, host load, and cache coverage.
// GET /api/system/health
func (h *SystemHandlers) HandleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, memPercent := h.getSystemStats()

	plans, err := h.store.ListByPrefix(cache.PlanPrefix)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count cached plans")
	}
	results, err := h.store.ListByPrefix(cache.ScreenerPrefix)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to count cached screener results")
	}

	h.writeJSON(w, http.StatusOK, systemHealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		CPUPercent:    cpuPercent,
		MemPercent:    memPercent,
		CachedPlans:   len(plans),
		CachedResults: len(results),
	})
}

// HandleTriggerJob runs a registered job immediately, outside its schedule.
// The job runs in the background; the response only confirms the trigger.
// POST /api/system/jobs/{name}
func (h *SystemHandlers) HandleTriggerJob(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	h.mu.RLock()
	job, ok := h.jobs[name]
	h.mu.RUnlock()
	if !ok {
		h.writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown job: " + name})
		return
	}

	go func() {
		h.log.Info().Str("job", name).Msg("Manually triggered job starting")
		if err := job.Run(); err != nil {
			h.log.Error().Err(err).Str("job", name).Msg("Manually triggered job failed")
		}
	}()

	h.writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "triggered",
		"job":    name,
	})
}

// getSystemStats returns CPU and RAM usage percentages. The CPU sample uses
// a 100ms interval to keep the endpoint responsive.
func (h *SystemHandlers) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// writeJSON writes a JSON response.
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
