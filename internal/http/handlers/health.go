package handlers

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/mediaspool/transcoded/internal/database"
	"github.com/mediaspool/transcoded/internal/registry"
	"github.com/mediaspool/transcoded/internal/upload"
	"github.com/mediaspool/transcoded/internal/version"
)

// HealthHandler reports service liveness and basic system stats.
type HealthHandler struct {
	registry  registry.Registry
	table     *upload.SessionTable
	db        *database.DB // nil when the archive is disabled
	startedAt time.Time
}

// NewHealthHandler creates a health handler. db may be nil.
func NewHealthHandler(reg registry.Registry, table *upload.SessionTable, db *database.DB) *HealthHandler {
	return &HealthHandler{
		registry:  reg,
		table:     table,
		db:        db,
		startedAt: time.Now(),
	}
}

// SystemStats is a point-in-time view of host resource usage.
type SystemStats struct {
	CPUPercent        float64 `json:"cpu_percent"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	MemoryTotalMB     uint64  `json:"memory_total_mb"`
	Goroutines        int     `json:"goroutines"`
}

// DatabaseHealth reports archive database connectivity.
type DatabaseHealth struct {
	Driver string `json:"driver"`
	Status string `json:"status"`
}

// HealthOutput is the health endpoint response.
type HealthOutput struct {
	Body struct {
		Status         string          `json:"status" doc:"ok or degraded"`
		Version        version.Info    `json:"version"`
		UptimeSeconds  int64           `json:"uptime_seconds"`
		Jobs           int             `json:"jobs" doc:"Jobs in the live registry"`
		UploadSessions int             `json:"upload_sessions" doc:"Tracked upload sessions"`
		System         SystemStats     `json:"system"`
		Database       *DatabaseHealth `json:"database,omitempty"`
	}
}

// Register registers the health route on the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Service health",
		Tags:        []string{"System"},
	}, h.health)
}

func (h *HealthHandler) health(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.Version = version.GetInfo()
	out.Body.UptimeSeconds = int64(time.Since(h.startedAt).Seconds())
	out.Body.Jobs = h.registry.Count()
	out.Body.UploadSessions = h.table.Len()
	out.Body.System = systemStats(ctx)

	if h.db != nil {
		dbHealth := &DatabaseHealth{Driver: h.db.Driver(), Status: "up"}
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := h.db.Ping(pingCtx); err != nil {
			dbHealth.Status = "down"
			out.Body.Status = "degraded"
		}
		cancel()
		out.Body.Database = dbHealth
	}

	return out, nil
}

// systemStats samples host CPU and memory. Sampling failures leave the
// affected fields zero rather than failing the health check.
func systemStats(ctx context.Context) SystemStats {
	stats := SystemStats{Goroutines: runtime.NumGoroutine()}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		stats.CPUPercent = percents[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		stats.MemoryUsedPercent = vm.UsedPercent
		stats.MemoryTotalMB = vm.Total / (1024 * 1024)
	}
	return stats
}
