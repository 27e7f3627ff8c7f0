package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/AxelFooley/trackfolio/internal/database"
)

// SystemHandlers provides system monitoring endpoints
type SystemHandlers struct {
	log          zerolog.Logger
	dataDir      string
	ledgerDB     *database.DB
	portfolioDB  *database.DB
	clientDataDB *database.DB
}

// NewSystemHandlers creates system handlers
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	ledgerDB *database.DB,
	portfolioDB *database.DB,
	clientDataDB *database.DB,
) *SystemHandlers {
	return &SystemHandlers{
		log:          log.With().Str("handler", "system").Logger(),
		dataDir:      dataDir,
		ledgerDB:     ledgerDB,
		portfolioDB:  portfolioDB,
		clientDataDB: clientDataDB,
	}
}

// SystemStatusResponse is the payload for GET /api/system/status
type SystemStatusResponse struct {
	Status      string            `json:"status"`
	CPUPercent  float64           `json:"cpu_percent"`
	RAMPercent  float64           `json:"ram_percent"`
	DiskUsageMB float64           `json:"disk_usage_mb"`
	Databases   map[string]string `json:"databases"`
	GeneratedAt string            `json:"generated_at"`
}

// HandleSystemStatus handles GET /api/system/status
func (h *SystemHandlers) HandleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := h.getSystemStats()

	databases := map[string]string{
		"ledger":      h.checkDB(r.Context(), h.ledgerDB),
		"portfolio":   h.checkDB(r.Context(), h.portfolioDB),
		"client_data": h.checkDB(r.Context(), h.clientDataDB),
	}

	status := "healthy"
	for _, dbStatus := range databases {
		if dbStatus != "ok" {
			status = "degraded"
			break
		}
	}

	response := SystemStatusResponse{
		Status:      status,
		CPUPercent:  cpuAvg,
		RAMPercent:  ramPercent,
		DiskUsageMB: h.getDirSize(h.dataDir),
		Databases:   databases,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode system status")
	}
}

// HandleDatabaseStats handles GET /api/system/databases
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	type dbStats struct {
		Status string  `json:"status"`
		SizeMB float64 `json:"size_mb"`
	}

	stats := map[string]dbStats{}
	for name, db := range map[string]*database.DB{
		"ledger":      h.ledgerDB,
		"portfolio":   h.portfolioDB,
		"client_data": h.clientDataDB,
	} {
		entry := dbStats{Status: h.checkDB(r.Context(), db)}
		if db != nil {
			if info, err := os.Stat(db.Path()); err == nil {
				entry.SizeMB = float64(info.Size()) / 1024 / 1024
			}
		}
		stats[name] = entry
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": stats}); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode database stats")
	}
}

func (h *SystemHandlers) checkDB(ctx context.Context, db *database.DB) string {
	if db == nil {
		return "unavailable"
	}
	if err := db.QuickCheck(ctx); err != nil {
		return "error"
	}
	return "ok"
}

// getSystemStats calculates CPU and RAM usage percentages.
// Uses a 100ms sampling interval to avoid blocking the API call.
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

func (h *SystemHandlers) getDirSize(dirPath string) float64 {
	var totalSize int64
	err := filepath.Walk(dirPath, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			totalSize += info.Size()
		}
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Str("dir", dirPath).Msg("Failed to calculate directory size")
		return 0
	}

	return float64(totalSize) / 1024 / 1024
}
