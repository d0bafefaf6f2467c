package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger はデータベースの疎通確認に必要なインターフェース。*sql.DBが満たす。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler はサービス情報とヘルスチェックのHTTPハンドラー。
type HealthHandler struct {
	db              Pinger
	emailConfigured bool
	version         string
	now             func() time.Time
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db Pinger, emailConfigured bool, version string) *HealthHandler {
	return &HealthHandler{
		db:              db,
		emailConfigured: emailConfigured,
		version:         version,
		now:             time.Now,
	}
}

type healthResponse struct {
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version,omitempty"`
	Status    string    `json:"status"`
	Database  string    `json:"database"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// Home はサービス情報を返す。
// GET /
func (h *HealthHandler) Home(w http.ResponseWriter, r *http.Request) {
	resp, _ := h.probe(r.Context())
	resp.Service = "DH-Commerce API"
	resp.Version = h.version
	resp.Status = "running"
	writeJSON(w, http.StatusOK, resp)
}

// Health はデータベースの疎通を確認し、失敗時は503を返す。
// GET /health, GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp, ok := h.probe(r.Context())
	status := http.StatusOK
	resp.Status = "healthy"
	if !ok {
		status = http.StatusServiceUnavailable
		resp.Status = "unhealthy"
	}
	writeJSON(w, status, resp)
}

func (h *HealthHandler) probe(ctx context.Context) (healthResponse, bool) {
	resp := healthResponse{
		Database:  "connected",
		Email:     "not configured",
		Timestamp: h.now().UTC(),
	}
	if h.emailConfigured {
		resp.Email = "configured"
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		slog.Warn("database ping failed", slog.String("error", err.Error()))
		resp.Database = "disconnected"
		return resp, false
	}
	return resp, true
}
