package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/petadopt/internal/apperror"
	"github.com/sakif/petadopt/internal/response"
)

// Pinger is satisfied by *sqldb.DB.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the database answers.
type HealthHandler struct {
	db     Pinger
	logger *slog.Logger
}

func NewHealthHandler(db Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, logger: logger}
}

// HandleHealth pings the database with a short deadline.
//
// HTTP: GET /api/health
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Error("health check: database ping failed", slog.String("error", err.Error()))
		response.Error(w, apperror.Upstream("database unavailable", err))
		return
	}
	response.JSON(w, http.StatusOK, "Server is running", map[string]string{"status": "ok"})
}
