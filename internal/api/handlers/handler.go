// handler.go — основной обработчик API Photo Module.
// Объединяет health, приём загрузок, публичный список и модерацию.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/santacruz-archive/photo-module/internal/repository"
	"github.com/santacruz-archive/photo-module/internal/service"
)

// APIHandler — основной обработчик API Photo Module.
// Делегирует запросы в сервисный слой.
type APIHandler struct {
	health     *HealthHandler
	intake     *service.IntakeService
	moderation *service.ModerationService
	repo       repository.PhotoRepository
	logger     *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	health *HealthHandler,
	intake *service.IntakeService,
	moderation *service.ModerationService,
	repo repository.PhotoRepository,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		health:     health,
		intake:     intake,
		moderation: moderation,
		repo:       repo,
		logger:     logger.With(slog.String("component", "api_handler")),
	}
}

// --- Health endpoints (делегируются в HealthHandler) ---

// HealthLive — liveness probe.
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe.
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики.
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
