// admin.go — модераторские обработчики.
// GET /api/v1/admin/photos/pending — очередь модерации
// GET /api/v1/admin/photos/stats — агрегированная статистика
package handlers

import (
	"log/slog"
	"net/http"

	apierrors "github.com/santacruz-archive/photo-module/internal/api/errors"
	"github.com/santacruz-archive/photo-module/internal/domain/model"
)

// PendingPhotos — реализация GET /api/v1/admin/photos/pending.
// Возвращает фотографии, ожидающие решения, новые первыми.
func (h *APIHandler) PendingPhotos(w http.ResponseWriter, r *http.Request) {
	photos, err := h.moderation.Pending(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения очереди модерации",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении очереди модерации")
		return
	}

	if photos == nil {
		photos = []*model.PhotoRecord{}
	}
	writeJSON(w, http.StatusOK, photos)
}

// PhotoStats — реализация GET /api/v1/admin/photos/stats.
// Количество фотографий по статусам и общий итог.
func (h *APIHandler) PhotoStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.moderation.Stats(r.Context())
	if err != nil {
		h.logger.Error("Ошибка получения статистики",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении статистики")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
