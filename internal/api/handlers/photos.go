// photos.go — обработчики публичного API фотографий.
// POST /api/v1/photos/upload — приём загрузки (multipart)
// GET  /api/v1/photos — список с фильтрами status/floorId
// PUT  /api/v1/photos/{photo_id}/approve — одобрение (модератор)
// PUT  /api/v1/photos/{photo_id}/reject — отклонение (модератор)
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/santacruz-archive/photo-module/internal/api/errors"
	"github.com/santacruz-archive/photo-module/internal/domain/model"
	"github.com/santacruz-archive/photo-module/internal/repository"
	"github.com/santacruz-archive/photo-module/internal/service"
)

// multipartMemoryLimit — объём multipart-формы, удерживаемый в памяти.
// Остальное ParseMultipartForm сбрасывает во временные файлы.
const multipartMemoryLimit = 10 << 20 // 10 MB

// UploadPhoto — реализация POST /api/v1/photos/upload.
// Принимает multipart/form-data: файл imageFile + поля contributor,
// floorId, roomId (опционально). Возвращает 201 с созданной записью.
func (h *APIHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.ValidationError(w, "Некорректная multipart-форма: "+err.Error())
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("imageFile")
	if err != nil {
		apierrors.ValidationError(w, "Отсутствует файл imageFile")
		return
	}
	defer file.Close()

	params := service.SubmitParams{
		Reader:           file,
		OriginalFilename: header.Filename,
		ContentType:      header.Header.Get("Content-Type"),
		Size:             header.Size,
		Contributor:      r.FormValue("contributor"),
		FloorID:          r.FormValue("floorId"),
		RoomID:           r.FormValue("roomId"),
	}

	record, submitErr := h.intake.Submit(r.Context(), params)
	if submitErr != nil {
		apierrors.WriteError(w, submitErr.StatusCode, submitErr.Code, submitErr.Message)
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

// ListPhotos — реализация GET /api/v1/photos.
// Фильтры: ?status=pending|approved|rejected, ?floorId=...
// Без фильтров возвращает все записи, новые первыми.
func (h *APIHandler) ListPhotos(w http.ResponseWriter, r *http.Request) {
	filters := repository.PhotoFilters{}

	if status := r.URL.Query().Get("status"); status != "" {
		switch model.PhotoStatus(status) {
		case model.StatusPending, model.StatusApproved, model.StatusRejected:
			filters.Status = &status
		default:
			apierrors.ValidationError(w, "Недопустимый status: "+status)
			return
		}
	}
	if floorID := r.URL.Query().Get("floorId"); floorID != "" {
		filters.FloorID = &floorID
	}

	photos, err := h.repo.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("Ошибка получения списка фотографий",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка при получении списка фотографий")
		return
	}

	// Пустой список — [], а не null
	if photos == nil {
		photos = []*model.PhotoRecord{}
	}
	writeJSON(w, http.StatusOK, photos)
}

// ApprovePhoto — реализация PUT /api/v1/photos/{photo_id}/approve.
func (h *APIHandler) ApprovePhoto(w http.ResponseWriter, r *http.Request) {
	photoID, ok := photoIDFromRequest(w, r)
	if !ok {
		return
	}

	record, err := h.moderation.Approve(r.Context(), photoID)
	if err != nil {
		h.writeModerationError(w, photoID, "approve", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// RejectPhoto — реализация PUT /api/v1/photos/{photo_id}/reject.
func (h *APIHandler) RejectPhoto(w http.ResponseWriter, r *http.Request) {
	photoID, ok := photoIDFromRequest(w, r)
	if !ok {
		return
	}

	record, err := h.moderation.Reject(r.Context(), photoID)
	if err != nil {
		h.writeModerationError(w, photoID, "reject", err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// photoIDFromRequest извлекает и проверяет photo_id из пути запроса.
func photoIDFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	photoID := chi.URLParam(r, "photo_id")
	if _, err := uuid.Parse(photoID); err != nil {
		apierrors.ValidationError(w, "Некорректный UUID фотографии: "+photoID)
		return "", false
	}
	return photoID, true
}

// writeModerationError преобразует ошибку модерации в HTTP-ответ.
func (h *APIHandler) writeModerationError(w http.ResponseWriter, photoID, action string, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Фотография не найдена")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, "Фотография уже прошла модерацию")
	default:
		h.logger.Error("Ошибка модерации",
			slog.String("photo_id", photoID),
			slog.String("action", action),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка модерации")
	}
}
