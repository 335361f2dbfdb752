// moderation.go — решения модератора: approve/reject с конечным автоматом
// статусов pending → approved | rejected (оба терминальные).
//
// Операции двухфазные: авторитетный переход состояния фиксируется в БД
// первым, cleanup-задачи (внешний образ, временный файл) выполняются после
// и сообщают о сбоях только в лог и метрики — они никогда не откатывают
// и не блокируют переход.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/santacruz-archive/photo-module/internal/domain/model"
	"github.com/santacruz-archive/photo-module/internal/imagestore"
	"github.com/santacruz-archive/photo-module/internal/repository"
	"github.com/santacruz-archive/photo-module/internal/staging"
)

// Ошибки модерации.
var (
	// ErrNotFound — фотография не найдена.
	ErrNotFound = errors.New("фотография не найдена")
	// ErrConflict — запись уже финализирована, переход недопустим.
	ErrConflict = errors.New("фотография уже прошла модерацию")
)

// Prometheus-метрики модерации.
var (
	moderationTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_moderation_total",
		Help: "Общее количество решений модерации (по действию и результату).",
	}, []string{"action", "result"})

	cleanupFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_moderation_cleanup_failures_total",
		Help: "Количество сбоев cleanup-задач после перехода состояния (по виду).",
	}, []string{"kind"})
)

// ModerationService — сервис решений модератора.
type ModerationService struct {
	repo    repository.PhotoRepository
	staging *staging.Store
	images  *imagestore.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewModerationService создаёт сервис модерации.
func NewModerationService(
	repo repository.PhotoRepository,
	stagingStore *staging.Store,
	images *imagestore.Client,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		repo:    repo,
		staging: stagingStore,
		images:  images,
		logger:  logger.With(slog.String("component", "moderation_service")),
		now:     time.Now,
	}
}

// Approve одобряет pending-фотографию.
//
// Фаза 1 (авторитетная): status=approved, approvedAt=now, tempFilePath=nil —
// одна запись в БД. Фаза 2 (best-effort): удаление временного файла.
func (s *ModerationService) Approve(ctx context.Context, photoID string) (*model.PhotoRecord, error) {
	record, err := s.load(ctx, photoID, "approve")
	if err != nil {
		return nil, err
	}

	tempPath := record.TempFilePath

	approvedAt := s.now().UTC()
	record.Status = model.StatusApproved
	record.ApprovedAt = &approvedAt
	record.TempFilePath = nil

	if err := s.repo.Update(ctx, record); err != nil {
		moderationTotal.WithLabelValues("approve", "db_error").Inc()
		return nil, err
	}

	// Переход зафиксирован — cleanup не влияет на результат
	s.removeTempFile(photoID, tempPath)

	moderationTotal.WithLabelValues("approve", "success").Inc()
	s.logger.Info("Фотография одобрена",
		slog.String("photo_id", record.ID),
		slog.String("floor_id", record.FloorID),
	)

	return record, nil
}

// Reject отклоняет pending-фотографию.
//
// Фаза 1 (авторитетная): status=rejected, tempFilePath=nil. Фаза 2
// (best-effort): удаление образа из внешнего хранилища и временного файла.
// Осиротевший внешний образ предпочтительнее застрявшей записи модерации.
func (s *ModerationService) Reject(ctx context.Context, photoID string) (*model.PhotoRecord, error) {
	record, err := s.load(ctx, photoID, "reject")
	if err != nil {
		return nil, err
	}

	tempPath := record.TempFilePath

	record.Status = model.StatusRejected
	record.TempFilePath = nil

	if err := s.repo.Update(ctx, record); err != nil {
		moderationTotal.WithLabelValues("reject", "db_error").Inc()
		return nil, err
	}

	// Переход зафиксирован — cleanup логируется и поглощается
	if record.ImageID != "" {
		if err := s.images.Delete(ctx, record.ImageID); err != nil {
			cleanupFailuresTotal.WithLabelValues("image_delete").Inc()
			s.logger.Error("Ошибка удаления образа из внешнего хранилища",
				slog.String("photo_id", record.ID),
				slog.String("image_id", record.ImageID),
				slog.String("error", err.Error()),
			)
		}
	}
	s.removeTempFile(photoID, tempPath)

	moderationTotal.WithLabelValues("reject", "success").Inc()
	s.logger.Info("Фотография отклонена",
		slog.String("photo_id", record.ID),
	)

	return record, nil
}

// Pending возвращает фотографии, ожидающие решения, новые первыми.
func (s *ModerationService) Pending(ctx context.Context) ([]*model.PhotoRecord, error) {
	status := string(model.StatusPending)
	return s.repo.List(ctx, repository.PhotoFilters{Status: &status})
}

// Stats возвращает количество фотографий по статусам.
func (s *ModerationService) Stats(ctx context.Context) (*model.PhotoStats, error) {
	return s.repo.CountByStatus(ctx)
}

// load получает запись и проверяет допустимость перехода.
// Не-pending запись — ErrConflict: повторная модерация не тихий успех.
func (s *ModerationService) load(ctx context.Context, photoID, action string) (*model.PhotoRecord, error) {
	record, err := s.repo.GetByID(ctx, photoID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			moderationTotal.WithLabelValues(action, "not_found").Inc()
			return nil, ErrNotFound
		}
		moderationTotal.WithLabelValues(action, "db_error").Inc()
		return nil, err
	}

	if !record.IsPending() {
		moderationTotal.WithLabelValues(action, "conflict").Inc()
		return nil, ErrConflict
	}
	return record, nil
}

// removeTempFile удаляет временный файл best-effort.
func (s *ModerationService) removeTempFile(photoID string, tempPath *string) {
	if tempPath == nil {
		return
	}
	if err := s.staging.Remove(*tempPath); err != nil {
		cleanupFailuresTotal.WithLabelValues("temp_file").Inc()
		s.logger.Error("Ошибка удаления временного файла",
			slog.String("photo_id", photoID),
			slog.String("temp_file", *tempPath),
			slog.String("error", err.Error()),
		)
	}
}
