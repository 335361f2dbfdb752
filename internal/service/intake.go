// Пакет service — бизнес-логика Photo Module.
// intake.go — приём загружаемых фотографий: валидация, локальное размещение,
// загрузка во внешнее хранилище изображений, создание pending-записи.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/santacruz-archive/photo-module/internal/api/errors"
	"github.com/santacruz-archive/photo-module/internal/domain/model"
	"github.com/santacruz-archive/photo-module/internal/imagestore"
	"github.com/santacruz-archive/photo-module/internal/repository"
	"github.com/santacruz-archive/photo-module/internal/staging"
)

// Prometheus-метрики приёма загрузок.
var (
	uploadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pm_uploads_total",
		Help: "Общее количество запросов загрузки фотографий (по результату).",
	}, []string{"status"})

	uploadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pm_upload_duration_seconds",
		Help:    "Длительность приёма загрузки (валидация + размещение + внешняя загрузка).",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
	})
)

// SubmitParams — параметры приёма фотографии.
type SubmitParams struct {
	// Reader — поток данных файла
	Reader io.Reader
	// OriginalFilename — оригинальное имя файла
	OriginalFilename string
	// ContentType — MIME-тип файла (из multipart part)
	ContentType string
	// Size — размер файла (из Content-Length multipart part)
	Size int64
	// Contributor — имя отправителя (обязательно)
	Contributor string
	// FloorID — идентификатор этажа (обязательно)
	FloorID string
	// RoomID — идентификатор помещения (опционально)
	RoomID string
}

// IntakeError — ошибка приёма загрузки с HTTP-кодом.
type IntakeError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *IntakeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// IntakeService — сервис приёма загружаемых фотографий.
type IntakeService struct {
	repo          repository.PhotoRepository
	staging       *staging.Store
	images        *imagestore.Client
	maxUploadSize int64
	logger        *slog.Logger
	now           func() time.Time
}

// NewIntakeService создаёт сервис приёма загрузок.
func NewIntakeService(
	repo repository.PhotoRepository,
	stagingStore *staging.Store,
	images *imagestore.Client,
	maxUploadSize int64,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		repo:          repo,
		staging:       stagingStore,
		images:        images,
		maxUploadSize: maxUploadSize,
		logger:        logger.With(slog.String("component", "intake_service")),
		now:           time.Now,
	}
}

// Submit принимает фотографию и создаёт pending-запись.
//
// Поток:
//  1. Валидация (MIME image/*, размер, contributor, floorId)
//  2. Размещение файла в каталоге временных файлов
//  3. Загрузка во внешнее хранилище изображений (metadata JSON)
//  4. Создание PhotoRecord со status=pending
//
// Запись создаётся только после успешной внешней загрузки. При ошибке
// внешнего хранилища размещённый файл намеренно остаётся на диске для
// ручной очистки: сбой приёма редок и не тихий.
func (s *IntakeService) Submit(ctx context.Context, params SubmitParams) (*model.PhotoRecord, *IntakeError) {
	start := s.now()

	// 1. Валидация — никакого частичного состояния при отказе
	if verr := s.validate(params); verr != nil {
		uploadsTotal.WithLabelValues("validation_error").Inc()
		return nil, verr
	}

	// 2. Размещение файла в каталоге временных файлов
	tempPath, err := s.staging.Stage(params.Reader, params.OriginalFilename)
	if err != nil {
		uploadsTotal.WithLabelValues("storage_error").Inc()
		s.logger.Error("Ошибка размещения временного файла",
			slog.String("filename", params.OriginalFilename),
			slog.String("error", err.Error()),
		)
		return nil, &IntakeError{
			StatusCode: 500,
			Code:       apierrors.CodeStorageError,
			Message:    "Не удалось сохранить загружаемый файл",
		}
	}

	// Период отправки фиксируется при приёме ("Jan 2006")
	date := s.now().Format("Jan 2006")

	// 3. Metadata для внешнего хранилища
	metadata, err := json.Marshal(map[string]string{
		"contributor": params.Contributor,
		"floorId":     params.FloorID,
		"roomId":      params.RoomID,
		"date":        date,
	})
	if err != nil {
		uploadsTotal.WithLabelValues("internal_error").Inc()
		return nil, &IntakeError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось сформировать метаданные",
		}
	}

	uploadResult, err := s.images.Upload(ctx, tempPath, string(metadata))
	if err != nil {
		uploadsTotal.WithLabelValues("imagestore_error").Inc()
		// Временный файл остаётся для ручной очистки
		s.logger.Error("Ошибка загрузки во внешнее хранилище изображений",
			slog.String("temp_file", tempPath),
			slog.String("error", err.Error()),
		)
		return nil, &IntakeError{
			StatusCode: 502,
			Code:       apierrors.CodeImageStoreError,
			Message:    "Внешнее хранилище изображений недоступно",
		}
	}

	// 4. Создание pending-записи
	record := &model.PhotoRecord{
		Contributor:      params.Contributor,
		FloorID:          params.FloorID,
		Date:             date,
		OriginalFileName: params.OriginalFilename,
		TempFilePath:     &tempPath,
		ImageID:          uploadResult.ImageID,
		ImageURL:         uploadResult.URL,
		Status:           model.StatusPending,
		SubmittedAt:      s.now().UTC(),
	}
	if params.RoomID != "" {
		roomID := params.RoomID
		record.RoomID = &roomID
	}

	if err := s.repo.Create(ctx, record); err != nil {
		uploadsTotal.WithLabelValues("db_error").Inc()
		s.logger.Error("Ошибка создания записи фотографии",
			slog.String("image_id", uploadResult.ImageID),
			slog.String("error", err.Error()),
		)
		return nil, &IntakeError{
			StatusCode: 500,
			Code:       apierrors.CodeInternalError,
			Message:    "Не удалось сохранить запись фотографии",
		}
	}

	uploadsTotal.WithLabelValues("success").Inc()
	uploadDuration.Observe(time.Since(start).Seconds())

	s.logger.Info("Фотография принята, ожидает модерации",
		slog.String("photo_id", record.ID),
		slog.String("contributor", record.Contributor),
		slog.String("floor_id", record.FloorID),
		slog.String("image_id", record.ImageID),
	)

	return record, nil
}

// validate проверяет параметры приёма. Возвращает nil, если всё корректно.
func (s *IntakeService) validate(params SubmitParams) *IntakeError {
	if params.Reader == nil {
		return &IntakeError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Файл не передан",
		}
	}
	if !strings.HasPrefix(params.ContentType, "image/") {
		return &IntakeError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Допустимы только изображения, получен тип %q", params.ContentType),
		}
	}
	if params.Size > s.maxUploadSize {
		return &IntakeError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    fmt.Sprintf("Размер файла %d байт превышает максимум %d байт", params.Size, s.maxUploadSize),
		}
	}
	if strings.TrimSpace(params.Contributor) == "" {
		return &IntakeError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Поле 'contributor' обязательно",
		}
	}
	if strings.TrimSpace(params.FloorID) == "" {
		return &IntakeError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Поле 'floorId' обязательно",
		}
	}
	return nil
}
