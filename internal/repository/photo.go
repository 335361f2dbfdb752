package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/santacruz-archive/photo-module/internal/domain/model"
)

// photoColumns — список столбцов таблицы photo_registry для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const photoColumns = `photo_id, contributor, floor_id, room_id, date,
	original_filename, temp_file_path, image_id, image_url,
	status, submitted_at, approved_at, created_at, updated_at`

// PhotoFilters — фильтры для списка фотографий.
// Все поля — указатели, nil = фильтр не применяется.
type PhotoFilters struct {
	// Status — фильтр по статусу (pending/approved/rejected)
	Status *string
	// FloorID — фильтр по этажу
	FloorID *string
}

// PhotoRepository — интерфейс CRUD для таблицы photo_registry.
// Записи никогда не удаляются физически: отклонённые фотографии
// остаются в реестре как аудиторский след.
type PhotoRepository interface {
	// Create создаёт запись фотографии. ID назначается репозиторием.
	Create(ctx context.Context, p *model.PhotoRecord) error
	// GetByID возвращает фотографию по UUID.
	GetByID(ctx context.Context, photoID string) (*model.PhotoRecord, error)
	// List возвращает фотографии по фильтрам, новые первыми (submitted_at DESC).
	List(ctx context.Context, filters PhotoFilters) ([]*model.PhotoRecord, error)
	// Update обновляет изменяемые поля записи (статус, approved_at, temp_file_path).
	// Без optimistic locking — последняя запись побеждает (один модератор).
	Update(ctx context.Context, p *model.PhotoRecord) error
	// CountByStatus возвращает количество фотографий по статусам.
	CountByStatus(ctx context.Context) (*model.PhotoStats, error)
}

// photoRepo — реализация PhotoRepository через pgx.
type photoRepo struct {
	db DBTX
}

// NewPhotoRepository создаёт репозиторий фотографий.
func NewPhotoRepository(db DBTX) PhotoRepository {
	return &photoRepo{db: db}
}

// Create вставляет запись в photo_registry.
// Если ID пуст — назначает новый UUID (идентификатор выдаёт реестр).
func (r *photoRepo) Create(ctx context.Context, p *model.PhotoRecord) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}

	query := `
		INSERT INTO photo_registry (photo_id, contributor, floor_id, room_id, date,
			original_filename, temp_file_path, image_id, image_url,
			status, submitted_at, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Contributor, p.FloorID, p.RoomID, p.Date,
		p.OriginalFileName, p.TempFilePath, p.ImageID, p.ImageURL,
		p.Status, p.SubmittedAt, p.ApprovedAt,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка создания записи фотографии: %w", err)
	}
	return nil
}

// GetByID возвращает фотографию по UUID или ErrNotFound.
func (r *photoRepo) GetByID(ctx context.Context, photoID string) (*model.PhotoRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM photo_registry WHERE photo_id = $1`, photoColumns)

	p := &model.PhotoRecord{}
	err := r.db.QueryRow(ctx, query, photoID).Scan(
		&p.ID, &p.Contributor, &p.FloorID, &p.RoomID, &p.Date,
		&p.OriginalFileName, &p.TempFilePath, &p.ImageID, &p.ImageURL,
		&p.Status, &p.SubmittedAt, &p.ApprovedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения фотографии: %w", err)
	}
	return p, nil
}

// buildPhotoWhere строит WHERE-условие и аргументы для фильтрации фотографий.
func buildPhotoWhere(filters PhotoFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	if filters.Status != nil && *filters.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argNum))
		args = append(args, *filters.Status)
		argNum++
	}
	if filters.FloorID != nil && *filters.FloorID != "" {
		conditions = append(conditions, fmt.Sprintf("floor_id = $%d", argNum))
		args = append(args, *filters.FloorID)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}

// List возвращает фотографии по фильтрам, отсортированные по submitted_at DESC.
// Пустой фильтр возвращает все записи; частичный фильтр игнорирует
// незаданное измерение.
func (r *photoRepo) List(ctx context.Context, filters PhotoFilters) ([]*model.PhotoRecord, error) {
	where, args := buildPhotoWhere(filters, 1)

	query := fmt.Sprintf(`
		SELECT %s FROM photo_registry
		%s
		ORDER BY submitted_at DESC`, photoColumns, where)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка фотографий: %w", err)
	}
	defer rows.Close()

	var result []*model.PhotoRecord
	for rows.Next() {
		p := &model.PhotoRecord{}
		if err := rows.Scan(
			&p.ID, &p.Contributor, &p.FloorID, &p.RoomID, &p.Date,
			&p.OriginalFileName, &p.TempFilePath, &p.ImageID, &p.ImageURL,
			&p.Status, &p.SubmittedAt, &p.ApprovedAt, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования фотографии: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Update обновляет изменяемые поля записи.
// SubmittedAt и поля внешнего хранилища неизменяемы и не входят в UPDATE.
func (r *photoRepo) Update(ctx context.Context, p *model.PhotoRecord) error {
	query := `
		UPDATE photo_registry
		SET status = $2, approved_at = $3, temp_file_path = $4
		WHERE photo_id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		p.ID, p.Status, p.ApprovedAt, p.TempFilePath,
	).Scan(&p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления фотографии: %w", err)
	}
	return nil
}

// CountByStatus возвращает количество фотографий по каждому статусу
// одним запросом (GROUP BY).
func (r *photoRepo) CountByStatus(ctx context.Context) (*model.PhotoStats, error) {
	query := `SELECT status, COUNT(*) FROM photo_registry GROUP BY status`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта фотографий: %w", err)
	}
	defer rows.Close()

	stats := &model.PhotoStats{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики: %w", err)
		}
		switch model.PhotoStatus(status) {
		case model.StatusPending:
			stats.Pending = count
		case model.StatusApproved:
			stats.Approved = count
		case model.StatusRejected:
			stats.Rejected = count
		}
		stats.Total += count
	}
	return stats, rows.Err()
}
