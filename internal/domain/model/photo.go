// Пакет model — доменные модели Photo Module.
// PhotoRecord — маппинг таблицы photo_registry.
package model

import "time"

// PhotoStatus — статус фотографии в пайплайне модерации.
type PhotoStatus string

const (
	// StatusPending — фотография загружена, ожидает решения модератора.
	StatusPending PhotoStatus = "pending"
	// StatusApproved — фотография одобрена, видна в публичной галерее.
	StatusApproved PhotoStatus = "approved"
	// StatusRejected — фотография отклонена; запись остаётся для аудита,
	// внешний образ и временный файл освобождены.
	StatusRejected PhotoStatus = "rejected"
)

// PhotoRecord — запись фотографии в реестре photo_registry.
//
// Запись создаётся только после успешной загрузки во внешнее хранилище
// изображений: ImageID и ImageURL никогда не пусты для существующей записи.
// Переходы статуса односторонние: pending → approved или pending → rejected.
type PhotoRecord struct {
	// ID — UUID записи, назначается репозиторием при создании
	ID string `json:"id"`
	// Contributor — имя отправителя (свободный текст)
	Contributor string `json:"contributor"`
	// FloorID — идентификатор этажа (внешняя статическая конфигурация)
	FloorID string `json:"floorId"`
	// RoomID — идентификатор помещения на этаже (опционально)
	RoomID *string `json:"roomId,omitempty"`
	// Date — человекочитаемый период отправки ("Jan 2006"), фиксируется при приёме
	Date string `json:"date"`
	// OriginalFileName — оригинальное имя загруженного файла
	OriginalFileName string `json:"originalFileName"`
	// TempFilePath — путь к локально размещённому файлу.
	// Не-nil только пока Status == pending; очищается при финализации.
	TempFilePath *string `json:"tempFilePath,omitempty"`
	// ImageID — идентификатор образа во внешнем хранилище изображений
	ImageID string `json:"imageId"`
	// ImageURL — публичный delivery URL, детерминированно выводится из ImageID
	ImageURL string `json:"imageUrl"`
	// Status — pending, approved или rejected
	Status PhotoStatus `json:"status"`
	// SubmittedAt — время создания записи, неизменяемо
	SubmittedAt time.Time `json:"submittedAt"`
	// ApprovedAt — время одобрения; nil до перехода в approved, далее неизменяемо
	ApprovedAt *time.Time `json:"approvedAt,omitempty"`
	// CreatedAt — время создания строки в БД
	CreatedAt time.Time `json:"-"`
	// UpdatedAt — время последнего обновления строки в БД
	UpdatedAt time.Time `json:"-"`
}

// IsPending сообщает, ожидает ли запись решения модератора.
func (p *PhotoRecord) IsPending() bool {
	return p.Status == StatusPending
}

// PhotoStats — количество фотографий по статусам.
type PhotoStats struct {
	Pending  int `json:"pending"`
	Approved int `json:"approved"`
	Rejected int `json:"rejected"`
	Total    int `json:"total"`
}
