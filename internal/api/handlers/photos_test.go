package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/santacruz-archive/photo-module/internal/api/middleware"
	"github.com/santacruz-archive/photo-module/internal/domain/model"
	"github.com/santacruz-archive/photo-module/internal/imagestore"
	"github.com/santacruz-archive/photo-module/internal/repository"
	"github.com/santacruz-archive/photo-module/internal/service"
	"github.com/santacruz-archive/photo-module/internal/staging"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memPhotoRepo — потокобезопасная in-memory реализация PhotoRepository.
type memPhotoRepo struct {
	mu     sync.Mutex
	photos map[string]*model.PhotoRecord
	// listErr — инъекция ошибки List для проверки ответа 500
	listErr error
}

func newMemPhotoRepo() *memPhotoRepo {
	return &memPhotoRepo{photos: make(map[string]*model.PhotoRecord)}
}

func (m *memPhotoRepo) Create(_ context.Context, p *model.PhotoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.CreatedAt = time.Now().UTC()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	m.photos[p.ID] = &cp
	return nil
}

func (m *memPhotoRepo) GetByID(_ context.Context, photoID string) (*model.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.photos[photoID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPhotoRepo) List(_ context.Context, filters repository.PhotoFilters) ([]*model.PhotoRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var result []*model.PhotoRecord
	for _, p := range m.photos {
		if filters.Status != nil && string(p.Status) != *filters.Status {
			continue
		}
		if filters.FloorID != nil && p.FloorID != *filters.FloorID {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].SubmittedAt.After(result[j].SubmittedAt)
	})
	return result, nil
}

func (m *memPhotoRepo) Update(_ context.Context, p *model.PhotoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.photos[p.ID]
	if !ok {
		return repository.ErrNotFound
	}
	stored.Status = p.Status
	stored.ApprovedAt = p.ApprovedAt
	stored.TempFilePath = p.TempFilePath
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memPhotoRepo) CountByStatus(_ context.Context) (*model.PhotoStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := &model.PhotoStats{}
	for _, p := range m.photos {
		switch p.Status {
		case model.StatusPending:
			stats.Pending++
		case model.StatusApproved:
			stats.Approved++
		case model.StatusRejected:
			stats.Rejected++
		}
		stats.Total++
	}
	return stats, nil
}

// testRouter собирает chi-роутер с теми же маршрутами, что и боевой сервер.
func testRouter(t *testing.T, repo *memPhotoRepo, adminToken string) (http.Handler, *staging.Store) {
	t.Helper()

	imagesSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodDelete {
			fmt.Fprint(w, `{"success": true, "result": {}}`)
			return
		}
		fmt.Fprint(w, `{"success": true, "result": {"id": "img-777"}}`)
	}))
	t.Cleanup(imagesSrv.Close)

	logger := testLogger()
	store, err := staging.New(t.TempDir() + "/temp")
	if err != nil {
		t.Fatalf("создание staging: %v", err)
	}
	images := imagestore.New(imagesSrv.URL, "test-token", "test-hash",
		"https://imagedelivery.net", 5*time.Second, logger)

	intake := service.NewIntakeService(repo, store, images, 50*1024*1024, logger)
	moderation := service.NewModerationService(repo, store, images, logger)
	handler := NewAPIHandler(NewHealthHandler(nil), intake, moderation, repo, logger)

	adminMW := middleware.NewAdminAuth(adminToken, logger).Middleware()

	router := chi.NewRouter()
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Post("/api/v1/photos/upload", handler.UploadPhoto)
	router.Get("/api/v1/photos", handler.ListPhotos)
	router.Group(func(r chi.Router) {
		r.Use(adminMW)
		r.Put("/api/v1/photos/{photo_id}/approve", handler.ApprovePhoto)
		r.Put("/api/v1/photos/{photo_id}/reject", handler.RejectPhoto)
		r.Get("/api/v1/admin/photos/pending", handler.PendingPhotos)
		r.Get("/api/v1/admin/photos/stats", handler.PhotoStats)
	})

	return router, store
}

// uploadRequest строит multipart-запрос загрузки фотографии.
func uploadRequest(t *testing.T, fields map[string]string, filename, contentType string, content []byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("запись поля %s: %v", k, err)
		}
	}
	if filename != "" {
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition",
			fmt.Sprintf(`form-data; name="imageFile"; filename="%s"`, filename))
		header.Set("Content-Type", contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("создание части файла: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("запись файла: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/photos/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// decodeRecord декодирует PhotoRecord из тела ответа.
func decodeRecord(t *testing.T, body *bytes.Buffer) *model.PhotoRecord {
	t.Helper()
	var record model.PhotoRecord
	if err := json.NewDecoder(body).Decode(&record); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	return &record
}

// errorCode извлекает машиночитаемый код из тела ответа ошибки.
func errorCode(t *testing.T, body *bytes.Buffer) string {
	t.Helper()
	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("декодирование ошибки: %v", err)
	}
	return resp.Error.Code
}

func TestUploadPhoto(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	req := uploadRequest(t, map[string]string{
		"contributor": "Мария",
		"floorId":     "floor-2",
		"roomId":      "room-204",
	}, "lounge.jpg", "image/jpeg", []byte("jpeg-данные"))
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("статус = %d, ожидается 201; тело: %s", rec.Code, rec.Body.String())
	}
	record := decodeRecord(t, rec.Body)
	if record.Status != model.StatusPending {
		t.Errorf("Status = %q, ожидается pending", record.Status)
	}
	if record.ImageID != "img-777" {
		t.Errorf("ImageID = %q, ожидается img-777", record.ImageID)
	}
	if record.ImageURL != "https://imagedelivery.net/test-hash/img-777/public" {
		t.Errorf("ImageURL = %q", record.ImageURL)
	}
	if record.RoomID == nil || *record.RoomID != "room-204" {
		t.Errorf("RoomID = %v, ожидается room-204", record.RoomID)
	}
}

func TestUploadPhotoMissingFile(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	req := uploadRequest(t, map[string]string{
		"contributor": "Мария",
		"floorId":     "floor-2",
	}, "", "", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("статус = %d, ожидается 400", rec.Code)
	}
	if code := errorCode(t, rec.Body); code != "VALIDATION_ERROR" {
		t.Errorf("код = %q, ожидается VALIDATION_ERROR", code)
	}
}

func TestUploadPhotoValidation(t *testing.T) {
	tests := []struct {
		name        string
		fields      map[string]string
		contentType string
	}{
		{"нет contributor", map[string]string{"floorId": "floor-1"}, "image/png"},
		{"нет floorId", map[string]string{"contributor": "Антон"}, "image/png"},
		{"не изображение", map[string]string{"contributor": "Антон", "floorId": "floor-1"}, "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newMemPhotoRepo()
			router, _ := testRouter(t, repo, "")

			req := uploadRequest(t, tt.fields, "doc.bin", tt.contentType, []byte("данные"))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Fatalf("статус = %d, ожидается 400", rec.Code)
			}
			if code := errorCode(t, rec.Body); code != "VALIDATION_ERROR" {
				t.Errorf("код = %q, ожидается VALIDATION_ERROR", code)
			}
		})
	}
}

// submitTestPhoto загружает фотографию через API и возвращает созданную запись.
func submitTestPhoto(t *testing.T, router http.Handler, floorID string) *model.PhotoRecord {
	t.Helper()
	req := uploadRequest(t, map[string]string{
		"contributor": "Мария",
		"floorId":     floorID,
	}, "photo.jpg", "image/jpeg", []byte("jpeg-данные"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("загрузка: статус = %d; тело: %s", rec.Code, rec.Body.String())
	}
	return decodeRecord(t, rec.Body)
}

func TestListPhotos(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	submitTestPhoto(t, router, "floor-1")
	submitTestPhoto(t, router, "floor-2")

	// Без фильтров
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	var photos []*model.PhotoRecord
	if err := json.NewDecoder(rec.Body).Decode(&photos); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if len(photos) != 2 {
		t.Errorf("получено %d записей, ожидается 2", len(photos))
	}

	// Фильтр по этажу
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos?floorId=floor-1", nil))
	photos = nil
	if err := json.NewDecoder(rec.Body).Decode(&photos); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if len(photos) != 1 || photos[0].FloorID != "floor-1" {
		t.Errorf("фильтр floorId: получено %d записей", len(photos))
	}

	// Фильтр по статусу без совпадений — пустой массив, не null
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos?status=approved", nil))
	if body := rec.Body.String(); body != "[]\n" {
		t.Errorf("пустой список = %q, ожидается []", body)
	}

	// Недопустимый статус
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos?status=famous", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("недопустимый статус: %d, ожидается 400", rec.Code)
	}
}

func TestApprovePhoto(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	record := submitTestPhoto(t, router, "floor-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/api/v1/photos/"+record.ID+"/approve", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200; тело: %s", rec.Code, rec.Body.String())
	}
	approved := decodeRecord(t, rec.Body)
	if approved.Status != model.StatusApproved {
		t.Errorf("Status = %q, ожидается approved", approved.Status)
	}
	if approved.ApprovedAt == nil {
		t.Error("ApprovedAt не установлен")
	}

	// Повторное решение — конфликт, не тихий успех
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/api/v1/photos/"+record.ID+"/reject", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("повторное решение: %d, ожидается 400", rec.Code)
	}
	if code := errorCode(t, rec.Body); code != "CONFLICT" {
		t.Errorf("код = %q, ожидается CONFLICT", code)
	}
}

func TestRejectPhoto(t *testing.T) {
	repo := newMemPhotoRepo()
	router, store := testRouter(t, repo, "")

	record := submitTestPhoto(t, router, "floor-1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/api/v1/photos/"+record.ID+"/reject", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200; тело: %s", rec.Code, rec.Body.String())
	}
	rejected := decodeRecord(t, rec.Body)
	if rejected.Status != model.StatusRejected {
		t.Errorf("Status = %q, ожидается rejected", rejected.Status)
	}

	// Временный файл удалён после отклонения
	entries, err := os.ReadDir(store.Root())
	if err != nil {
		t.Fatalf("чтение каталога временных файлов: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("в каталоге временных файлов осталось %d файлов", len(entries))
	}
}

func TestListPhotosRepositoryError(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")
	repo.listErr = errors.New("соединение потеряно")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("статус = %d, ожидается 500", rec.Code)
	}
	if code := errorCode(t, rec.Body); code != "INTERNAL_ERROR" {
		t.Errorf("код = %q, ожидается INTERNAL_ERROR", code)
	}
}

func TestModerationBadPhotoID(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	// Некорректный UUID
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/api/v1/photos/not-a-uuid/approve", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("некорректный UUID: %d, ожидается 400", rec.Code)
	}

	// Несуществующая запись
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/api/v1/photos/"+uuid.New().String()+"/approve", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("несуществующая запись: %d, ожидается 404", rec.Code)
	}
}

func TestAdminPendingAndStats(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	first := submitTestPhoto(t, router, "floor-1")
	submitTestPhoto(t, router, "floor-2")

	// Одобряем первую — в очереди остаётся одна
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut,
		"/api/v1/photos/"+first.ID+"/approve", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("одобрение: %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/photos/pending", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: статус = %d", rec.Code)
	}
	var pending []*model.PhotoRecord
	if err := json.NewDecoder(rec.Body).Decode(&pending); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("очередь модерации: %d записей, ожидается 1", len(pending))
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/photos/stats", nil))
	var stats model.PhotoStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if stats.Pending != 1 || stats.Approved != 1 || stats.Total != 2 {
		t.Errorf("статистика = %+v, ожидается {1 1 0 2}", stats)
	}
}

func TestAdminEndpointsRequireToken(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "moderator-secret")

	record := submitTestPhoto(t, router, "floor-1")

	protected := []struct {
		method string
		path   string
	}{
		{http.MethodPut, "/api/v1/photos/" + record.ID + "/approve"},
		{http.MethodPut, "/api/v1/photos/" + record.ID + "/reject"},
		{http.MethodGet, "/api/v1/admin/photos/pending"},
		{http.MethodGet, "/api/v1/admin/photos/stats"},
	}

	for _, ep := range protected {
		// Без токена — 401
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(ep.method, ep.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s без токена: %d, ожидается 401", ep.method, ep.path, rec.Code)
		}

		// С неверным токеном — 401
		req := httptest.NewRequest(ep.method, ep.path, nil)
		req.Header.Set("Authorization", "Bearer wrong")
		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s с неверным токеном: %d, ожидается 401", ep.method, ep.path, rec.Code)
		}
	}

	// С верным токеном — очередь модерации доступна
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/photos/pending", nil)
	req.Header.Set("Authorization", "Bearer moderator-secret")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("с верным токеном: %d, ожидается 200", rec.Code)
	}

	// Публичные endpoints токена не требуют
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/photos", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("публичный список: %d, ожидается 200", rec.Code)
	}
}

func TestHealthLive(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("статус = %d, ожидается 200", rec.Code)
	}
	var resp struct {
		Status  string `json:"status"`
		Service string `json:"service"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "photo-module" {
		t.Errorf("ответ = %+v", resp)
	}
}

func TestHealthReadyNoDatabase(t *testing.T) {
	repo := newMemPhotoRepo()
	router, _ := testRouter(t, repo, "")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	// pgChecker не инициализирован — readiness fail
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("статус = %d, ожидается 503", rec.Code)
	}
}
