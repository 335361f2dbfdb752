// main.go — точка входа Photo Module.
// Порядок запуска: config → logger → миграции → PostgreSQL →
// staging → клиент хранилища изображений → сервисы → HTTP-сервер.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/santacruz-archive/photo-module/internal/api/handlers"
	"github.com/santacruz-archive/photo-module/internal/api/middleware"
	"github.com/santacruz-archive/photo-module/internal/config"
	"github.com/santacruz-archive/photo-module/internal/database"
	"github.com/santacruz-archive/photo-module/internal/gallery"
	"github.com/santacruz-archive/photo-module/internal/imagestore"
	"github.com/santacruz-archive/photo-module/internal/repository"
	"github.com/santacruz-archive/photo-module/internal/server"
	"github.com/santacruz-archive/photo-module/internal/service"
	"github.com/santacruz-archive/photo-module/internal/staging"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// 2. Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Photo Module запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	// 3. Миграции и подключение к PostgreSQL
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций", slog.String("error", err.Error()))
		log.Fatalf("Миграции не применены: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := database.Connect(ctx, cfg, logger)
	cancel()
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		log.Fatalf("PostgreSQL недоступен: %v", err)
	}
	defer pool.Close()

	// 4. Каталог временных файлов
	stagingStore, err := staging.New(cfg.TempDir)
	if err != nil {
		logger.Error("Ошибка создания каталога временных файлов",
			slog.String("dir", cfg.TempDir),
			slog.String("error", err.Error()),
		)
		log.Fatalf("Каталог временных файлов недоступен: %v", err)
	}

	// 5. Клиент внешнего хранилища изображений
	images := imagestore.New(
		cfg.ImagesAPIURL,
		cfg.ImagesToken,
		cfg.ImagesAccountHash,
		cfg.ImagesDeliveryURL,
		cfg.ImagesTimeout,
		logger,
	)

	// 6. Репозиторий и сервисы
	photoRepo := repository.NewPhotoRepository(pool)
	intake := service.NewIntakeService(photoRepo, stagingStore, images, cfg.MaxUploadSize, logger)
	moderation := service.NewModerationService(photoRepo, stagingStore, images, logger)

	// 7. Обработчики
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	apiHandler := handlers.NewAPIHandler(healthHandler, intake, moderation, photoRepo, logger)

	// 8. Middleware: метрики → логирование; модераторский токен на admin-маршрутах
	adminAuth := middleware.NewAdminAuth(cfg.AdminToken, logger)
	srv := server.New(cfg, logger, apiHandler, adminAuth.Middleware(),
		middleware.MetricsMiddleware(),
		middleware.RequestLogger(logger),
	)

	// 9. Прогрев кэша галереи после старта сервера
	galleryClient := gallery.New(
		fmt.Sprintf("http://localhost:%d", cfg.Port),
		cfg.GalleryMaxRetries,
		cfg.GalleryBaseDelay,
		nil,
		cfg.GalleryCacheSize,
		cfg.GalleryCacheTTL,
		logger,
	)
	go func() {
		// Даём серверу время начать слушать порт
		time.Sleep(time.Second)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		galleryClient.Preload(ctx)
	}()

	// 10. Запуск сервера (блокирующий вызов с graceful shutdown)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		log.Fatalf("Сервер завершился с ошибкой: %v", err)
	}

	logger.Info("Photo Module остановлен")
}
