// Пакет server — HTTP-сервер Photo Module с graceful shutdown.
// Без TLS — HTTP внутри кластера, TLS termination на API Gateway.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"

	"github.com/santacruz-archive/photo-module/internal/api/handlers"
	"github.com/santacruz-archive/photo-module/internal/config"
)

// Server — HTTP-сервер Photo Module.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	cfg        *config.Config
}

// New создаёт новый HTTP-сервер с настроенными routes и middleware.
// adminMW — middleware проверки модераторского токена; применяется только
// к approve/reject и /api/v1/admin. Общие middlewares (metrics, logging)
// добавляются в порядке переданного среза.
func New(
	cfg *config.Config,
	logger *slog.Logger,
	handler *handlers.APIHandler,
	adminMW func(http.Handler) http.Handler,
	middlewares ...func(http.Handler) http.Handler,
) *Server {
	router := chi.NewRouter()

	// Применяем переданные middleware
	for _, mw := range middlewares {
		router.Use(mw)
	}

	// Служебные endpoints
	router.Get("/health/live", handler.HealthLive)
	router.Get("/health/ready", handler.HealthReady)
	router.Get("/metrics", handler.GetMetrics)

	// Публичные endpoints
	router.Post("/api/v1/photos/upload", handler.UploadPhoto)
	router.Get("/api/v1/photos", handler.ListPhotos)

	// Модераторские endpoints — под проверкой токена
	router.Group(func(r chi.Router) {
		if adminMW != nil {
			r.Use(adminMW)
		}
		r.Put("/api/v1/photos/{photo_id}/approve", handler.ApprovePhoto)
		r.Put("/api/v1/photos/{photo_id}/reject", handler.RejectPhoto)
		r.Get("/api/v1/admin/photos/pending", handler.PendingPhotos)
		r.Get("/api/v1/admin/photos/stats", handler.PhotoStats)
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
		cfg:        cfg,
	}
}

// Run запускает сервер и ожидает сигнала завершения (SIGINT, SIGTERM).
// При получении сигнала выполняется graceful shutdown.
func (s *Server) Run() error {
	// Канал для ошибок сервера
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("HTTP-сервер запущен",
			slog.String("addr", s.httpServer.Addr),
		)

		err := s.httpServer.ListenAndServe()
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	// Ожидание сигнала завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("Получен сигнал завершения", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("ошибка HTTP-сервера: %w", err)
		}
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	s.logger.Info("Выполняется graceful shutdown...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("ошибка при graceful shutdown: %w", err)
	}

	s.logger.Info("HTTP-сервер остановлен")
	return nil
}
