// Пакет gallery — клиентский слой устойчивого чтения для публичной галереи.
// Оборачивает исходящие запросы чтения retry с экспоненциальным backoff
// и TTL-кэшем (hashicorp/golang-lru/v2/expirable), общим для всех
// вызывающих внутри процесса.
//
// Retry реализован явным ограниченным циклом со счётчиком попыток:
// предсказуемая глубина стека и прозрачная отмена через context.
package gallery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/santacruz-archive/photo-module/internal/domain/model"
)

// DefaultRetryableStatuses — статусы, при которых запрос повторяется.
var DefaultRetryableStatuses = []int{
	http.StatusRequestTimeout,      // 408
	http.StatusTooManyRequests,     // 429
	http.StatusInternalServerError, // 500
	http.StatusBadGateway,          // 502
	http.StatusServiceUnavailable,  // 503
	http.StatusGatewayTimeout,      // 504
}

// Ключи кэша чтения.
const (
	cacheKeyApproved = "photos:approved"
)

// Prometheus-метрики галерейного клиента.
var (
	galleryRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gallery_retries_total",
		Help: "Общее количество повторов запросов чтения галереи.",
	})
	galleryCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gallery_cache_hits_total",
		Help: "Общее количество попаданий в TTL-кэш чтения галереи.",
	})
	galleryCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gallery_cache_misses_total",
		Help: "Общее количество промахов TTL-кэша чтения галереи.",
	})
	galleryFetchFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pm_gallery_fetch_failures_total",
		Help: "Количество запросов чтения, исчерпавших все повторы.",
	})
)

// Client — клиент чтения галереи с retry и TTL-кэшем.
type Client struct {
	httpClient *http.Client
	baseURL    string
	maxRetries int
	baseDelay  time.Duration
	retryable  map[int]bool
	cache      *expirable.LRU[string, []*model.PhotoRecord]
	logger     *slog.Logger
}

// New создаёт клиент чтения галереи.
// baseURL — адрес API Photo Module (например http://localhost:8040).
// maxRetries — количество повторов после первой попытки.
// baseDelay — задержка перед первым повтором, удваивается на каждом шаге.
// retryableStatuses — nil означает DefaultRetryableStatuses.
func New(
	baseURL string,
	maxRetries int,
	baseDelay time.Duration,
	retryableStatuses []int,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *Client {
	if retryableStatuses == nil {
		retryableStatuses = DefaultRetryableStatuses
	}
	retryable := make(map[int]bool, len(retryableStatuses))
	for _, s := range retryableStatuses {
		retryable[s] = true
	}

	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		retryable:  retryable,
		cache:      expirable.NewLRU[string, []*model.PhotoRecord](cacheSize, nil, cacheTTL),
		logger:     logger.With(slog.String("component", "gallery_client")),
	}
}

// ApprovedPhotos возвращает одобренные фотографии через TTL-кэш.
// Свежая кэшированная запись не порождает сетевой запрос.
func (c *Client) ApprovedPhotos(ctx context.Context) ([]*model.PhotoRecord, error) {
	return c.CachedRead(ctx, cacheKeyApproved, func(ctx context.Context) ([]*model.PhotoRecord, error) {
		return c.fetchPhotos(ctx, url.Values{"status": {"approved"}})
	})
}

// PhotosByFloor возвращает одобренные фотографии этажа через TTL-кэш.
func (c *Client) PhotosByFloor(ctx context.Context, floorID string) ([]*model.PhotoRecord, error) {
	key := "photos:approved:" + floorID
	return c.CachedRead(ctx, key, func(ctx context.Context) ([]*model.PhotoRecord, error) {
		return c.fetchPhotos(ctx, url.Values{"status": {"approved"}, "floorId": {floorID}})
	})
}

// CachedRead возвращает значение из кэша, если оно моложе TTL,
// иначе вызывает fetcher и сохраняет результат со свежей меткой времени.
// Ошибка fetcher'а не кэшируется.
func (c *Client) CachedRead(
	ctx context.Context,
	key string,
	fetcher func(ctx context.Context) ([]*model.PhotoRecord, error),
) ([]*model.PhotoRecord, error) {
	if cached, ok := c.cache.Get(key); ok {
		galleryCacheHitsTotal.Inc()
		return cached, nil
	}
	galleryCacheMissesTotal.Inc()

	result, err := fetcher(ctx)
	if err != nil {
		return nil, err
	}

	c.cache.Add(key, result)
	return result, nil
}

// Invalidate сбрасывает слот кэша (например после решения модератора).
func (c *Client) Invalidate(key string) {
	c.cache.Remove(key)
}

// Preload прогревает кэш одобренных фотографий при старте.
// Ошибки деградируют до пустого результата и никогда не блокируют запуск.
func (c *Client) Preload(ctx context.Context) []*model.PhotoRecord {
	photos, err := c.ApprovedPhotos(ctx)
	if err != nil {
		c.logger.Warn("Прогрев кэша галереи не удался",
			slog.String("error", err.Error()),
		)
		return nil
	}
	c.logger.Info("Кэш галереи прогрет",
		slog.Int("photos", len(photos)),
	)
	return photos
}

// fetchPhotos выполняет GET /api/v1/photos с retry и декодирует ответ.
func (c *Client) fetchPhotos(ctx context.Context, query url.Values) ([]*model.PhotoRecord, error) {
	reqURL := fmt.Sprintf("%s/api/v1/photos?%s", c.baseURL, query.Encode())

	resp, err := c.fetchWithRetry(ctx, reqURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("галерея вернула статус %d: %s", resp.StatusCode, string(body))
	}

	var photos []*model.PhotoRecord
	if err := json.NewDecoder(resp.Body).Decode(&photos); err != nil {
		return nil, fmt.Errorf("декодирование списка фотографий: %w", err)
	}
	return photos, nil
}

// fetchWithRetry выполняет GET с повторами.
//
// Успех (2xx) и неповторяемые статусы возвращаются немедленно.
// Повторяемый статус или транспортная ошибка, пока попытки не исчерпаны,
// ждёт baseDelay * 2^attempt и повторяет. После исчерпания возвращается
// последний ответ либо последняя транспортная ошибка.
//
// Отмена ctx прерывает и запрос в полёте, и ожидание backoff.
func (c *Client) fetchWithRetry(ctx context.Context, reqURL string) (*http.Response, error) {
	var lastErr error

	for attempt := 0; ; attempt++ {
		resp, err := c.doOnce(ctx, reqURL)
		if err == nil {
			if resp.StatusCode >= 200 && resp.StatusCode < 300 {
				return resp, nil
			}
			if !c.retryable[resp.StatusCode] {
				return resp, nil
			}
			if attempt >= c.maxRetries {
				galleryFetchFailuresTotal.Inc()
				return resp, nil
			}
			// Тело повторяемого ответа закрываем — соединение вернётся в пул
			io.Copy(io.Discard, resp.Body) //nolint:errcheck
			resp.Body.Close()

			c.logger.Debug("Повтор запроса галереи",
				slog.String("url", reqURL),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt+1),
			)
		} else {
			// Отмену не повторяем
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = err
			if attempt >= c.maxRetries {
				galleryFetchFailuresTotal.Inc()
				return nil, fmt.Errorf("запрос галереи после %d попыток: %w", attempt+1, lastErr)
			}
			c.logger.Debug("Повтор запроса галереи после транспортной ошибки",
				slog.String("url", reqURL),
				slog.String("error", err.Error()),
				slog.Int("attempt", attempt+1),
			)
		}

		galleryRetriesTotal.Inc()
		if err := c.backoff(ctx, attempt); err != nil {
			return nil, err
		}
	}
}

// doOnce выполняет один GET-запрос с антикэширующими заголовками.
// Параметр _nocache и заголовки не дают промежуточным кэшам замаскировать
// временный сбой под успех.
func (c *Client) doOnce(ctx context.Context, reqURL string) (*http.Response, error) {
	u, err := url.Parse(reqURL)
	if err != nil {
		return nil, fmt.Errorf("некорректный URL %q: %w", reqURL, err)
	}
	q := u.Query()
	q.Set("_nocache", strconv.FormatInt(time.Now().UnixMilli(), 10))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса галереи: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Expires", "0")

	return c.httpClient.Do(req)
}

// backoff ждёт baseDelay * 2^attempt либо прерывается отменой ctx.
func (c *Client) backoff(ctx context.Context, attempt int) error {
	delay := c.baseDelay << attempt

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
