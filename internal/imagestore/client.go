// Пакет imagestore — HTTP-клиент внешнего content-addressed хранилища
// изображений (Cloudflare Images-совместимый API).
// Операции: Upload (POST multipart), Delete (DELETE /{id}),
// DeliveryURL (детерминированное построение публичного URL без сети).
package imagestore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// DefaultVariant — вариант delivery URL по умолчанию.
const DefaultVariant = "public"

// uploadResponse — ответ хранилища на POST /images.
type uploadResponse struct {
	Success bool `json:"success"`
	Result  struct {
		ID string `json:"id"`
	} `json:"result"`
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// UploadResult — результат загрузки изображения.
type UploadResult struct {
	// ImageID — стабильный идентификатор образа в хранилище
	ImageID string
	// URL — публичный delivery URL (variant public)
	URL string
}

// Client — HTTP-клиент хранилища изображений.
type Client struct {
	httpClient  *http.Client
	apiURL      string
	token       string
	accountHash string
	deliveryURL string
	logger      *slog.Logger
}

// New создаёт клиент хранилища изображений.
// apiURL — базовый URL API (например .../accounts/<id>/images/v1),
// token — bearer-токен, accountHash — namespace аккаунта для delivery URL,
// deliveryURL — базовый delivery URL.
func New(apiURL, token, accountHash, deliveryURL string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		httpClient:  &http.Client{Timeout: timeout},
		apiURL:      strings.TrimRight(apiURL, "/"),
		token:       token,
		accountHash: accountHash,
		deliveryURL: strings.TrimRight(deliveryURL, "/"),
		logger:      logger.With(slog.String("component", "imagestore_client")),
	}
}

// Upload загружает файл в хранилище изображений.
// metadata — JSON-строка с метаданными, прикладывается к образу.
// Не-2xx ответ или транспортная ошибка фатальны для вызывающего:
// приём загрузки прерывается, запись не создаётся.
func (c *Client) Upload(ctx context.Context, localPath, metadata string) (*UploadResult, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return nil, fmt.Errorf("открытие файла %s: %w", localPath, err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("file", filepath.Base(localPath))
	if err != nil {
		return nil, fmt.Errorf("создание multipart form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("чтение файла %s: %w", localPath, err)
	}
	if metadata != "" {
		if err := mw.WriteField("metadata", metadata); err != nil {
			return nil, fmt.Errorf("запись поля metadata: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("закрытие multipart form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, &body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Upload: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос Upload к %s: %w", c.apiURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("хранилище изображений вернуло статус %d: %s", resp.StatusCode, string(respBody))
	}

	var ur uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&ur); err != nil {
		return nil, fmt.Errorf("декодирование ответа Upload: %w", err)
	}
	if !ur.Success || ur.Result.ID == "" {
		return nil, fmt.Errorf("хранилище изображений отклонило загрузку: %+v", ur.Errors)
	}

	c.logger.Debug("Изображение загружено во внешнее хранилище",
		slog.String("image_id", ur.Result.ID),
	)

	return &UploadResult{
		ImageID: ur.Result.ID,
		URL:     c.DeliveryURL(ur.Result.ID, DefaultVariant),
	}, nil
}

// Delete удаляет образ из хранилища изображений.
// Вызывающие на пути reject логируют и поглощают ошибку: удаление
// best-effort и не должно блокировать переход состояния модерации.
func (c *Client) Delete(ctx context.Context, imageID string) error {
	reqURL := c.apiURL + "/" + imageID

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, nil)
	if err != nil {
		return fmt.Errorf("создание запроса Delete: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("запрос Delete к %s: %w", reqURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("хранилище изображений вернуло статус %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

// DeliveryURL строит публичный delivery URL образа.
// Чистая функция: {delivery-base}/{account-hash}/{image-id}/{variant}.
func (c *Client) DeliveryURL(imageID, variant string) string {
	if variant == "" {
		variant = DefaultVariant
	}
	return fmt.Sprintf("%s/%s/%s/%s", c.deliveryURL, c.accountHash, imageID, variant)
}
