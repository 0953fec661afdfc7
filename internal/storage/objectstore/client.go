// client.go — HTTP-клиент основного хранилища объектов.
// Поддерживает TLS с кастомным CA (DV_STORE_CA_CERT_PATH), Bearer-токен,
// retry put с экспоненциальным backoff перед признанием хранилища недоступным.
package objectstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// sseHeader — заголовок server-side encryption, отправляется с каждым put.
const sseHeader = "X-Server-Side-Encryption"

// Client — HTTP-клиент хранилища объектов. Реализует Store.
type Client struct {
	baseURL    string
	token      string
	putRetries int
	httpClient *http.Client
	logger     *slog.Logger
}

// Проверка соответствия интерфейсу на этапе компиляции.
var _ Store = (*Client)(nil)

// New создаёт клиент хранилища объектов.
// caCertPath — путь к CA-сертификату для TLS (пустая строка — стандартный пул).
// token — статический Bearer-токен (пустая строка — без авторизации).
func New(baseURL, token, caCertPath string, timeout time.Duration, putRetries int, logger *slog.Logger) (*Client, error) {
	transport := &http.Transport{
		// Настройка пула idle-соединений для эффективного переиспользования
		MaxIdleConnsPerHost: 10,
	}

	if caCertPath != "" {
		tlsConfig, err := buildTLSConfig(caCertPath)
		if err != nil {
			return nil, fmt.Errorf("загрузка CA-сертификата хранилища: %w", err)
		}
		transport.TLSClientConfig = tlsConfig
		logger.Info("CA-сертификат хранилища добавлен в пул доверия",
			slog.String("ca_cert", caCertPath),
		)
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		putRetries: putRetries,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		logger: logger.With(slog.String("component", "objectstore")),
	}, nil
}

// Put записывает объект с server-side encryption.
// Сетевые отказы и 5xx повторяются с экспоненциальным backoff; после
// исчерпания попыток возвращается ErrUnavailable. Отказ авторизации
// backoff не исправит — он не повторяется, но классифицируется так же.
func (c *Client) Put(ctx context.Context, key string, data []byte, contentType string) error {
	op := func() (struct{}, error) {
		return struct{}{}, c.putOnce(ctx, key, data, contentType)
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(c.putRetries)),
	)
	if err != nil {
		c.logger.Warn("Put не удался после всех попыток",
			slog.String("key", key),
			slog.Int("retries", c.putRetries),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// putOnce выполняет одиночный PUT без повторов.
// Невосстановимые отказы помечаются backoff.Permanent.
func (c *Client) putOnce(ctx context.Context, key string, data []byte, contentType string) error {
	reqURL := c.objectURL(key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, reqURL, bytes.NewReader(data))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("создание запроса Put: %w", err))
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set(sseHeader, "aes256")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer drainClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		// Ошибка авторизации — конфигурационный отказ, не бизнес-условие
		return backoff.Permanent(fmt.Errorf("%w: отказ авторизации (HTTP %d)", ErrUnavailable, resp.StatusCode))
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	default:
		return backoff.Permanent(fmt.Errorf("неожиданный ответ хранилища на Put: HTTP %d", resp.StatusCode))
	}
}

// Get открывает поток содержимого объекта.
// Вызывающий код ОБЯЗАН закрыть ReadCloser.
func (c *Client) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.objectURL(key), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Get: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		// Не закрываем resp.Body — вызывающий код отвечает за это (streaming)
		return resp.Body, nil
	case http.StatusNotFound:
		drainClose(resp.Body)
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	default:
		drainClose(resp.Body)
		return nil, fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
}

// HeadExists проверяет существование объекта. Любой отказ — false.
func (c *Client) HeadExists(ctx context.Context, key string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.objectURL(key), http.NoBody)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	drainClose(resp.Body)

	return resp.StatusCode == http.StatusOK
}

// Delete удаляет объект. 404 не считается ошибкой.
func (c *Client) Delete(ctx context.Context, key string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.objectURL(key), http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса Delete: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	drainClose(resp.Body)

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusNotFound:
		return nil
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	default:
		return fmt.Errorf("неожиданный ответ хранилища на Delete: HTTP %d", resp.StatusCode)
	}
}

// SignedURL выпускает подписанный URL на скачивание объекта.
func (c *Client) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	body, err := json.Marshal(map[string]any{
		"ttl_seconds": int(ttl.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса SignedURL: %w", err)
	}

	reqURL := c.objectURL(key) + "/signed-url"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса SignedURL: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer drainClose(resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		var parsed struct {
			URL string `json:"url"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return "", fmt.Errorf("разбор ответа SignedURL: %w", err)
		}
		return parsed.URL, nil
	case http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrObjectNotFound, key)
	default:
		return "", fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
}

// Ping проверяет доступность хранилища через его liveness endpoint.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health/live", http.NoBody)
	if err != nil {
		return fmt.Errorf("создание запроса Ping: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	drainClose(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// objectURL строит URL объекта по относительному ключу.
func (c *Client) objectURL(key string) string {
	return c.baseURL + "/api/v1/objects/" + key
}

// authorize добавляет Bearer-токен, если он задан.
func (c *Client) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// buildTLSConfig создаёт TLS-конфигурацию с кастомным CA-сертификатом.
func buildTLSConfig(caCertPath string) (*tls.Config, error) {
	caCert, err := os.ReadFile(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("чтение CA-сертификата: %w", err)
	}

	caCertPool, err := x509.SystemCertPool()
	if err != nil {
		caCertPool = x509.NewCertPool()
	}
	caCertPool.AppendCertsFromPEM(caCert)

	return &tls.Config{
		RootCAs: caCertPool,
	}, nil
}

// drainClose дочитывает и закрывает тело ответа для переиспользования соединения.
func drainClose(body io.ReadCloser) {
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}
