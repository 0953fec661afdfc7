// Пакет objectstore — адаптер основного (durable) хранилища объектов.
// Единый интерфейс над HTTP API провайдера с явной классификацией отказов:
// ErrUnavailable (сеть/авторизация/конфигурация — триггер fallback) против
// ErrObjectNotFound (сигнал нарушения целостности, не повод для retry).
package objectstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// Ошибки адаптера хранилища.
var (
	// ErrUnavailable — хранилище недоступно (сеть, авторизация, 5xx).
	// Вызывающий код переключается на fallback-хранилище.
	ErrUnavailable = errors.New("основное хранилище недоступно")
	// ErrObjectNotFound — объект отсутствует в хранилище.
	// Это находка для сверки, а не условие повтора.
	ErrObjectNotFound = errors.New("объект не найден в основном хранилище")
)

// Store — операции основного хранилища объектов.
type Store interface {
	// Put записывает объект. Каждый успешный put шифруется на стороне
	// сервера — безусловно. Возвращает ErrUnavailable только при
	// сетевых/инфраструктурных отказах, никогда при бизнес-условиях.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get открывает поток содержимого объекта. ErrObjectNotFound при отсутствии.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// HeadExists проверяет существование объекта. Никогда не возвращает
	// ошибку: любой отказ трактуется как «не подтверждено».
	HeadExists(ctx context.Context, key string) bool
	// Delete удаляет объект. Отсутствие объекта не является ошибкой.
	Delete(ctx context.Context, key string) error
	// SignedURL выпускает подписанный URL на скачивание объекта.
	// ErrObjectNotFound при отсутствии объекта.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}
