// upload.go — сервис приёма документов.
// Реализует трёхступенчатый протокол записи: сначала запись в БД со
// статусом pending, затем запись байтов (основное хранилище или fallback),
// и только после подтверждения — финальный статус. Каждая попытка
// фиксируется в append-only журнале upload_attempts.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lendora/docvault/internal/checksum"
	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/repository"
	"github.com/lendora/docvault/internal/storage/fallback"
	"github.com/lendora/docvault/internal/storage/objectstore"
)

// UploadService — приём документов и выдача их метаданных.
type UploadService struct {
	docs         repository.DocumentRepository
	attempts     repository.UploadAttemptRepository
	primary      objectstore.Store
	local        *fallback.Store
	cache        *DocumentCache
	maxFileSize  int64
	signedURLTTL time.Duration
	logger       *slog.Logger
}

// NewUploadService создаёт сервис приёма документов.
func NewUploadService(
	docs repository.DocumentRepository,
	attempts repository.UploadAttemptRepository,
	primary objectstore.Store,
	local *fallback.Store,
	cache *DocumentCache,
	maxFileSize int64,
	signedURLTTL time.Duration,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		docs:         docs,
		attempts:     attempts,
		primary:      primary,
		local:        local,
		cache:        cache,
		maxFileSize:  maxFileSize,
		signedURLTTL: signedURLTTL,
		logger:       logger.With(slog.String("component", "upload")),
	}
}

// Upload принимает документ: регистрирует запись, записывает байты
// и возвращает финальную запись. Недоступность основного хранилища
// не является ошибкой операции — байты остаются в fallback, статус
// отражает фактическое размещение.
func (s *UploadService) Upload(ctx context.Context, applicationID, fileName, mimeType string, data []byte) (*model.DocumentRecord, error) {
	if err := s.validate(applicationID, fileName, data); err != nil {
		return nil, err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	doc := &model.DocumentRecord{
		ID:            uuid.NewString(),
		ApplicationID: applicationID,
		FileName:      fileName,
		SizeBytes:     int64(len(data)),
		MimeType:      mimeType,
		StorageStatus: model.StoragePending,
	}

	// Шаг 1: запись в БД до записи байтов. Если процесс упадёт между
	// шагами, сверка найдёт orphaned_record, а не потеряет документ.
	if err := s.docs.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("регистрация документа: %w", err)
	}

	key := BuildStorageKey(time.Now().UTC(), doc.ID, fileName)
	sum := checksum.DigestBytes(data)

	// Шаг 2: байты в основное хранилище, при недоступности — в fallback.
	status := s.writeBytes(ctx, doc.ID, key, mimeType, data)

	// Шаг 3: финальный статус + журнал попытки.
	doc.StorageKey = &key
	doc.Checksum = &sum
	doc.StorageStatus = status
	if status == model.StorageFailure {
		doc.StorageKey = nil
		doc.Checksum = nil
	}

	if err := s.docs.UpdateStorageState(ctx, doc); err != nil {
		return nil, fmt.Errorf("фиксация статуса документа: %w", err)
	}
	s.logAttempt(ctx, doc.ID, status)
	s.cache.Set(doc)

	if status == model.StorageFailure {
		return doc, fmt.Errorf("%w: запись байтов документа не удалась", ErrStoreUnavailable)
	}
	return doc, nil
}

// writeBytes записывает содержимое и возвращает фактический статус размещения.
func (s *UploadService) writeBytes(ctx context.Context, documentID, key, mimeType string, data []byte) model.StorageStatus {
	err := s.primary.Put(ctx, key, data, mimeType)
	if err == nil {
		uploadsTotal.WithLabelValues(string(model.AttemptSuccess)).Inc()
		return model.StorageSuccess
	}

	if !errors.Is(err, objectstore.ErrUnavailable) {
		s.logger.Error("запись в основное хранилище отклонена",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
		uploadsTotal.WithLabelValues(string(model.AttemptFailure)).Inc()
		return model.StorageFailure
	}

	s.logger.Warn("основное хранилище недоступно, переключение на fallback",
		slog.String("document_id", documentID),
		slog.String("key", key),
	)

	if _, _, ferr := s.local.Save(key, bytes.NewReader(data)); ferr != nil {
		s.logger.Error("запись в fallback-хранилище не удалась",
			slog.String("document_id", documentID),
			slog.String("error", ferr.Error()),
		)
		uploadsTotal.WithLabelValues(string(model.AttemptFailure)).Inc()
		return model.StorageFailure
	}

	uploadsTotal.WithLabelValues(string(model.AttemptFallback)).Inc()
	return model.StorageFallback
}

// Get возвращает запись документа, сначала из кэша.
func (s *UploadService) Get(ctx context.Context, documentID string) (*model.DocumentRecord, error) {
	if _, err := uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("%w: некорректный UUID документа", ErrValidation)
	}

	if d, ok := s.cache.Get(documentID); ok {
		return d, nil
	}

	d, err := s.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %s", ErrNotFound, documentID)
		}
		return nil, err
	}

	s.cache.Set(d)
	return d, nil
}

// DownloadURL выпускает подписанный URL на скачивание документа.
// Доступно только для документов в основном хранилище: fallback-документ
// сначала должен быть мигрирован.
func (s *UploadService) DownloadURL(ctx context.Context, documentID string) (string, error) {
	d, err := s.Get(ctx, documentID)
	if err != nil {
		return "", err
	}

	switch d.StorageStatus {
	case model.StorageSuccess:
		// продолжаем
	case model.StorageFallback:
		return "", fmt.Errorf("%w: документ находится в fallback-хранилище и ещё не мигрирован", ErrValidation)
	default:
		return "", fmt.Errorf("%w: байты документа недоступны (статус %s)", ErrValidation, d.StorageStatus)
	}

	if d.StorageKey == nil {
		return "", fmt.Errorf("%w: у документа отсутствует ключ хранилища", ErrValidation)
	}

	url, err := s.primary.SignedURL(ctx, *d.StorageKey, s.signedURLTTL)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: объект документа отсутствует в хранилище", ErrNotFound)
		}
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return url, nil
}

// logAttempt пишет запись журнала попыток. Отказ журнала не фатален:
// журнал нужен только для метрик.
func (s *UploadService) logAttempt(ctx context.Context, documentID string, status model.StorageStatus) {
	if err := s.attempts.Insert(ctx, &documentID, attemptStatusFor(status)); err != nil {
		s.logger.Warn("не удалось записать попытку загрузки в журнал",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
	}
}

// validate проверяет входные данные загрузки.
func (s *UploadService) validate(applicationID, fileName string, data []byte) error {
	if _, err := uuid.Parse(applicationID); err != nil {
		return fmt.Errorf("%w: некорректный UUID заявки", ErrValidation)
	}
	if strings.TrimSpace(fileName) == "" {
		return fmt.Errorf("%w: имя файла не задано", ErrValidation)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: пустое содержимое документа", ErrValidation)
	}
	if int64(len(data)) > s.maxFileSize {
		return fmt.Errorf("%w: размер файла %d превышает лимит %d байт", ErrValidation, len(data), s.maxFileSize)
	}
	return nil
}

// BuildStorageKey строит относительный ключ документа:
// {yyyy}/{mm}/{document_id}/{sanitized_name}. Ключ одинаков для основного
// и fallback-хранилищ, поэтому миграция не меняет идентичность объекта.
func BuildStorageKey(t time.Time, documentID, fileName string) string {
	return fmt.Sprintf("%04d/%02d/%s/%s", t.Year(), int(t.Month()), documentID, SanitizeFileName(fileName))
}

// SanitizeFileName приводит имя файла к безопасному для ключа виду:
// допустимы только латинские буквы, цифры, точка, дефис и подчёркивание.
func SanitizeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9',
			r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	sanitized := strings.Trim(b.String(), "._")
	if sanitized == "" {
		sanitized = "file"
	}
	if len(sanitized) > 128 {
		sanitized = sanitized[:128]
	}
	return sanitized
}
