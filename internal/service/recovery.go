// recovery.go — координатор восстановления: миграция fallback-документов
// в основное хранилище и ручная замена содержимого.
// Миграция идемпотентна и защищена single-flight: конкурентные запросы
// по одному документу сливаются в одно выполнение. Каждая фактическая
// попытка миграции фиксируется в журнале upload_attempts.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/lendora/docvault/internal/checksum"
	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/repository"
	"github.com/lendora/docvault/internal/storage/fallback"
	"github.com/lendora/docvault/internal/storage/objectstore"
)

// RecoveryCoordinator — миграция документов из fallback-хранилища
// и управление фоновыми заданиями массового восстановления.
type RecoveryCoordinator struct {
	docs        repository.DocumentRepository
	attempts    repository.UploadAttemptRepository
	primary     objectstore.Store
	local       *fallback.Store
	cache       *DocumentCache
	concurrency int
	logger      *slog.Logger

	// flight сливает конкурентные миграции одного документа
	flight singleflight.Group

	jobsMu sync.Mutex
	jobs   map[string]*model.RecoveryJob
}

// NewRecoveryCoordinator создаёт координатор восстановления.
func NewRecoveryCoordinator(
	docs repository.DocumentRepository,
	attempts repository.UploadAttemptRepository,
	primary objectstore.Store,
	local *fallback.Store,
	cache *DocumentCache,
	concurrency int,
	logger *slog.Logger,
) *RecoveryCoordinator {
	return &RecoveryCoordinator{
		docs:        docs,
		attempts:    attempts,
		primary:     primary,
		local:       local,
		cache:       cache,
		concurrency: concurrency,
		logger:      logger.With(slog.String("component", "recovery")),
		jobs:        make(map[string]*model.RecoveryJob),
	}
}

// MigrateOne переносит один документ из fallback в основное хранилище.
// Для документа, уже находящегося в основном хранилище, операция —
// идемпотентный no-op. Конкурентные вызовы по одному documentID
// выполняют миграцию ровно один раз.
func (c *RecoveryCoordinator) MigrateOne(ctx context.Context, documentID string) (*model.DocumentRecord, error) {
	v, err, _ := c.flight.Do(documentID, func() (any, error) {
		return c.migrate(ctx, documentID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.DocumentRecord), nil
}

// migrate — тело миграции без single-flight обёртки.
// Возвращает запись документа после переноса.
func (c *RecoveryCoordinator) migrate(ctx context.Context, documentID string) (*model.DocumentRecord, error) {
	d, err := c.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %s", ErrNotFound, documentID)
		}
		return nil, err
	}

	switch d.StorageStatus {
	case model.StorageFallback:
		// продолжаем
	case model.StorageSuccess:
		// Уже мигрирован — повтор не является ошибкой
		return d, nil
	default:
		return nil, fmt.Errorf("%w: документ в статусе %s не подлежит миграции", ErrValidation, d.StorageStatus)
	}

	if d.StorageKey == nil {
		return nil, fmt.Errorf("%w: у fallback-документа отсутствует ключ хранилища", ErrValidation)
	}
	key := *d.StorageKey

	data, err := c.local.ReadAll(key)
	if err != nil {
		return nil, c.failMigration(ctx, documentID,
			fmt.Errorf("%w: чтение fallback-копии не удалось: %v", ErrNotFound, err))
	}

	// Проверка целостности ДО записи: повреждённая копия не должна
	// попасть в основное хранилище.
	if d.Checksum != nil {
		ok, verr := checksum.Verify(bytes.NewReader(data), *d.Checksum)
		if verr != nil || !ok {
			return nil, c.failMigration(ctx, documentID,
				fmt.Errorf("%w: fallback-копия документа %s повреждена", ErrChecksumMismatch, documentID))
		}
	}

	if err := c.primary.Put(ctx, key, data, d.MimeType); err != nil {
		return nil, c.failMigration(ctx, documentID,
			fmt.Errorf("%w: запись в основное хранилище: %v", ErrStoreUnavailable, err))
	}

	// Подтверждение записи. Статус меняется только после того, как
	// объект реально виден в основном хранилище.
	if !c.primary.HeadExists(ctx, key) {
		return nil, c.failMigration(ctx, documentID,
			fmt.Errorf("%w: запись объекта %s не подтверждена хранилищем", ErrStoreUnavailable, key))
	}

	d.StorageStatus = model.StorageSuccess
	if err := c.docs.UpdateStorageState(ctx, d); err != nil {
		return nil, c.failMigration(ctx, documentID,
			fmt.Errorf("фиксация миграции документа %s: %w", documentID, err))
	}
	c.cache.Invalidate(documentID)

	// Удаление fallback-копии best-effort: осиротевший файл найдёт сверка.
	if err := c.local.Delete(key); err != nil {
		c.logger.Warn("не удалось удалить fallback-копию после миграции",
			slog.String("document_id", documentID),
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}

	migrationsTotal.WithLabelValues("success").Inc()
	c.logAttempt(ctx, documentID, model.AttemptSuccess)
	c.logger.Info("документ мигрирован в основное хранилище",
		slog.String("document_id", documentID),
		slog.String("key", key),
	)
	return d, nil
}

// failMigration фиксирует неудачный исход миграции в метриках
// и журнале попыток.
func (c *RecoveryCoordinator) failMigration(ctx context.Context, documentID string, err error) error {
	migrationsTotal.WithLabelValues("failure").Inc()
	c.logAttempt(ctx, documentID, model.AttemptFailure)
	return err
}

// MigrateAll запускает фоновую миграцию всех fallback-документов
// и возвращает задание для отслеживания прогресса.
// Отказ отдельного документа не прерывает остальные.
func (c *RecoveryCoordinator) MigrateAll(ctx context.Context) *model.RecoveryJob {
	job := &model.RecoveryJob{
		ID:        uuid.NewString(),
		Status:    model.JobRunning,
		StartedAt: time.Now().UTC(),
	}

	c.jobsMu.Lock()
	c.jobs[job.ID] = job
	c.jobsMu.Unlock()

	// Задание переживает HTTP-запрос, который его создал
	go c.runJob(context.WithoutCancel(ctx), job.ID)

	return c.snapshot(job.ID)
}

// runJob выполняет массовую миграцию с ограничением параллелизма.
// Список документов фиксируется в начале: каждый документ задания
// мигрируется ровно один раз.
func (c *RecoveryCoordinator) runJob(ctx context.Context, jobID string) {
	c.logger.Info("массовая миграция запущена", slog.String("job_id", jobID))

	ids, err := c.collectFallbackIDs(ctx)
	if err != nil {
		c.logger.Error("выборка fallback-документов не удалась",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, c.concurrency)

	for _, id := range ids {
		wg.Add(1)
		sem <- struct{}{}
		go func(documentID string) {
			defer wg.Done()
			defer func() { <-sem }()

			_, err := c.MigrateOne(ctx, documentID)
			c.recordOutcome(jobID, documentID, err)
		}(id)
	}
	wg.Wait()

	c.jobsMu.Lock()
	job := c.jobs[jobID]
	now := time.Now().UTC()
	job.Status = model.JobCompleted
	job.CompletedAt = &now
	attempted, succeeded, failed := job.Attempted, job.Succeeded, job.Failed
	c.jobsMu.Unlock()

	c.logger.Info("массовая миграция завершена",
		slog.String("job_id", jobID),
		slog.Int("attempted", attempted),
		slog.Int("succeeded", succeeded),
		slog.Int("failed", failed),
	)
}

// recordOutcome обновляет счётчики задания по исходу одной миграции.
func (c *RecoveryCoordinator) recordOutcome(jobID, documentID string, err error) {
	c.jobsMu.Lock()
	job := c.jobs[jobID]
	job.Attempted++
	if err != nil {
		job.Failed++
	} else {
		job.Succeeded++
	}
	c.jobsMu.Unlock()

	if err != nil {
		c.logger.Warn("миграция документа не удалась",
			slog.String("job_id", jobID),
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
	}
}

// collectFallbackIDs собирает ID всех fallback-документов постранично.
func (c *RecoveryCoordinator) collectFallbackIDs(ctx context.Context) ([]string, error) {
	var ids []string
	offset := 0
	for {
		page, err := c.docs.ListByStatus(ctx, model.StorageFallback, scanPageSize, offset)
		if err != nil {
			return ids, err
		}
		if len(page) == 0 {
			return ids, nil
		}
		for _, d := range page {
			ids = append(ids, d.ID)
		}
		offset += len(page)
	}
}

// Job возвращает копию задания по ID.
func (c *RecoveryCoordinator) Job(jobID string) (*model.RecoveryJob, error) {
	job := c.snapshot(jobID)
	if job == nil {
		return nil, fmt.Errorf("%w: задание %s", ErrNotFound, jobID)
	}
	return job, nil
}

// snapshot возвращает копию задания под блокировкой.
func (c *RecoveryCoordinator) snapshot(jobID string) *model.RecoveryJob {
	c.jobsMu.Lock()
	defer c.jobsMu.Unlock()

	job, ok := c.jobs[jobID]
	if !ok {
		return nil
	}
	copied := *job
	return &copied
}

// Replace заменяет содержимое существующего документа новыми байтами.
// Идентичность (ID, заявка, имя файла) сохраняется, контрольная сумма
// фиксируется заново. Размещение — по тем же правилам, что и загрузка.
func (c *RecoveryCoordinator) Replace(ctx context.Context, documentID, mimeType string, data []byte) (*model.DocumentRecord, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: пустое содержимое документа", ErrValidation)
	}

	d, err := c.docs.GetByID(ctx, documentID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: документ %s", ErrNotFound, documentID)
		}
		return nil, err
	}

	// Ключ сохраняется, если запись байтов когда-то завершалась;
	// иначе строится заново.
	var key string
	if d.StorageKey != nil {
		key = *d.StorageKey
	} else {
		key = BuildStorageKey(time.Now().UTC(), d.ID, d.FileName)
	}

	if mimeType == "" {
		mimeType = d.MimeType
	}
	sum := checksum.DigestBytes(data)

	var status model.StorageStatus
	switch err := c.primary.Put(ctx, key, data, mimeType); {
	case err == nil:
		status = model.StorageSuccess
	case errors.Is(err, objectstore.ErrUnavailable):
		if _, _, ferr := c.local.Save(key, bytes.NewReader(data)); ferr != nil {
			status = model.StorageFailure
		} else {
			status = model.StorageFallback
		}
	default:
		status = model.StorageFailure
	}

	d.StorageKey = &key
	d.Checksum = &sum
	d.SizeBytes = int64(len(data))
	d.MimeType = mimeType
	d.StorageStatus = status
	if status == model.StorageFailure {
		d.StorageKey = nil
		d.Checksum = nil
	}

	if err := c.docs.UpdateStorageState(ctx, d); err != nil {
		return nil, fmt.Errorf("фиксация замены документа %s: %w", documentID, err)
	}
	c.cache.Invalidate(documentID)
	c.logAttempt(ctx, documentID, attemptStatusFor(status))

	if status == model.StorageFailure {
		return d, fmt.Errorf("%w: запись байтов замены не удалась", ErrStoreUnavailable)
	}

	c.logger.Info("содержимое документа заменено",
		slog.String("document_id", documentID),
		slog.String("status", string(status)),
	)
	return d, nil
}

// logAttempt пишет исход операции восстановления в журнал попыток.
// Отказ журнала не считается отказом самой операции.
func (c *RecoveryCoordinator) logAttempt(ctx context.Context, documentID string, status model.AttemptStatus) {
	if err := c.attempts.Insert(ctx, &documentID, status); err != nil {
		c.logger.Warn("не удалось записать попытку в журнал",
			slog.String("document_id", documentID),
			slog.String("error", err.Error()),
		)
	}
}

// attemptStatusFor отображает фактический статус размещения
// в статус записи журнала попыток.
func attemptStatusFor(status model.StorageStatus) model.AttemptStatus {
	switch status {
	case model.StorageSuccess:
		return model.AttemptSuccess
	case model.StorageFallback:
		return model.AttemptFallback
	default:
		return model.AttemptFailure
	}
}
