// scanner.go — сверка согласованности записей БД и физических файлов.
// Каждый запуск пересчитывает картину с нуля: находки эфемерны и никогда
// не сохраняются как истина между запусками.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/repository"
	"github.com/lendora/docvault/internal/storage/fallback"
	"github.com/lendora/docvault/internal/storage/objectstore"
)

// scanPageSize — размер страницы при обходе записей документов.
const scanPageSize = 500

// maxFindingsPerKind — лимит детальных находок одного вида в отчёте.
// Счётчики в Summary при этом всегда полные.
const maxFindingsPerKind = 10

// ErrScanInProgress — сверка уже выполняется, параллельный запуск отклонён.
var ErrScanInProgress = errors.New("сверка уже выполняется")

// ScanReport — результат одного запуска сверки.
type ScanReport struct {
	StartedAt        time.Time                           `json:"started_at"`
	DurationMS       int64                               `json:"duration_ms"`
	PrimaryReachable bool                                `json:"primary_reachable"`
	RecordsScanned   int                                 `json:"records_scanned"`
	FilesScanned     int                                 `json:"files_scanned"`
	Summary          map[model.FindingKind]int           `json:"summary"`
	Findings         map[model.FindingKind][]model.Finding `json:"findings"`
}

// add регистрирует находку: счётчик растёт всегда, деталь — до лимита.
func (r *ScanReport) add(f model.Finding) {
	r.Summary[f.Kind]++
	if len(r.Findings[f.Kind]) < maxFindingsPerKind {
		r.Findings[f.Kind] = append(r.Findings[f.Kind], f)
	}
}

// ConsistencyScanner — сверка записей document_records с физическими
// байтами в основном и fallback-хранилищах.
type ConsistencyScanner struct {
	docs     repository.DocumentRepository
	primary  objectstore.Store
	local    *fallback.Store
	interval time.Duration
	logger   *slog.Logger

	// mu гарантирует не более одного запуска сверки одновременно
	mu sync.Mutex

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewConsistencyScanner создаёт сканер. interval == 0 отключает
// фоновый режим, ручной RunOnce остаётся доступным.
func NewConsistencyScanner(
	docs repository.DocumentRepository,
	primary objectstore.Store,
	local *fallback.Store,
	interval time.Duration,
	logger *slog.Logger,
) *ConsistencyScanner {
	return &ConsistencyScanner{
		docs:     docs,
		primary:  primary,
		local:    local,
		interval: interval,
		logger:   logger.With(slog.String("component", "scanner")),
	}
}

// Start запускает периодическую сверку в фоне.
func (s *ConsistencyScanner) Start(ctx context.Context) {
	if s.interval <= 0 {
		s.logger.Info("фоновая сверка отключена конфигурацией")
		return
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})

	go func() {
		defer close(s.doneCh)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.logger.Info("фоновая сверка запущена",
			slog.Duration("interval", s.interval),
		)

		for {
			select {
			case <-ticker.C:
				if _, err := s.RunOnce(ctx); err != nil && !errors.Is(err, ErrScanInProgress) {
					s.logger.Error("фоновая сверка завершилась с ошибкой",
						slog.String("error", err.Error()),
					)
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop останавливает фоновую сверку и дожидается завершения горутины.
func (s *ConsistencyScanner) Stop() {
	if s.stopCh == nil {
		return
	}
	close(s.stopCh)
	<-s.doneCh
	s.logger.Info("фоновая сверка остановлена")
}

// RunOnce выполняет один полный проход сверки.
// Параллельные запуски отклоняются с ErrScanInProgress.
func (s *ConsistencyScanner) RunOnce(ctx context.Context) (*ScanReport, error) {
	if !s.mu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer s.mu.Unlock()

	started := time.Now()
	report := &ScanReport{
		StartedAt: started.UTC(),
		Summary:   make(map[model.FindingKind]int),
		Findings:  make(map[model.FindingKind][]model.Finding),
	}

	// Одна проверка доступности на весь запуск. Если основное хранилище
	// лежит целиком, проверки существования пропускаются: иначе каждый
	// success-документ был бы ложно помечен как missing_file.
	report.PrimaryReachable = s.primary.Ping(ctx) == nil
	if !report.PrimaryReachable {
		s.logger.Warn("основное хранилище недоступно, проверки существования в нём пропущены")
	}

	// Собираем ключи всех записей по ходу обхода — для поиска orphaned_file.
	recordKeys := make(map[string]struct{})

	if err := s.scanRecords(ctx, report, recordKeys); err != nil {
		return nil, err
	}
	if err := s.scanFallbackFiles(ctx, report, recordKeys); err != nil {
		return nil, err
	}

	elapsed := time.Since(started)
	report.DurationMS = elapsed.Milliseconds()

	scanRunsTotal.Inc()
	scanDuration.Observe(elapsed.Seconds())
	for kind, count := range report.Summary {
		scanFindingsTotal.WithLabelValues(string(kind)).Add(float64(count))
	}

	s.logger.Info("сверка завершена",
		slog.Int("records", report.RecordsScanned),
		slog.Int("files", report.FilesScanned),
		slog.Int64("duration_ms", report.DurationMS),
		slog.Int("healthy", report.Summary[model.FindingHealthy]),
		slog.Int("missing_file", report.Summary[model.FindingMissingFile]),
		slog.Int("orphaned_record", report.Summary[model.FindingOrphanedRecord]),
		slog.Int("orphaned_file", report.Summary[model.FindingOrphanedFile]),
		slog.Int("checksum_mismatch", report.Summary[model.FindingChecksumMismatch]),
	)

	return report, nil
}

// scanRecords обходит все записи документов постранично и классифицирует каждую.
func (s *ConsistencyScanner) scanRecords(ctx context.Context, report *ScanReport, recordKeys map[string]struct{}) error {
	offset := 0
	for {
		page, err := s.docs.List(ctx, scanPageSize, offset)
		if err != nil {
			return fmt.Errorf("обход записей документов: %w", err)
		}
		if len(page) == 0 {
			return nil
		}

		for _, d := range page {
			report.RecordsScanned++
			if d.StorageKey != nil {
				recordKeys[*d.StorageKey] = struct{}{}
			}
			report.add(s.classify(ctx, d, report.PrimaryReachable))
		}

		offset += len(page)
	}
}

// classify определяет находку для одной записи документа.
func (s *ConsistencyScanner) classify(ctx context.Context, d *model.DocumentRecord, primaryUp bool) model.Finding {
	docID := d.ID

	// Запись без ключа — запись байтов никогда не завершалась.
	if d.StorageKey == nil || d.StorageStatus == model.StoragePending {
		return model.Finding{
			DocumentID: &docID,
			Kind:       model.FindingOrphanedRecord,
			Details:    fmt.Sprintf("запись %s в статусе %s без завершённой записи байтов", d.ID, d.StorageStatus),
		}
	}

	key := *d.StorageKey

	switch d.StorageStatus {
	case model.StorageSuccess:
		if !primaryUp {
			// Существование подтвердить нельзя — считаем согласованным,
			// следующий запуск перепроверит.
			return healthyFinding(docID, key)
		}
		if s.primary.HeadExists(ctx, key) {
			return healthyFinding(docID, key)
		}
		details := fmt.Sprintf("объект %s отсутствует в основном хранилище", key)
		if s.local.Exists(key) {
			details += " (копия найдена только в fallback)"
		}
		return model.Finding{
			DocumentID: &docID,
			Kind:       model.FindingMissingFile,
			Path:       &key,
			Details:    details,
		}

	case model.StorageFallback:
		if !s.local.Exists(key) {
			return model.Finding{
				DocumentID: &docID,
				Kind:       model.FindingMissingFile,
				Path:       &key,
				Details:    fmt.Sprintf("файл %s отсутствует в fallback-хранилище", key),
			}
		}
		if d.Checksum != nil {
			actual, err := s.local.ComputeChecksum(key)
			if err != nil {
				return model.Finding{
					DocumentID: &docID,
					Kind:       model.FindingChecksumMismatch,
					Path:       &key,
					Details:    fmt.Sprintf("не удалось вычислить контрольную сумму: %v", err),
				}
			}
			if actual != *d.Checksum {
				return model.Finding{
					DocumentID: &docID,
					Kind:       model.FindingChecksumMismatch,
					Path:       &key,
					Details:    fmt.Sprintf("контрольная сумма файла %s не совпадает с зафиксированной", key),
				}
			}
		}
		return healthyFinding(docID, key)

	default: // StorageFailure
		return model.Finding{
			DocumentID: &docID,
			Kind:       model.FindingMissingFile,
			Path:       &key,
			Details:    fmt.Sprintf("документ %s в статусе failure, байты недоступны", d.ID),
		}
	}
}

// scanFallbackFiles ищет файлы fallback-хранилища без владеющей записи.
func (s *ConsistencyScanner) scanFallbackFiles(ctx context.Context, report *ScanReport, recordKeys map[string]struct{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	keys, err := s.local.List()
	if err != nil {
		return fmt.Errorf("обход fallback-хранилища: %w", err)
	}

	for _, key := range keys {
		report.FilesScanned++
		if _, owned := recordKeys[key]; owned {
			continue
		}
		k := key
		report.add(model.Finding{
			Kind:    model.FindingOrphanedFile,
			Path:    &k,
			Details: fmt.Sprintf("файл %s не принадлежит ни одной записи документа", key),
		})
	}
	return nil
}

func healthyFinding(docID, key string) model.Finding {
	return model.Finding{
		DocumentID: &docID,
		Kind:       model.FindingHealthy,
		Path:       &key,
		Details:    "запись и байты согласованы",
	}
}
