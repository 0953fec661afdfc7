// health.go — сводное здоровье хранилища документов и операторские отчёты.
// Оценка считается по фиксированной шкале: 40 баллов БД, 40 баллов основное
// хранилище, 20 баллов недавняя активность. Отказ одной проверки никогда
// не скрывает результаты остальных.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/repository"
	"github.com/lendora/docvault/internal/storage/objectstore"
)

// Весовые коэффициенты и пороги оценки здоровья.
const (
	scoreWeightDB       = 40
	scoreWeightStore    = 40
	scoreWeightActivity = 20

	healthyThreshold  = 80
	degradedThreshold = 60
)

// activityWindow — окно «недавней активности» для компоненты оценки.
const activityWindow = 24 * time.Hour

// metricsFallbackLimit — лимит fallback-документов в отчёте метрик.
const metricsFallbackLimit = 50

// DBPinger — проверка доступности БД.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// HealthReport — сводная оценка здоровья подсистемы документов.
type HealthReport struct {
	Score     int       `json:"score"`
	Status    string    `json:"status"`
	Database  bool      `json:"database"`
	Store     bool      `json:"store"`
	Activity  bool      `json:"activity"`
	CheckedAt time.Time `json:"checked_at"`
}

// MetricsReport — операторские метрики загрузок за последние 24 часа.
type MetricsReport struct {
	WindowHours     int                            `json:"window_hours"`
	TotalAttempts   int                            `json:"total_attempts"`
	AttemptsByState map[model.AttemptStatus]int    `json:"attempts_by_state"`
	SuccessRate     float64                        `json:"success_rate"`
	DocumentsByState map[model.StorageStatus]int   `json:"documents_by_state"`
	HourlyActivity  []repository.HourlyCount       `json:"hourly_activity"`
	FallbackDocs    []*model.DocumentRecord        `json:"fallback_documents"`
}

// ServingStats — разбивка попыток раздачи/загрузки за скользящее окно.
type ServingStats struct {
	WindowHours     int                         `json:"window_hours"`
	TotalAttempts   int                         `json:"total_attempts"`
	AttemptsByState map[model.AttemptStatus]int `json:"attempts_by_state"`
	SuccessRate     float64                     `json:"success_rate"`
}

// AuditReport — сводка состояния всех записей документов.
type AuditReport struct {
	TotalDocuments   int                          `json:"total_documents"`
	DocumentsByState map[model.StorageStatus]int  `json:"documents_by_state"`
	LastUploadAt     *time.Time                   `json:"last_upload_at,omitempty"`
	GeneratedAt      time.Time                    `json:"generated_at"`
}

// HealthReporter — расчёт здоровья и формирование отчётов.
type HealthReporter struct {
	docs     repository.DocumentRepository
	attempts repository.UploadAttemptRepository
	primary  objectstore.Store
	db       DBPinger
	logger   *slog.Logger
}

// NewHealthReporter создаёт репортёр здоровья.
func NewHealthReporter(
	docs repository.DocumentRepository,
	attempts repository.UploadAttemptRepository,
	primary objectstore.Store,
	db DBPinger,
	logger *slog.Logger,
) *HealthReporter {
	return &HealthReporter{
		docs:     docs,
		attempts: attempts,
		primary:  primary,
		db:       db,
		logger:   logger.With(slog.String("component", "health")),
	}
}

// ComputeScore считает оценку и статус по трём компонентам.
// Детерминированная чистая функция: одинаковые входы — одинаковый результат.
func ComputeScore(dbOK, storeOK, activityOK bool) (int, string) {
	score := 0
	if dbOK {
		score += scoreWeightDB
	}
	if storeOK {
		score += scoreWeightStore
	}
	if activityOK {
		score += scoreWeightActivity
	}

	switch {
	case score >= healthyThreshold:
		return score, "healthy"
	case score >= degradedThreshold:
		return score, "degraded"
	default:
		return score, "unhealthy"
	}
}

// Health выполняет три изолированные проверки и возвращает сводную оценку.
// Ошибка одной проверки деградирует оценку, но не прерывает остальные.
func (h *HealthReporter) Health(ctx context.Context) *HealthReport {
	report := &HealthReport{CheckedAt: time.Now().UTC()}

	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("проверка БД не прошла", slog.String("error", err.Error()))
	} else {
		report.Database = true
	}

	if err := h.primary.Ping(ctx); err != nil {
		h.logger.Warn("проверка основного хранилища не прошла", slog.String("error", err.Error()))
	} else {
		report.Store = true
	}

	count, err := h.attempts.CountSince(ctx, time.Now().Add(-activityWindow))
	if err != nil {
		h.logger.Warn("проверка активности не прошла", slog.String("error", err.Error()))
	} else {
		report.Activity = count > 0
	}

	report.Score, report.Status = ComputeScore(report.Database, report.Store, report.Activity)
	return report
}

// ServingStats считает разбивку попыток за последние 24 часа.
func (h *HealthReporter) ServingStats(ctx context.Context) (*ServingStats, error) {
	since := time.Now().Add(-activityWindow)

	byState, err := h.attempts.CountByStatusSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("подсчёт попыток: %w", err)
	}

	total := 0
	for _, c := range byState {
		total += c
	}
	successRate := 0.0
	if total > 0 {
		successRate = float64(byState[model.AttemptSuccess]) / float64(total)
	}

	return &ServingStats{
		WindowHours:     int(activityWindow.Hours()),
		TotalAttempts:   total,
		AttemptsByState: byState,
		SuccessRate:     successRate,
	}, nil
}

// Metrics формирует операторский отчёт по загрузкам за 24 часа.
func (h *HealthReporter) Metrics(ctx context.Context) (*MetricsReport, error) {
	since := time.Now().Add(-activityWindow)

	serving, err := h.ServingStats(ctx)
	if err != nil {
		return nil, err
	}

	docsByState, err := h.docs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт документов: %w", err)
	}

	hourly, err := h.attempts.HourlyActivity(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("почасовая активность: %w", err)
	}

	fallbackDocs, err := h.docs.ListByStatus(ctx, model.StorageFallback, metricsFallbackLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("выборка fallback-документов: %w", err)
	}

	return &MetricsReport{
		WindowHours:      serving.WindowHours,
		TotalAttempts:    serving.TotalAttempts,
		AttemptsByState:  serving.AttemptsByState,
		SuccessRate:      serving.SuccessRate,
		DocumentsByState: docsByState,
		HourlyActivity:   hourly,
		FallbackDocs:     fallbackDocs,
	}, nil
}

// Audit формирует сводку по всем записям документов.
func (h *HealthReporter) Audit(ctx context.Context) (*AuditReport, error) {
	docsByState, err := h.docs.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("подсчёт документов: %w", err)
	}

	total := 0
	for _, c := range docsByState {
		total += c
	}

	lastUpload, err := h.attempts.LastAttemptAt(ctx)
	if err != nil {
		return nil, fmt.Errorf("время последней загрузки: %w", err)
	}

	return &AuditReport{
		TotalDocuments:   total,
		DocumentsByState: docsByState,
		LastUploadAt:     lastUpload,
		GeneratedAt:      time.Now().UTC(),
	}, nil
}

// ApplicationStatus возвращает приоритеты заявок по количеству
// отсутствующих документов. Заявка без отсутствующих документов
// получает low с нулевым счётчиком.
func (h *HealthReporter) ApplicationStatus(ctx context.Context, applicationIDs []string) ([]model.ApplicationDocStatus, error) {
	if len(applicationIDs) == 0 {
		return nil, fmt.Errorf("%w: список заявок пуст", ErrValidation)
	}

	missing, err := h.docs.MissingCountByApplication(ctx, applicationIDs)
	if err != nil {
		return nil, fmt.Errorf("подсчёт отсутствующих документов: %w", err)
	}

	result := make([]model.ApplicationDocStatus, 0, len(applicationIDs))
	for _, appID := range applicationIDs {
		count := missing[appID]
		result = append(result, model.ApplicationDocStatus{
			ApplicationID: appID,
			MissingCount:  count,
			Tier:          model.TierFor(count),
		})
	}
	return result, nil
}
