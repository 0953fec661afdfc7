// admin.go — операторские endpoints docvault:
// метрики загрузок, сводное здоровье, аудит, сверка, восстановление,
// приоритеты заявок.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lendora/docvault/internal/api/errors"
	"github.com/lendora/docvault/internal/service"
)

// AdminHandler — обработчик операторских endpoints.
type AdminHandler struct {
	health   *service.HealthReporter
	scanner  *service.ConsistencyScanner
	recovery *service.RecoveryCoordinator
	logger   *slog.Logger
}

// NewAdminHandler создаёт операторский обработчик.
func NewAdminHandler(
	health *service.HealthReporter,
	scanner *service.ConsistencyScanner,
	recovery *service.RecoveryCoordinator,
	logger *slog.Logger,
) *AdminHandler {
	return &AdminHandler{
		health:   health,
		scanner:  scanner,
		recovery: recovery,
		logger:   logger.With(slog.String("component", "admin_handler")),
	}
}

// Metrics — GET /api/v1/admin/metrics.
// Операторские метрики загрузок за последние 24 часа.
func (h *AdminHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	report, err := h.health.Metrics(r.Context())
	if err != nil {
		h.logger.Error("формирование отчёта метрик не удалось", slog.String("error", err.Error()))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// Health — GET /api/v1/admin/health.
// Сводная оценка здоровья подсистемы документов.
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.health.Health(r.Context()))
}

// Audit — GET /api/v1/admin/audit.
// Сводка состояния всех записей документов.
func (h *AdminHandler) Audit(w http.ResponseWriter, r *http.Request) {
	report, err := h.health.Audit(r.Context())
	if err != nil {
		h.logger.Error("формирование аудита не удалось", slog.String("error", err.Error()))
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// scanResponse — отчёт сверки, дополненный статистикой раздачи за 24 часа.
type scanResponse struct {
	Scan    *service.ScanReport   `json:"scan"`
	Serving *service.ServingStats `json:"serving_24h,omitempty"`
}

// Scan — POST /api/v1/admin/scan.
// Запускает расширенную сверку и возвращает отчёт с находками.
func (h *AdminHandler) Scan(w http.ResponseWriter, r *http.Request) {
	report, err := h.scanner.RunOnce(r.Context())
	if err != nil {
		if errors.Is(err, service.ErrScanInProgress) {
			apierrors.ScanInProgress(w, err.Error())
			return
		}
		h.logger.Error("сверка не удалась", slog.String("error", err.Error()))
		writeServiceError(w, err)
		return
	}

	// Статистика раздачи не критична для отчёта сверки: её отказ
	// не отменяет уже выполненный проход.
	serving, err := h.health.ServingStats(r.Context())
	if err != nil {
		h.logger.Warn("статистика раздачи недоступна", slog.String("error", err.Error()))
		serving = nil
	}

	writeJSON(w, http.StatusOK, scanResponse{Scan: report, Serving: serving})
}

// RetryDocument — POST /api/v1/admin/documents/{documentID}/retry.
// Мигрирует один fallback-документ в основное хранилище,
// возвращает ключ размещения.
func (h *AdminHandler) RetryDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	doc, err := h.recovery.MigrateOne(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := map[string]any{
		"status":      "migrated",
		"document_id": doc.ID,
	}
	if doc.StorageKey != nil {
		resp["storage_key"] = *doc.StorageKey
	}
	writeJSON(w, http.StatusOK, resp)
}

// RetryAll — POST /api/v1/admin/recovery/retry-all.
// Запускает фоновую миграцию всех fallback-документов, возвращает 202
// с заданием для отслеживания.
func (h *AdminHandler) RetryAll(w http.ResponseWriter, r *http.Request) {
	job := h.recovery.MigrateAll(r.Context())
	writeJSON(w, http.StatusAccepted, job)
}

// RecoveryJob — GET /api/v1/admin/recovery/jobs/{jobID}.
// Текущее состояние задания массовой миграции.
func (h *AdminHandler) RecoveryJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	job, err := h.recovery.Job(jobID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// applicationStatusRequest — тело запроса приоритетов заявок.
type applicationStatusRequest struct {
	ApplicationIDs []string `json:"application_ids"`
}

// ApplicationStatus — POST /api/v1/admin/applications/status.
// Массовый расчёт приоритетов заявок по отсутствующим документам.
func (h *AdminHandler) ApplicationStatus(w http.ResponseWriter, r *http.Request) {
	var req applicationStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "некорректное тело запроса")
		return
	}

	statuses, err := h.health.ApplicationStatus(r.Context(), req.ApplicationIDs)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"applications": statuses})
}
