// handler.go — агрегатор обработчиков API docvault и таблица маршрутов.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// APIHandler — основной обработчик API docvault.
// Объединяет обработчики документов, операторских операций и health.
type APIHandler struct {
	documents *DocumentsHandler
	admin     *AdminHandler
	health    *HealthHandler
	logger    *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	documents *DocumentsHandler,
	admin *AdminHandler,
	health *HealthHandler,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		documents: documents,
		admin:     admin,
		health:    health,
		logger:    logger.With(slog.String("component", "api_handler")),
	}
}

// Routes монтирует все маршруты API на роутер.
func (h *APIHandler) Routes(r chi.Router) {
	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Get("/metrics", h.health.GetMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/documents", func(r chi.Router) {
			r.Post("/", h.documents.Upload)
			r.Get("/{documentID}", h.documents.Get)
			r.Get("/{documentID}/url", h.documents.DownloadURL)
			r.Put("/{documentID}/content", h.documents.Replace)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Get("/metrics", h.admin.Metrics)
			r.Get("/health", h.admin.Health)
			r.Get("/audit", h.admin.Audit)
			r.Post("/scan", h.admin.Scan)
			r.Post("/documents/{documentID}/retry", h.admin.RetryDocument)
			r.Post("/recovery/retry-all", h.admin.RetryAll)
			r.Get("/recovery/jobs/{jobID}", h.admin.RecoveryJob)
			r.Post("/applications/status", h.admin.ApplicationStatus)
		})
	})
}

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
