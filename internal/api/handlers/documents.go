// documents.go — обработчики операций с документами:
// загрузка, метаданные, подписанный URL, замена содержимого.
package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/lendora/docvault/internal/api/errors"
	"github.com/lendora/docvault/internal/domain/model"
	"github.com/lendora/docvault/internal/service"
)

// DocumentsHandler — обработчик операций с документами.
type DocumentsHandler struct {
	uploads     *service.UploadService
	recovery    *service.RecoveryCoordinator
	maxFileSize int64
	logger      *slog.Logger
}

// NewDocumentsHandler создаёт обработчик документов.
func NewDocumentsHandler(
	uploads *service.UploadService,
	recovery *service.RecoveryCoordinator,
	maxFileSize int64,
	logger *slog.Logger,
) *DocumentsHandler {
	return &DocumentsHandler{
		uploads:     uploads,
		recovery:    recovery,
		maxFileSize: maxFileSize,
		logger:      logger.With(slog.String("component", "documents_handler")),
	}
}

// documentResponse — представление записи документа в API.
type documentResponse struct {
	ID            string  `json:"id"`
	ApplicationID string  `json:"application_id"`
	FileName      string  `json:"file_name"`
	StorageKey    *string `json:"storage_key,omitempty"`
	Checksum      *string `json:"checksum,omitempty"`
	SizeBytes     int64   `json:"size_bytes"`
	MimeType      string  `json:"mime_type"`
	StorageStatus string  `json:"storage_status"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

func toDocumentResponse(d *model.DocumentRecord) documentResponse {
	return documentResponse{
		ID:            d.ID,
		ApplicationID: d.ApplicationID,
		FileName:      d.FileName,
		StorageKey:    d.StorageKey,
		Checksum:      d.Checksum,
		SizeBytes:     d.SizeBytes,
		MimeType:      d.MimeType,
		StorageStatus: string(d.StorageStatus),
		CreatedAt:     d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Upload — POST /api/v1/documents.
// Multipart form: application_id (поле) + file (файл).
// Возвращает 201 с финальной записью документа. Статус fallback —
// тоже успешный приём: байты сохранены, миграция произойдёт позже.
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1024)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		apierrors.ValidationError(w, "некорректная multipart-форма или превышен размер файла")
		return
	}

	applicationID := r.FormValue("application_id")
	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "поле file обязательно")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierrors.InternalError(w, "не удалось прочитать содержимое файла")
		return
	}

	doc, err := h.uploads.Upload(r.Context(), applicationID, header.Filename,
		header.Header.Get("Content-Type"), data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toDocumentResponse(doc))
}

// Get — GET /api/v1/documents/{documentID}.
func (h *DocumentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	doc, err := h.uploads.Get(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// DownloadURL — GET /api/v1/documents/{documentID}/url.
// Возвращает подписанный URL на скачивание из основного хранилища.
func (h *DocumentsHandler) DownloadURL(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")

	url, err := h.uploads.DownloadURL(r.Context(), documentID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Replace — PUT /api/v1/documents/{documentID}/content.
// Заменяет содержимое документа новыми байтами с сохранением идентичности.
func (h *DocumentsHandler) Replace(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "documentID")
	r.Body = http.MaxBytesReader(w, r.Body, h.maxFileSize+1024)

	if err := r.ParseMultipartForm(h.maxFileSize); err != nil {
		apierrors.ValidationError(w, "некорректная multipart-форма или превышен размер файла")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "поле file обязательно")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		apierrors.InternalError(w, "не удалось прочитать содержимое файла")
		return
	}

	doc, err := h.recovery.Replace(r.Context(), documentID,
		header.Header.Get("Content-Type"), data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toDocumentResponse(doc))
}

// writeServiceError транслирует ошибку сервисного слоя в HTTP-ответ.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrChecksumMismatch):
		apierrors.ChecksumMismatch(w, err.Error())
	case errors.Is(err, service.ErrStoreUnavailable):
		apierrors.StoreUnavailable(w, err.Error())
	case errors.Is(err, service.ErrScanInProgress):
		apierrors.ScanInProgress(w, err.Error())
	default:
		apierrors.InternalError(w, "внутренняя ошибка сервиса")
	}
}
