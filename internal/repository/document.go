package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lendora/docvault/internal/domain/model"
)

// documentColumns — список столбцов таблицы document_records для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const documentColumns = `id, application_id, file_name, storage_key, checksum,
	size_bytes, mime_type, storage_status, created_at, updated_at`

// DocumentRepository — интерфейс CRUD для таблицы document_records.
type DocumentRepository interface {
	// Create создаёт новую запись документа.
	Create(ctx context.Context, d *model.DocumentRecord) error
	// GetByID возвращает документ по UUID.
	GetByID(ctx context.Context, documentID string) (*model.DocumentRecord, error)
	// UpdateStorageState обновляет физическое размещение документа:
	// storage_key, checksum, size_bytes, mime_type, storage_status.
	UpdateStorageState(ctx context.Context, d *model.DocumentRecord) error
	// List возвращает страницу записей, упорядоченных по created_at.
	List(ctx context.Context, limit, offset int) ([]*model.DocumentRecord, error)
	// ListByStatus возвращает страницу записей с указанным статусом.
	ListByStatus(ctx context.Context, status model.StorageStatus, limit, offset int) ([]*model.DocumentRecord, error)
	// CountByStatus возвращает количество записей по каждому статусу.
	CountByStatus(ctx context.Context) (map[model.StorageStatus]int, error)
	// MissingCountByApplication возвращает количество документов без байтов
	// в основном хранилище (storage_status != success) по каждой заявке.
	MissingCountByApplication(ctx context.Context, applicationIDs []string) (map[string]int, error)
}

// documentRepo — реализация DocumentRepository.
type documentRepo struct {
	db DBTX
}

// NewDocumentRepository создаёт репозиторий записей документов.
func NewDocumentRepository(db DBTX) DocumentRepository {
	return &documentRepo{db: db}
}

func (r *documentRepo) Create(ctx context.Context, d *model.DocumentRecord) error {
	query := `
		INSERT INTO document_records (id, application_id, file_name, storage_key,
			checksum, size_bytes, mime_type, storage_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.ApplicationID, d.FileName, d.StorageKey,
		d.Checksum, d.SizeBytes, d.MimeType, d.StorageStatus,
	).Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: документ с таким ID уже зарегистрирован", ErrConflict)
		}
		return fmt.Errorf("ошибка создания записи документа: %w", err)
	}
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, documentID string) (*model.DocumentRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM document_records
		WHERE id = $1`

	d := &model.DocumentRecord{}
	err := r.db.QueryRow(ctx, query, documentID).Scan(
		&d.ID, &d.ApplicationID, &d.FileName, &d.StorageKey, &d.Checksum,
		&d.SizeBytes, &d.MimeType, &d.StorageStatus, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения документа: %w", err)
	}
	return d, nil
}

// UpdateStorageState записывает переход статуса в БД. Переход считается
// завершённым только после успешного выполнения этого запроса.
func (r *documentRepo) UpdateStorageState(ctx context.Context, d *model.DocumentRecord) error {
	query := `
		UPDATE document_records
		SET storage_key = $2, checksum = $3, size_bytes = $4,
			mime_type = $5, storage_status = $6
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		d.ID, d.StorageKey, d.Checksum, d.SizeBytes,
		d.MimeType, d.StorageStatus,
	).Scan(&d.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return ErrNotFound
		}
		return fmt.Errorf("ошибка обновления документа: %w", err)
	}
	return nil
}

func (r *documentRepo) List(ctx context.Context, limit, offset int) ([]*model.DocumentRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM document_records
		ORDER BY created_at
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка документов: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (r *documentRepo) ListByStatus(ctx context.Context, status model.StorageStatus, limit, offset int) ([]*model.DocumentRecord, error) {
	query := `
		SELECT ` + documentColumns + `
		FROM document_records
		WHERE storage_status = $1
		ORDER BY created_at
		LIMIT $2 OFFSET $3`

	rows, err := r.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения документов по статусу: %w", err)
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (r *documentRepo) CountByStatus(ctx context.Context) (map[model.StorageStatus]int, error) {
	query := `
		SELECT storage_status, COUNT(*)
		FROM document_records
		GROUP BY storage_status`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта документов по статусу: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.StorageStatus]int)
	for rows.Next() {
		var status model.StorageStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования подсчёта: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

// MissingCountByApplication считает документы, чьи байты не подтверждены
// в основном хранилище. Заявки без таких документов в результат не входят.
func (r *documentRepo) MissingCountByApplication(ctx context.Context, applicationIDs []string) (map[string]int, error) {
	query := `
		SELECT application_id, COUNT(*)
		FROM document_records
		WHERE application_id = ANY($1)
			AND storage_status != 'success'
		GROUP BY application_id`

	rows, err := r.db.Query(ctx, query, applicationIDs)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта отсутствующих документов: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var appID string
		var count int
		if err := rows.Scan(&appID, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования подсчёта: %w", err)
		}
		counts[appID] = count
	}
	return counts, rows.Err()
}

// scanDocuments сканирует строки результата в записи документов.
func scanDocuments(rows pgx.Rows) ([]*model.DocumentRecord, error) {
	var result []*model.DocumentRecord
	for rows.Next() {
		d := &model.DocumentRecord{}
		if err := rows.Scan(
			&d.ID, &d.ApplicationID, &d.FileName, &d.StorageKey, &d.Checksum,
			&d.SizeBytes, &d.MimeType, &d.StorageStatus, &d.CreatedAt, &d.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования документа: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}
