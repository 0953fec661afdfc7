package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lendora/docvault/internal/domain/model"
)

// HourlyCount — количество попыток загрузки за один час.
type HourlyCount struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}

// UploadAttemptRepository — append-only журнал попыток загрузки.
// Только вставка и чтение по временному окну; записи никогда не изменяются.
type UploadAttemptRepository interface {
	// Insert добавляет запись о попытке загрузки.
	Insert(ctx context.Context, documentID *string, status model.AttemptStatus) error
	// CountByStatusSince возвращает количество попыток по статусам
	// начиная с указанного момента.
	CountByStatusSince(ctx context.Context, since time.Time) (map[model.AttemptStatus]int, error)
	// CountSince возвращает общее количество попыток начиная с указанного момента.
	CountSince(ctx context.Context, since time.Time) (int, error)
	// HourlyActivity возвращает почасовые счётчики попыток начиная
	// с указанного момента.
	HourlyActivity(ctx context.Context, since time.Time) ([]HourlyCount, error)
	// LastAttemptAt возвращает время последней попытки (nil — попыток не было).
	LastAttemptAt(ctx context.Context) (*time.Time, error)
}

// uploadAttemptRepo — реализация UploadAttemptRepository.
type uploadAttemptRepo struct {
	db DBTX
}

// NewUploadAttemptRepository создаёт репозиторий журнала попыток.
func NewUploadAttemptRepository(db DBTX) UploadAttemptRepository {
	return &uploadAttemptRepo{db: db}
}

func (r *uploadAttemptRepo) Insert(ctx context.Context, documentID *string, status model.AttemptStatus) error {
	query := `
		INSERT INTO upload_attempts (document_id, status)
		VALUES ($1, $2)`

	if _, err := r.db.Exec(ctx, query, documentID, status); err != nil {
		return fmt.Errorf("ошибка записи попытки загрузки: %w", err)
	}
	return nil
}

func (r *uploadAttemptRepo) CountByStatusSince(ctx context.Context, since time.Time) (map[model.AttemptStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM upload_attempts
		WHERE created_at >= $1
		GROUP BY status`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка подсчёта попыток по статусу: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.AttemptStatus]int)
	for rows.Next() {
		var status model.AttemptStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования подсчёта: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func (r *uploadAttemptRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM upload_attempts WHERE created_at >= $1`

	var count int
	if err := r.db.QueryRow(ctx, query, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта попыток: %w", err)
	}
	return count, nil
}

func (r *uploadAttemptRepo) HourlyActivity(ctx context.Context, since time.Time) ([]HourlyCount, error) {
	query := `
		SELECT date_trunc('hour', created_at) AS hour, COUNT(*)
		FROM upload_attempts
		WHERE created_at >= $1
		GROUP BY hour
		ORDER BY hour`

	rows, err := r.db.Query(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения почасовой активности: %w", err)
	}
	defer rows.Close()

	var result []HourlyCount
	for rows.Next() {
		var hc HourlyCount
		if err := rows.Scan(&hc.Hour, &hc.Count); err != nil {
			return nil, fmt.Errorf("ошибка сканирования активности: %w", err)
		}
		result = append(result, hc)
	}
	return result, rows.Err()
}

func (r *uploadAttemptRepo) LastAttemptAt(ctx context.Context) (*time.Time, error) {
	query := `SELECT created_at FROM upload_attempts ORDER BY created_at DESC LIMIT 1`

	var t time.Time
	err := r.db.QueryRow(ctx, query).Scan(&t)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка получения времени последней попытки: %w", err)
	}
	return &t, nil
}
