// Пакет model — доменные модели docvault: записи документов,
// журнал попыток загрузки, результаты сверки и задания восстановления.
package model

import "time"

// StorageStatus — статус физического размещения документа.
type StorageStatus string

const (
	// StoragePending — запись создана, запись байтов ещё не завершена.
	StoragePending StorageStatus = "pending"
	// StorageSuccess — байты находятся в основном хранилище.
	StorageSuccess StorageStatus = "success"
	// StorageFallback — байты находятся в локальном fallback-хранилище.
	StorageFallback StorageStatus = "fallback"
	// StorageFailure — байты недоступны, документ требует повторной загрузки.
	StorageFailure StorageStatus = "failure"
)

// Valid проверяет допустимость значения статуса.
func (s StorageStatus) Valid() bool {
	switch s {
	case StoragePending, StorageSuccess, StorageFallback, StorageFailure:
		return true
	}
	return false
}

// DocumentRecord — запись документа в таблице document_records.
// Единственный источник истины о том, что ДОЛЖНО существовать физически.
type DocumentRecord struct {
	// ID — UUID документа
	ID string
	// ApplicationID — UUID кредитной заявки, которой принадлежит документ
	ApplicationID string
	// FileName — оригинальное имя файла
	FileName string
	// StorageKey — относительный ключ в хранилище (nil — запись без байтов)
	StorageKey *string
	// Checksum — SHA-256 содержимого, зафиксированный при первой записи
	Checksum *string
	// SizeBytes — размер содержимого в байтах
	SizeBytes int64
	// MimeType — MIME-тип содержимого
	MimeType string
	// StorageStatus — текущий статус размещения
	StorageStatus StorageStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// AttemptStatus — исход попытки записи документа.
type AttemptStatus string

const (
	AttemptSuccess  AttemptStatus = "success"
	AttemptFallback AttemptStatus = "fallback"
	AttemptFailure  AttemptStatus = "failure"
)

// UploadAttempt — запись append-only журнала попыток загрузки.
// Используется только для метрик, никогда не изменяется после вставки.
type UploadAttempt struct {
	ID         int64
	DocumentID *string
	Status     AttemptStatus
	CreatedAt  time.Time
}

// FindingKind — классификация результата сверки для одного документа/файла.
type FindingKind string

const (
	// FindingHealthy — запись и физические байты согласованы.
	FindingHealthy FindingKind = "healthy"
	// FindingMissingFile — запись указывает на файл, которого нет ни в одном хранилище.
	FindingMissingFile FindingKind = "missing_file"
	// FindingOrphanedRecord — запись без storage_key: запись байтов никогда не завершалась.
	FindingOrphanedRecord FindingKind = "orphaned_record"
	// FindingOrphanedFile — файл в fallback-директории без владеющей записи.
	FindingOrphanedFile FindingKind = "orphaned_file"
	// FindingChecksumMismatch — содержимое не совпадает с зафиксированным SHA-256.
	FindingChecksumMismatch FindingKind = "checksum_mismatch"
)

// Finding — результат сверки. Эфемерный: пересчитывается при каждом
// сканировании и никогда не сохраняется как истина между запусками.
type Finding struct {
	// DocumentID — UUID документа (nil для orphaned_file)
	DocumentID *string `json:"document_id,omitempty"`
	// Kind — классификация
	Kind FindingKind `json:"kind"`
	// Path — относительный ключ файла (для физических находок)
	Path *string `json:"path,omitempty"`
	// Details — человекочитаемое описание
	Details string `json:"details"`
}

// JobStatus — состояние фонового задания восстановления.
type JobStatus string

const (
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
)

// RecoveryJob — задание массовой миграции fallback-документов.
// Хранится в памяти: перезапуск теряет историю, но не корректность —
// миграция идемпотентна, а отставание переоткрывается сканером.
type RecoveryJob struct {
	ID          string     `json:"id"`
	Status      JobStatus  `json:"status"`
	Attempted   int        `json:"attempted"`
	Succeeded   int        `json:"succeeded"`
	Failed      int        `json:"failed"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// PriorityTier — приоритет заявки по количеству отсутствующих документов.
type PriorityTier string

const (
	TierHigh   PriorityTier = "high"
	TierMedium PriorityTier = "medium"
	TierLow    PriorityTier = "low"
)

// TierFor возвращает приоритет для количества отсутствующих документов:
// high при missing > 5, medium при missing > 2, иначе low.
func TierFor(missing int) PriorityTier {
	switch {
	case missing > 5:
		return TierHigh
	case missing > 2:
		return TierMedium
	default:
		return TierLow
	}
}

// ApplicationDocStatus — сводка по документам одной кредитной заявки.
type ApplicationDocStatus struct {
	ApplicationID string       `json:"application_id"`
	MissingCount  int          `json:"missing_count"`
	Tier          PriorityTier `json:"priority"`
}
