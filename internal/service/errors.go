package service

import "errors"

// Ошибки сервисного слоя. Транслируются в HTTP-ответы на уровне handlers.
var (
	// ErrNotFound — запрошенный ресурс не существует.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrValidation — запрос нарушает бизнес-правила или формат данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrChecksumMismatch — содержимое не совпадает с зафиксированной
	// контрольной суммой.
	ErrChecksumMismatch = errors.New("контрольная сумма не совпадает")
	// ErrStoreUnavailable — основное хранилище недоступно и fallback
	// невозможен или неприменим для операции.
	ErrStoreUnavailable = errors.New("хранилище недоступно")
)
