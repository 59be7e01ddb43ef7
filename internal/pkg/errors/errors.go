package errors

import "errors"

// Общие ошибки приложения
var (
	// ErrNotFound используется, когда запись или ресурс не найдены.
	ErrNotFound = errors.New("record not found")

	// ErrValidation используется для ошибок валидации входных данных.
	ErrValidation = errors.New("validation failed")

	// ErrConflict используется для конфликтов состояния (например, повторная вставка того же email).
	ErrConflict = errors.New("resource state conflict")

	// ErrAlreadyVerified возвращается хранилищем, когда регистрация уже подтверждена
	// и любые изменения кода или повторное подтверждение запрещены.
	ErrAlreadyVerified = errors.New("registration already verified")

	// ErrCapacityExhausted возвращается хранилищем, когда количество подтвержденных
	// участников достигло лимита.
	ErrCapacityExhausted = errors.New("capacity exhausted")
)
