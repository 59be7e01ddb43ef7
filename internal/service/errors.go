package service

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/yourusername/eventreg-api/internal/pkg/errors"
)

// Ошибки процесса регистрации. Обработчики отображают их в стабильный error_type.
var (
	ErrBotSignal             = errors.New("bot_signal")
	ErrDuplicateRegistration = errors.New("duplicate_registration")
	ErrCodeMismatch          = errors.New("code_mismatch")
	ErrCodeExpired           = errors.New("code_expired")
	ErrNotifierFailure       = errors.New("notifier_failure")
	ErrStoreFailure          = errors.New("store_failure")
	ErrResendCooldown        = errors.New("resend_cooldown")
)

// ErrorKind классифицирует отклоненную операцию
type ErrorKind string

const (
	KindValidation        ErrorKind = "validation_error"
	KindBotSignal         ErrorKind = "bot_signal"
	KindCapacityExhausted ErrorKind = "capacity_exhausted"
	KindDuplicate         ErrorKind = "duplicate_registration"
	KindNotFound          ErrorKind = "not_found"
	KindCodeMismatch      ErrorKind = "code_mismatch"
	KindCodeExpired       ErrorKind = "code_expired"
	KindResendCooldown    ErrorKind = "resend_cooldown"
	KindNotifierFailure   ErrorKind = "notifier_failure"
	KindStoreFailure      ErrorKind = "store_failure"
)

// Причины для журнала попыток
const (
	ReasonHoneypot          = "honeypot triggered"
	ReasonTooFast           = "submitted too fast"
	ReasonCapacity          = "capacity exhausted"
	ReasonAlreadyRegistered = "already registered"
	ReasonAlreadyVerified   = "already verified"
	ReasonNotFound          = "registration not found"
	ReasonCodeMismatch      = "incorrect code"
	ReasonCodeExpired       = "code expired"
	ReasonResendCooldown    = "resend cooldown"
)

// RegistrationError — единственный тип ошибки отказа RegistrationService.
// Err оборачивает один из sentinel выше или apperrors.ErrValidation,
// ErrNotFound, ErrCapacityExhausted, поэтому работает и errors.Is, и Kind.
type RegistrationError struct {
	Kind       ErrorKind
	Reason     string
	Fields     ValidationErrors
	RetryAfter time.Duration
	Err        error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Internal сообщает, что причину нельзя показывать клиенту
func (e *RegistrationError) Internal() bool {
	return e.Kind == KindStoreFailure || e.Kind == KindNotifierFailure
}

// KindOf возвращает вид ошибки, для чужих ошибок KindStoreFailure
func KindOf(err error) ErrorKind {
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		return regErr.Kind
	}
	return KindStoreFailure
}

func rejection(kind ErrorKind, reason string, sentinel error) *RegistrationError {
	return &RegistrationError{Kind: kind, Reason: reason, Err: sentinel}
}

// botRejection маскирует срабатывание защиты от ботов под ошибку валидации.
// Настоящая причина остается только в Reason и попадает в журнал попыток.
func botRejection(reason string, fields ValidationErrors) *RegistrationError {
	if len(fields) == 0 {
		fields = ValidationErrors{FieldFirstName: decoyFieldMessage}
	}
	return &RegistrationError{Kind: KindBotSignal, Reason: reason, Fields: fields, Err: ErrBotSignal}
}

func validationFailure(fields ValidationErrors) *RegistrationError {
	return &RegistrationError{
		Kind:   KindValidation,
		Reason: "invalid fields: " + fields.FieldList(),
		Fields: fields,
		Err:    apperrors.ErrValidation,
	}
}

func storeFailure(cause error) *RegistrationError {
	return &RegistrationError{
		Kind:   KindStoreFailure,
		Reason: "store failure: " + cause.Error(),
		Err:    fmt.Errorf("%w: %v", ErrStoreFailure, cause),
	}
}

func notifierFailure(cause error) *RegistrationError {
	return &RegistrationError{
		Kind:   KindNotifierFailure,
		Reason: "notifier failure: " + cause.Error(),
		Err:    fmt.Errorf("%w: %v", ErrNotifierFailure, cause),
	}
}
