package dto

import "time"

// RegisterRequest — тело POST /api/register
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Honeypot  string `json:"honeypot"`
	// FormStartTime — момент открытия формы, миллисекунды Unix
	FormStartTime *int64 `json:"formStartTime"`
}

// VerifyRequest — тело POST /api/verify
type VerifyRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

// ResendRequest — тело POST /api/resend
type ResendRequest struct {
	Email string `json:"email"`
}

// MessageResponse — успешный ответ на мутирующие запросы
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ErrorResponse — единый формат ошибки
type ErrorResponse struct {
	Error      string            `json:"error"`
	ErrorType  string            `json:"error_type"`
	Fields     map[string]string `json:"fields,omitempty"`
	RetryAfter int               `json:"retry_after,omitempty"`
}

// AvailabilityResponse — ответ GET /api/availability
type AvailabilityResponse struct {
	Available       bool  `json:"available"`
	CurrentCount    int64 `json:"currentCount"`
	MaxParticipants int64 `json:"maxParticipants"`
}

// RecentRegistrationDTO — одна запись в списке последних регистраций
type RecentRegistrationDTO struct {
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Email      string     `json:"email"`
	VerifiedAt *time.Time `json:"verified_at"`
}

type DailyCountDTO struct {
	Date  string `json:"date"`
	Count int64  `json:"count"`
}

// RecentAttemptDTO — запись журнала попыток. Email отдается как был введен.
type RecentAttemptDTO struct {
	Action        string    `json:"action"`
	Email         string    `json:"email"`
	IPAddress     string    `json:"ip_address"`
	Success       bool      `json:"success"`
	FailureReason string    `json:"failure_reason,omitempty"`
	AttemptedAt   time.Time `json:"attempted_at"`
}

// StatsResponse — ответ GET /api/stats
type StatsResponse struct {
	Total           int64                   `json:"total"`
	Pending         int64                   `json:"pending"`
	MaxParticipants int64                   `json:"maxParticipants"`
	Remaining       int64                   `json:"remaining"`
	Recent          []RecentRegistrationDTO `json:"recent"`
	Daily           []DailyCountDTO         `json:"daily"`
	RecentAttempts  []RecentAttemptDTO      `json:"recent_attempts"`
}

// HealthResponse — ответ GET /health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}
