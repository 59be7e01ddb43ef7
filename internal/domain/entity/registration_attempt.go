package entity

import "time"

// AttemptAction — операция, породившая запись журнала
type AttemptAction string

const (
	AttemptActionRegister AttemptAction = "register"
	AttemptActionVerify   AttemptAction = "verify"
	AttemptActionResend   AttemptAction = "resend"
)

// RegistrationAttempt — запись журнала попыток для отслеживания злоупотреблений.
// Email хранится как был введен и может быть пустым или некорректным.
type RegistrationAttempt struct {
	ID            uint          `gorm:"primaryKey" json:"id"`
	Email         string        `gorm:"type:text" json:"email"`
	IPAddress     string        `gorm:"size:45;index" json:"ip_address"`
	Action        AttemptAction `gorm:"size:16;not null;default:register" json:"action"`
	Success       bool          `gorm:"not null;default:false" json:"success"`
	FailureReason *string       `gorm:"type:text" json:"failure_reason,omitempty"`
	AttemptedAt   time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"attempted_at"`
}

func (RegistrationAttempt) TableName() string {
	return "registration_attempts"
}
