package entity

import (
	"strings"
	"time"
)

// Registration — запись участника, ключ — нормализованный email
type Registration struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	FirstName        string     `gorm:"size:255;not null" json:"first_name"`
	LastName         string     `gorm:"size:255;not null" json:"last_name"`
	Email            string     `gorm:"size:255;not null;uniqueIndex" json:"email"`
	VerificationCode string     `gorm:"size:6;not null" json:"-"`
	IsVerified       bool       `gorm:"not null;default:false;index" json:"is_verified"`
	VerifiedAt       *time.Time `json:"verified_at,omitempty"`
	IPAddress        string     `gorm:"size:45" json:"-"`
	UserAgent        string     `gorm:"type:text" json:"-"`
	CreatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Registration) TableName() string {
	return "registrations"
}

// CodeIssuedAt возвращает момент выдачи текущего кода
func (r *Registration) CodeIssuedAt() time.Time {
	return r.UpdatedAt
}

// IsCodeExpired сообщает, что текущий код старше ttl на момент now.
// Код возрастом ровно ttl еще действителен.
func (r *Registration) IsCodeExpired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.CodeIssuedAt()) > ttl
}

// FullName склеивает имя и фамилию для отображения
func (r *Registration) FullName() string {
	return strings.TrimSpace(r.FirstName + " " + r.LastName)
}

// NormalizeEmail приводит email к каноничному виду ключа регистрации
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
