package postgres

import (
	"context"
	"fmt"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
	"gorm.io/gorm"
)

// AttemptRepo пишет журнал попыток регистрации
type AttemptRepo struct {
	db *gorm.DB
}

// NewAttemptRepo создает новый репозиторий журнала попыток
func NewAttemptRepo(db *gorm.DB) *AttemptRepo {
	return &AttemptRepo{db: db}
}

var _ repository.AttemptRepository = (*AttemptRepo)(nil)

// Append добавляет запись. Записи никогда не обновляются и не удаляются.
func (r *AttemptRepo) Append(ctx context.Context, attempt *entity.RegistrationAttempt) error {
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return fmt.Errorf("failed to append registration attempt: %w", err)
	}
	return nil
}

// ListRecent возвращает последние попытки
func (r *AttemptRepo) ListRecent(ctx context.Context, limit int) ([]entity.RegistrationAttempt, error) {
	var attempts []entity.RegistrationAttempt
	err := r.db.WithContext(ctx).
		Order("attempted_at DESC, id DESC").
		Limit(limit).
		Find(&attempts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list registration attempts: %w", err)
	}
	return attempts, nil
}
