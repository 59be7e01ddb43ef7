package repository

import (
	"context"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
)

// AttemptRepository сохраняет журнал попыток регистрации
type AttemptRepository interface {
	Append(ctx context.Context, attempt *entity.RegistrationAttempt) error
	// ListRecent возвращает последние попытки, новые первыми
	ListRecent(ctx context.Context, limit int) ([]entity.RegistrationAttempt, error)
}
