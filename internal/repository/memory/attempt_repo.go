package memory

import (
	"context"
	"sync"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

// AttemptRepo — журнал попыток только на добавление
type AttemptRepo struct {
	mu       sync.Mutex
	attempts []entity.RegistrationAttempt
}

func NewAttemptRepo() *AttemptRepo {
	return &AttemptRepo{}
}

var _ repository.AttemptRepository = (*AttemptRepo)(nil)

func (r *AttemptRepo) Append(ctx context.Context, attempt *entity.RegistrationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	attempt.ID = uint(len(r.attempts) + 1)
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *AttemptRepo) ListRecent(ctx context.Context, limit int) ([]entity.RegistrationAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entity.RegistrationAttempt, 0, len(r.attempts))
	for i := len(r.attempts) - 1; i >= 0; i-- {
		out = append(out, r.attempts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// All возвращает все попытки в порядке добавления
func (r *AttemptRepo) All() []entity.RegistrationAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]entity.RegistrationAttempt, len(r.attempts))
	copy(out, r.attempts)
	return out
}
