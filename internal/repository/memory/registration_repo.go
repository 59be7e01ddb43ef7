// Package memory содержит реализации репозиториев в памяти процесса.
// Они используются драйвером "memory" для локального запуска и в тестах сервисов.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
	apperrors "github.com/yourusername/eventreg-api/internal/pkg/errors"
)

// RegistrationRepo хранит регистрации в map под одним мьютексом.
// Мьютекс играет роль блокировки вместимости из postgres-реализации.
type RegistrationRepo struct {
	mu     sync.Mutex
	nextID uint
	byKey  map[string]*entity.Registration
}

func NewRegistrationRepo() *RegistrationRepo {
	return &RegistrationRepo{byKey: make(map[string]*entity.Registration)}
}

var _ repository.RegistrationRepository = (*RegistrationRepo)(nil)

func (r *RegistrationRepo) GetByEmail(ctx context.Context, email string) (*entity.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.byKey[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *reg
	return &cp, nil
}

func (r *RegistrationRepo) Upsert(ctx context.Context, reg *entity.Registration, maxParticipants int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.verifiedLocked() >= maxParticipants {
		return false, apperrors.ErrCapacityExhausted
	}

	existing, ok := r.byKey[reg.Email]
	if !ok {
		r.nextID++
		stored := *reg
		stored.ID = r.nextID
		stored.IsVerified = false
		stored.VerifiedAt = nil
		r.byKey[stored.Email] = &stored
		*reg = stored
		return true, nil
	}
	if existing.IsVerified {
		return false, apperrors.ErrAlreadyVerified
	}

	existing.VerificationCode = reg.VerificationCode
	existing.UpdatedAt = reg.UpdatedAt
	*reg = *existing
	return false, nil
}

func (r *RegistrationRepo) RotateCode(ctx context.Context, email, code string, issuedAt time.Time, maxParticipants int64) (*entity.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.verifiedLocked() >= maxParticipants {
		return nil, apperrors.ErrCapacityExhausted
	}
	existing, ok := r.byKey[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if existing.IsVerified {
		return nil, apperrors.ErrAlreadyVerified
	}

	existing.VerificationCode = code
	existing.UpdatedAt = issuedAt
	cp := *existing
	return &cp, nil
}

func (r *RegistrationRepo) MarkVerified(ctx context.Context, email string, verifiedAt time.Time, maxParticipants int64, check repository.VerifyCheck) (*entity.Registration, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.byKey[email]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	if existing.IsVerified {
		return nil, apperrors.ErrAlreadyVerified
	}
	if check != nil {
		cp := *existing
		if err := check(&cp); err != nil {
			return nil, err
		}
	}
	if r.verifiedLocked() >= maxParticipants {
		return nil, apperrors.ErrCapacityExhausted
	}

	at := verifiedAt
	existing.IsVerified = true
	existing.VerifiedAt = &at
	cp := *existing
	return &cp, nil
}

func (r *RegistrationRepo) CountVerified(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verifiedLocked(), nil
}

func (r *RegistrationRepo) CountPending(ctx context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.byKey)) - r.verifiedLocked(), nil
}

func (r *RegistrationRepo) ListRecentVerified(ctx context.Context, limit int) ([]entity.Registration, error) {
	regs := r.verifiedSorted()
	for i, j := 0, len(regs)-1; i < j; i, j = i+1, j-1 {
		regs[i], regs[j] = regs[j], regs[i]
	}
	if limit > 0 && len(regs) > limit {
		regs = regs[:limit]
	}
	return regs, nil
}

func (r *RegistrationRepo) ListVerified(ctx context.Context) ([]entity.Registration, error) {
	return r.verifiedSorted(), nil
}

func (r *RegistrationRepo) DailyVerified(ctx context.Context, days int) ([]entity.DailyCount, error) {
	counts := make(map[string]int64)
	for _, reg := range r.verifiedSorted() {
		counts[reg.VerifiedAt.Format("2006-01-02")]++
	}

	out := make([]entity.DailyCount, 0, len(counts))
	for day, n := range counts {
		out = append(out, entity.DailyCount{Day: day, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day > out[j].Day })
	if days > 0 && len(out) > days {
		out = out[:days]
	}
	return out, nil
}

func (r *RegistrationRepo) verifiedLocked() int64 {
	var n int64
	for _, reg := range r.byKey {
		if reg.IsVerified {
			n++
		}
	}
	return n
}

// verifiedSorted возвращает копии по времени подтверждения, старые первыми
func (r *RegistrationRepo) verifiedSorted() []entity.Registration {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := make([]entity.Registration, 0, len(r.byKey))
	for _, reg := range r.byKey {
		if reg.IsVerified {
			regs = append(regs, *reg)
		}
	}
	sort.Slice(regs, func(i, j int) bool {
		if regs[i].VerifiedAt.Equal(*regs[j].VerifiedAt) {
			return regs[i].ID < regs[j].ID
		}
		return regs[i].VerifiedAt.Before(*regs[j].VerifiedAt)
	})
	return regs
}
