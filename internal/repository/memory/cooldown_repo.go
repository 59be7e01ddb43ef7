package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

// CooldownRepo — замена redis-хранилища кулдаунов в памяти процесса
type CooldownRepo struct {
	mu      sync.Mutex
	now     func() time.Time
	expires map[string]time.Time
}

func NewCooldownRepo(now func() time.Time) *CooldownRepo {
	if now == nil {
		now = time.Now
	}
	return &CooldownRepo{now: now, expires: make(map[string]time.Time)}
}

var _ repository.CooldownRepository = (*CooldownRepo)(nil)

func (r *CooldownRepo) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if until, ok := r.expires[key]; ok && now.Before(until) {
		return false, until.Sub(now), nil
	}
	r.expires[key] = now.Add(ttl)
	return true, 0, nil
}

func (r *CooldownRepo) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.expires, key)
	return nil
}
