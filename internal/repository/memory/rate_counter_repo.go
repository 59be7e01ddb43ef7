package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

const rateCounterSweepEvery = 1024

type rateWindow struct {
	count int64
	reset time.Time
}

// RateCounterRepo считает запросы в фиксированных окнах в пределах одного экземпляра
type RateCounterRepo struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*rateWindow
	hits    int
}

func NewRateCounterRepo(now func() time.Time) *RateCounterRepo {
	if now == nil {
		now = time.Now
	}
	return &RateCounterRepo{now: now, windows: make(map[string]*rateWindow)}
}

var _ repository.RateCounterRepository = (*RateCounterRepo)(nil)

func (r *RateCounterRepo) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.hits++
	if r.hits%rateCounterSweepEvery == 0 {
		for k, w := range r.windows {
			if !now.Before(w.reset) {
				delete(r.windows, k)
			}
		}
	}

	w, ok := r.windows[key]
	if !ok || !now.Before(w.reset) {
		w = &rateWindow{reset: now.Add(window)}
		r.windows[key] = w
	}
	w.count++
	return w.count, w.reset.Sub(now), nil
}
