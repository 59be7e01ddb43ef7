package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

// RateCounterRepo реализует repository.RateCounterRepository через INCR + EXPIRE
type RateCounterRepo struct {
	client redis.UniversalClient
}

func NewRateCounterRepo(client redis.UniversalClient) (*RateCounterRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for RateCounterRepo")
	}
	return &RateCounterRepo{client: client}, nil
}

var _ repository.RateCounterRepository = (*RateCounterRepo)(nil)

func (r *RateCounterRepo) Hit(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	// Первый запрос в окне: устанавливаем TTL
	if count == 1 {
		if err := r.client.Expire(ctx, key, window).Err(); err != nil {
			return count, window, fmt.Errorf("failed to set rate counter ttl: %w", err)
		}
		return count, window, nil
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		// Ключ без TTL остался бы навсегда: восстанавливаем окно
		r.client.Expire(ctx, key, window)
		ttl = window
	}
	return count, ttl, nil
}
