package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

// CooldownRepo реализует repository.CooldownRepository поверх SET NX EX
type CooldownRepo struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewCooldownRepo создает новый репозиторий кулдаунов и возвращает ошибку при проблемах
func NewCooldownRepo(client redis.UniversalClient, keyPrefix string) (*CooldownRepo, error) {
	if client == nil {
		return nil, fmt.Errorf("Redis client cannot be nil for CooldownRepo")
	}
	if keyPrefix == "" {
		keyPrefix = "reg:resend"
	}
	return &CooldownRepo{client: client, keyPrefix: keyPrefix}, nil
}

var _ repository.CooldownRepository = (*CooldownRepo)(nil)

// Acquire атомарно ставит ключ с TTL. Если ключ уже есть — возвращает оставшееся время.
func (r *CooldownRepo) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error) {
	fullKey := fmt.Sprintf("%s:%s", r.keyPrefix, key)

	ok, err := r.client.SetNX(ctx, fullKey, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to set cooldown key: %w", err)
	}
	if ok {
		return true, 0, nil
	}

	remaining, err := r.client.TTL(ctx, fullKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read cooldown ttl: %w", err)
	}
	// -1 (нет TTL) и -2 (ключ уже исчез) считаем полным окном
	if remaining < 0 {
		remaining = ttl
	}
	return false, remaining, nil
}

// Release снимает кулдаун досрочно
func (r *CooldownRepo) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, fmt.Sprintf("%s:%s", r.keyPrefix, key)).Err(); err != nil {
		return fmt.Errorf("failed to release cooldown key: %w", err)
	}
	return nil
}
