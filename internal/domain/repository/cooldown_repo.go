package repository

import (
	"context"
	"time"
)

// CooldownRepository хранит короткие ограничения частоты по ключу
type CooldownRepository interface {
	// Acquire запускает кулдаун для key. Если он уже идет, возвращает false
	// и оставшееся время.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, time.Duration, error)
	// Release досрочно снимает кулдаун. Отсутствие ключа ошибкой не считается.
	Release(ctx context.Context, key string) error
}
