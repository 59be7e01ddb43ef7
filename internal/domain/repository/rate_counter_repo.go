package repository

import (
	"context"
	"time"
)

// RateCounterRepository считает обращения по ключу в фиксированных окнах
type RateCounterRepository interface {
	// Hit увеличивает счетчик и возвращает число обращений в текущем окне и
	// время до его сброса. Окно начинается с первого обращения.
	Hit(ctx context.Context, key string, window time.Duration) (count int64, resetIn time.Duration, err error)
}
