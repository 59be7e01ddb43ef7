package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/eventreg-api/internal/domain/entity"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestRateCounterRepo_FixedWindow(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	repo := NewRateCounterRepo(clock.Now)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		count, resetIn, err := repo.Hit(ctx, "ip:1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.Equal(t, time.Minute, resetIn)
	}

	clock.now = baseTime.Add(30 * time.Second)
	count, resetIn, _ := repo.Hit(ctx, "ip:1", time.Minute)
	assert.Equal(t, int64(4), count)
	assert.Equal(t, 30*time.Second, resetIn)

	other, _, _ := repo.Hit(ctx, "ip:2", time.Minute)
	assert.Equal(t, int64(1), other)

	clock.now = baseTime.Add(time.Minute)
	count, _, _ = repo.Hit(ctx, "ip:1", time.Minute)
	assert.Equal(t, int64(1), count, "Новое окно начинает счет заново")
}

func TestCooldownRepo_Acquire(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	repo := NewCooldownRepo(clock.Now)
	ctx := context.Background()

	ok, _, err := repo.Acquire(ctx, "resend:ivan@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.now = baseTime.Add(20 * time.Second)
	ok, wait, err := repo.Acquire(ctx, "resend:ivan@example.com", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	clock.now = baseTime.Add(time.Minute)
	ok, _, _ = repo.Acquire(ctx, "resend:ivan@example.com", time.Minute)
	assert.True(t, ok)
}

func TestCooldownRepo_Release(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	repo := NewCooldownRepo(clock.Now)
	ctx := context.Background()

	ok, _, err := repo.Acquire(ctx, "ivan@example.com", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, repo.Release(ctx, "ivan@example.com"))
	require.NoError(t, repo.Release(ctx, "ghost@example.com"))

	ok, _, err = repo.Acquire(ctx, "ivan@example.com", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAttemptRepo_ListRecent(t *testing.T) {
	repo := NewAttemptRepo()
	ctx := context.Background()

	for i, action := range []entity.AttemptAction{entity.AttemptActionRegister, entity.AttemptActionVerify, entity.AttemptActionResend} {
		require.NoError(t, repo.Append(ctx, &entity.RegistrationAttempt{
			Email:       "ivan@example.com",
			Action:      action,
			AttemptedAt: baseTime.Add(time.Duration(i) * time.Second),
		}))
	}

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, entity.AttemptActionResend, recent[0].Action)
	assert.Equal(t, entity.AttemptActionVerify, recent[1].Action)
	assert.Len(t, repo.All(), 3)
}
