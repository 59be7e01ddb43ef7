package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/metrics"
	"github.com/yourusername/eventreg-api/internal/repository/memory"
)

// failingAttemptRepo отклоняет все записи
type failingAttemptRepo struct {
	mu    sync.Mutex
	calls int
}

func (r *failingAttemptRepo) Append(ctx context.Context, attempt *entity.RegistrationAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return fmt.Errorf("disk full")
}

func (r *failingAttemptRepo) ListRecent(ctx context.Context, limit int) ([]entity.RegistrationAttempt, error) {
	return nil, nil
}

func (r *failingAttemptRepo) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestAttemptLog_PersistsEntries(t *testing.T) {
	repo := memory.NewAttemptRepo()
	log := NewAttemptLog(repo, 16, metrics.New(prometheus.NewRegistry()), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- log.Run(ctx) }()

	log.Record(entity.AttemptActionRegister, "ivan@example.com", "203.0.113.7", true, "")
	log.Record(entity.AttemptActionRegister, "spam@example.com", "203.0.113.8", false, ReasonHoneypot)

	assert.Eventually(t, func() bool { return len(repo.All()) == 2 }, time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	all := repo.All()
	assert.True(t, all[0].Success)
	assert.Nil(t, all[0].FailureReason)
	require.NotNil(t, all[1].FailureReason)
	assert.Equal(t, "honeypot triggered", *all[1].FailureReason)
	assert.Equal(t, "203.0.113.8", all[1].IPAddress)
}

func TestAttemptLog_DrainsOnShutdown(t *testing.T) {
	repo := memory.NewAttemptRepo()
	log := NewAttemptLog(repo, 16, nil, nil)

	for i := 0; i < 5; i++ {
		log.Record(entity.AttemptActionVerify, fmt.Sprintf("u%d@example.com", i), "", false, ReasonCodeMismatch)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, log.Run(ctx))
	assert.Len(t, repo.All(), 5)
}

func TestAttemptLog_DropsWhenFull(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	log := NewAttemptLog(memory.NewAttemptRepo(), 2, m, nil)

	for i := 0; i < 5; i++ {
		log.Record(entity.AttemptActionRegister, "a@example.com", "", true, "")
	}
	assert.Equal(t, float64(3), testutil.ToFloat64(m.AttemptLogDropped))
}

func TestAttemptLog_FailuresNeverChangeOutcome(t *testing.T) {
	failing := &failingAttemptRepo{}
	m := metrics.New(prometheus.NewRegistry())
	log := NewAttemptLog(failing, 16, m, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go log.Run(ctx)

	svc, err := NewRegistrationService(memory.NewRegistrationRepo(), newFakeEmailService(), log, nil, m, nil, RegistrationConfig{})
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), ivanPetrov())
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return failing.callCount() == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(m.AttemptLogFailures) == 1
	}, time.Second, 10*time.Millisecond)
}
