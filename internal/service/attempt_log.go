package service

import (
	"context"
	"time"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
	"github.com/yourusername/eventreg-api/internal/metrics"
	"go.uber.org/zap"
)

const (
	defaultAttemptLogBuffer = 1024
	attemptDrainTimeout     = 5 * time.Second
	attemptWriteTimeout     = 3 * time.Second
)

// AttemptRecorder принимает записи журнала попыток, не блокируя вызывающего
type AttemptRecorder interface {
	Record(action entity.AttemptAction, email, ip string, success bool, reason string)
}

// AttemptLog — асинхронная запись попыток в AttemptRepository без гарантий доставки.
// Record только ставит запись в очередь. Run сохраняет записи до отмены
// контекста, после чего дописывает остаток очереди.
type AttemptLog struct {
	repo    repository.AttemptRepository
	inbox   chan entity.RegistrationAttempt
	now     func() time.Time
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func NewAttemptLog(repo repository.AttemptRepository, buffer int, m *metrics.Metrics, logger *zap.Logger) *AttemptLog {
	if buffer <= 0 {
		buffer = defaultAttemptLogBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttemptLog{
		repo:    repo,
		inbox:   make(chan entity.RegistrationAttempt, buffer),
		now:     time.Now,
		logger:  logger.Named("attempt_log"),
		metrics: m,
	}
}

// Record не блокирует и не возвращает ошибок. При полной очереди запись отбрасывается.
func (l *AttemptLog) Record(action entity.AttemptAction, email, ip string, success bool, reason string) {
	attempt := entity.RegistrationAttempt{
		Email:       email,
		IPAddress:   ip,
		Action:      action,
		Success:     success,
		AttemptedAt: l.now(),
	}
	if reason != "" {
		r := reason
		attempt.FailureReason = &r
	}

	select {
	case l.inbox <- attempt:
	default:
		if l.metrics != nil {
			l.metrics.IncrementAttemptLogDropped()
		}
		l.logger.Warn("attempt log queue full, entry dropped",
			zap.String("action", string(action)),
			zap.String("email", email),
			zap.String("ip", ip))
	}
}

// Run разбирает очередь. После отмены дописывает остаток и возвращает nil.
func (l *AttemptLog) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.drain()
			return nil
		case attempt := <-l.inbox:
			l.persist(ctx, attempt)
		}
	}
}

func (l *AttemptLog) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), attemptDrainTimeout)
	defer cancel()
	for {
		select {
		case attempt := <-l.inbox:
			l.persist(ctx, attempt)
		default:
			return
		}
	}
}

func (l *AttemptLog) persist(ctx context.Context, attempt entity.RegistrationAttempt) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), attemptWriteTimeout)
	defer cancel()

	if err := l.repo.Append(writeCtx, &attempt); err != nil {
		if l.metrics != nil {
			l.metrics.IncrementAttemptLogFailures()
		}
		l.logger.Error("failed to persist registration attempt",
			zap.Error(err),
			zap.String("action", string(attempt.Action)),
			zap.String("email", attempt.Email))
	}
}
