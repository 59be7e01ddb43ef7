package service

import (
	"context"
	"fmt"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

const (
	recentRegistrationsLimit = 10
	dailyStatsDays           = 7
	recentAttemptsLimit      = 20
)

// Stats — сводка по регистрациям для организатора
type Stats struct {
	TotalVerified   int64                        `json:"total_verified"`
	Pending         int64                        `json:"pending"`
	MaxParticipants int64                        `json:"max_participants"`
	Remaining       int64                        `json:"remaining"`
	Recent          []entity.Registration        `json:"recent"`
	Daily           []entity.DailyCount          `json:"daily"`
	RecentAttempts  []entity.RegistrationAttempt `json:"recent_attempts,omitempty"`
}

// StatsService собирает отчеты для организаторов, только чтение
type StatsService struct {
	repo     repository.RegistrationRepository
	attempts repository.AttemptRepository
	gate     *AdmissionGate
}

// NewStatsService создает сервис статистики. attempts может быть nil.
func NewStatsService(repo repository.RegistrationRepository, attempts repository.AttemptRepository, gate *AdmissionGate) (*StatsService, error) {
	if repo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	if gate == nil {
		return nil, fmt.Errorf("admission gate is required")
	}
	return &StatsService{repo: repo, attempts: attempts, gate: gate}, nil
}

func (s *StatsService) GetStats(ctx context.Context) (*Stats, error) {
	snap, err := s.gate.CheckCapacity(ctx)
	if err != nil {
		return nil, err
	}
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending registrations: %w", err)
	}
	recent, err := s.repo.ListRecentVerified(ctx, recentRegistrationsLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent registrations: %w", err)
	}
	daily, err := s.repo.DailyVerified(ctx, dailyStatsDays)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily statistics: %w", err)
	}

	stats := &Stats{
		TotalVerified:   snap.VerifiedCount,
		Pending:         pending,
		MaxParticipants: snap.MaxParticipants,
		Remaining:       snap.Remaining(),
		Recent:          recent,
		Daily:           daily,
	}

	if s.attempts != nil {
		attempts, err := s.attempts.ListRecent(ctx, recentAttemptsLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list recent attempts: %w", err)
		}
		stats.RecentAttempts = attempts
	}
	return stats, nil
}

// ListParticipants возвращает всех подтвержденных участников для выгрузки
func (s *StatsService) ListParticipants(ctx context.Context) ([]entity.Registration, error) {
	regs, err := s.repo.ListVerified(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list participants: %w", err)
	}
	return regs, nil
}
