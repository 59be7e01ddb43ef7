package service

import (
	"context"
	"fmt"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
)

// DefaultMaxParticipants — лимит участников, если он не задан в конфигурации
const DefaultMaxParticipants = 100

// AdmissionGate сравнивает число подтвержденных с лимитом.
//
// CheckCapacity только читает: отвечает на запросы доступности и отсекает
// заявки заранее. Окончательное решение принимает хранилище, которое получает
// Max() в каждой изменяющей операции и считает под своей блокировкой.
type AdmissionGate struct {
	repo            repository.RegistrationRepository
	maxParticipants int64
}

func NewAdmissionGate(repo repository.RegistrationRepository, maxParticipants int64) (*AdmissionGate, error) {
	if repo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	if maxParticipants <= 0 {
		maxParticipants = DefaultMaxParticipants
	}
	return &AdmissionGate{repo: repo, maxParticipants: maxParticipants}, nil
}

// Max возвращает лимит участников
func (g *AdmissionGate) Max() int64 {
	return g.maxParticipants
}

// CheckCapacity каждый раз пересчитывает снимок, без кеширования
func (g *AdmissionGate) CheckCapacity(ctx context.Context) (entity.CapacitySnapshot, error) {
	count, err := g.repo.CountVerified(ctx)
	if err != nil {
		return entity.CapacitySnapshot{}, fmt.Errorf("failed to count verified registrations: %w", err)
	}
	return entity.CapacitySnapshot{
		VerifiedCount:   count,
		MaxParticipants: g.maxParticipants,
	}, nil
}
