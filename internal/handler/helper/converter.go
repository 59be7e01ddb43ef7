package helper

import (
	"github.com/yourusername/eventreg-api/internal/handler/dto"
	"github.com/yourusername/eventreg-api/internal/service"
)

// ToAvailabilityResponse преобразует снимок доступности в DTO
func ToAvailabilityResponse(a *service.Availability) dto.AvailabilityResponse {
	return dto.AvailabilityResponse{
		Available:       a.Available,
		CurrentCount:    a.CurrentCount,
		MaxParticipants: a.MaxParticipants,
	}
}

// ToStatsResponse преобразует статистику в DTO. Пустые списки отдаются как [], не null.
func ToStatsResponse(s *service.Stats) dto.StatsResponse {
	recent := make([]dto.RecentRegistrationDTO, 0, len(s.Recent))
	for _, r := range s.Recent {
		recent = append(recent, dto.RecentRegistrationDTO{
			FirstName:  r.FirstName,
			LastName:   r.LastName,
			Email:      r.Email,
			VerifiedAt: r.VerifiedAt,
		})
	}

	daily := make([]dto.DailyCountDTO, 0, len(s.Daily))
	for _, d := range s.Daily {
		daily = append(daily, dto.DailyCountDTO{Date: d.Day, Count: d.Count})
	}

	attempts := make([]dto.RecentAttemptDTO, 0, len(s.RecentAttempts))
	for _, a := range s.RecentAttempts {
		item := dto.RecentAttemptDTO{
			Action:      string(a.Action),
			Email:       a.Email,
			IPAddress:   a.IPAddress,
			Success:     a.Success,
			AttemptedAt: a.AttemptedAt,
		}
		if a.FailureReason != nil {
			item.FailureReason = *a.FailureReason
		}
		attempts = append(attempts, item)
	}

	return dto.StatsResponse{
		Total:           s.TotalVerified,
		Pending:         s.Pending,
		MaxParticipants: s.MaxParticipants,
		Remaining:       s.Remaining,
		Recent:          recent,
		Daily:           daily,
		RecentAttempts:  attempts,
	}
}
