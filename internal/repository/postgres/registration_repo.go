package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
	apperrors "github.com/yourusername/eventreg-api/internal/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// capacityLockKey сериализует все изменяющие операции над registrations.
// Транзакционная advisory-блокировка снимается автоматически при COMMIT/ROLLBACK.
const capacityLockKey int64 = 0x5e6_1570

// RegistrationRepo реализует repository.RegistrationRepository
type RegistrationRepo struct {
	db *gorm.DB
}

// NewRegistrationRepo создает новый репозиторий регистраций
func NewRegistrationRepo(db *gorm.DB) *RegistrationRepo {
	return &RegistrationRepo{db: db}
}

var _ repository.RegistrationRepository = (*RegistrationRepo)(nil)

// GetByEmail возвращает регистрацию по нормализованному email
func (r *RegistrationRepo) GetByEmail(ctx context.Context, email string) (*entity.Registration, error) {
	var reg entity.Registration
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get registration: %w", err)
	}
	return &reg, nil
}

// Upsert создает новую регистрацию или обновляет код у неподтвержденной
func (r *RegistrationRepo) Upsert(ctx context.Context, reg *entity.Registration, maxParticipants int64) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := admit(tx, maxParticipants); err != nil {
			return err
		}

		existing, err := lockByEmail(tx, reg.Email)
		if errors.Is(err, apperrors.ErrNotFound) {
			reg.IsVerified = false
			reg.VerifiedAt = nil
			if err := tx.Create(reg).Error; err != nil {
				if isUniqueViolation(err) {
					return fmt.Errorf("%w: registration for %s already exists", apperrors.ErrConflict, reg.Email)
				}
				return fmt.Errorf("failed to insert registration: %w", err)
			}
			created = true
			return nil
		}
		if err != nil {
			return err
		}
		if existing.IsVerified {
			return apperrors.ErrAlreadyVerified
		}

		if err := updateCode(tx, existing, reg.VerificationCode, reg.UpdatedAt); err != nil {
			return err
		}
		*reg = *existing
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// RotateCode выдает новый код существующей неподтвержденной регистрации
func (r *RegistrationRepo) RotateCode(ctx context.Context, email, code string, issuedAt time.Time, maxParticipants int64) (*entity.Registration, error) {
	var result *entity.Registration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := admit(tx, maxParticipants); err != nil {
			return err
		}

		existing, err := lockByEmail(tx, email)
		if err != nil {
			return err
		}
		if existing.IsVerified {
			return apperrors.ErrAlreadyVerified
		}

		if err := updateCode(tx, existing, code, issuedAt); err != nil {
			return err
		}
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// MarkVerified подтверждает регистрацию. Проверка лимита выполняется последней,
// чтобы ошибки пользователя (неверный/истекший код) имели приоритет.
func (r *RegistrationRepo) MarkVerified(ctx context.Context, email string, verifiedAt time.Time, maxParticipants int64, check repository.VerifyCheck) (*entity.Registration, error) {
	var result *entity.Registration
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockCapacity(tx); err != nil {
			return err
		}

		existing, err := lockByEmail(tx, email)
		if err != nil {
			return err
		}
		if existing.IsVerified {
			return apperrors.ErrAlreadyVerified
		}
		if check != nil {
			if err := check(existing); err != nil {
				return err
			}
		}
		if err := ensureCapacity(tx, maxParticipants); err != nil {
			return err
		}

		res := tx.Model(&entity.Registration{}).
			Where("id = ? AND is_verified = ?", existing.ID, false).
			UpdateColumns(map[string]interface{}{
				"is_verified": true,
				"verified_at": verifiedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("failed to mark registration verified: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return apperrors.ErrAlreadyVerified
		}

		existing.IsVerified = true
		existing.VerifiedAt = &verifiedAt
		result = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CountVerified возвращает количество подтвержденных участников
func (r *RegistrationRepo) CountVerified(ctx context.Context) (int64, error) {
	return countByVerified(r.db.WithContext(ctx), true)
}

// CountPending возвращает количество неподтвержденных регистраций
func (r *RegistrationRepo) CountPending(ctx context.Context) (int64, error) {
	return countByVerified(r.db.WithContext(ctx), false)
}

// ListRecentVerified возвращает последние подтвержденные регистрации
func (r *RegistrationRepo) ListRecentVerified(ctx context.Context, limit int) ([]entity.Registration, error) {
	var regs []entity.Registration
	err := r.db.WithContext(ctx).
		Where("is_verified = ?", true).
		Order("verified_at DESC").
		Limit(limit).
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recent registrations: %w", err)
	}
	return regs, nil
}

// ListVerified возвращает всех подтвержденных участников для экспорта
func (r *RegistrationRepo) ListVerified(ctx context.Context) ([]entity.Registration, error) {
	var regs []entity.Registration
	err := r.db.WithContext(ctx).
		Where("is_verified = ?", true).
		Order("verified_at ASC, id ASC").
		Find(&regs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list verified registrations: %w", err)
	}
	return regs, nil
}

// DailyVerified возвращает количество подтверждений по дням
func (r *RegistrationRepo) DailyVerified(ctx context.Context, days int) ([]entity.DailyCount, error) {
	var rows []entity.DailyCount
	err := r.db.WithContext(ctx).
		Model(&entity.Registration{}).
		Select("TO_CHAR(DATE(verified_at), 'YYYY-MM-DD') AS day, COUNT(*) AS count").
		Where("is_verified = ?", true).
		Group("DATE(verified_at)").
		Order("DATE(verified_at) DESC").
		Limit(days).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily registrations: %w", err)
	}
	return rows, nil
}

// lockCapacity берет транзакционную advisory-блокировку лимита
func lockCapacity(tx *gorm.DB) error {
	if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", capacityLockKey).Error; err != nil {
		return fmt.Errorf("failed to acquire capacity lock: %w", err)
	}
	return nil
}

// ensureCapacity проверяет лимит внутри уже заблокированной транзакции
func ensureCapacity(tx *gorm.DB, maxParticipants int64) error {
	count, err := countByVerified(tx, true)
	if err != nil {
		return err
	}
	if count >= maxParticipants {
		return apperrors.ErrCapacityExhausted
	}
	return nil
}

// admit — атомарная пара "посчитать и допустить"
func admit(tx *gorm.DB, maxParticipants int64) error {
	if err := lockCapacity(tx); err != nil {
		return err
	}
	return ensureCapacity(tx, maxParticipants)
}

func lockByEmail(tx *gorm.DB, email string) (*entity.Registration, error) {
	var reg entity.Registration
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("email = ?", email).
		First(&reg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock registration: %w", err)
	}
	return &reg, nil
}

func updateCode(tx *gorm.DB, reg *entity.Registration, code string, issuedAt time.Time) error {
	err := tx.Model(&entity.Registration{}).
		Where("id = ?", reg.ID).
		UpdateColumns(map[string]interface{}{
			"verification_code": code,
			"updated_at":        issuedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update verification code: %w", err)
	}
	reg.VerificationCode = code
	reg.UpdatedAt = issuedAt
	return nil
}

func countByVerified(db *gorm.DB, verified bool) (int64, error) {
	var count int64
	err := db.Model(&entity.Registration{}).
		Where("is_verified = ?", verified).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count registrations: %w", err)
	}
	return count, nil
}

// isUniqueViolation проверяет Postgres unique violation (23505) для pgconn и lib/pq драйверов
func isUniqueViolation(err error) bool {
	// pgx/v5 driver (pgconn.PgError)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	// lib/pq driver
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return true
	}
	return false
}
