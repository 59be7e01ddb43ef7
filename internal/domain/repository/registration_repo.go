package repository

import (
	"context"
	"time"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
)

// VerifyCheck проверяет заблокированную неподтвержденную регистрацию внутри
// транзакции хранилища. Ненулевая ошибка отменяет переход и возвращается как есть.
type VerifyCheck func(reg *entity.Registration) error

// RegistrationRepository — основное хранилище регистраций.
//
// Каждый изменяющий метод атомарен: лимит пересчитывается и проверяется в той же
// транзакции, что и запись, поэтому параллельные вызовы не превысят maxParticipants.
type RegistrationRepository interface {
	// GetByEmail возвращает apperrors.ErrNotFound для неизвестного email
	GetByEmail(ctx context.Context, email string) (*entity.Registration, error)

	// Upsert создает новую неподтвержденную регистрацию или, если для reg.Email
	// уже есть неподтвержденная, заменяет ее код и UpdatedAt. Имя и фамилия
	// существующей записи сохраняются и копируются обратно в reg.
	// Возвращает ErrAlreadyVerified или ErrCapacityExhausted без записи.
	Upsert(ctx context.Context, reg *entity.Registration, maxParticipants int64) (created bool, err error)

	// RotateCode заменяет код существующей неподтвержденной регистрации.
	// Возвращает ErrNotFound, ErrAlreadyVerified или ErrCapacityExhausted.
	RotateCode(ctx context.Context, email, code string, issuedAt time.Time, maxParticipants int64) (*entity.Registration, error)

	// MarkVerified выполняет окончательный переход в подтвержденное состояние.
	// Порядок проверок: ErrNotFound, ErrAlreadyVerified, check(reg),
	// ErrCapacityExhausted. Из параллельных вызовов успешен только один.
	MarkVerified(ctx context.Context, email string, verifiedAt time.Time, maxParticipants int64, check VerifyCheck) (*entity.Registration, error)

	CountVerified(ctx context.Context) (int64, error)
	CountPending(ctx context.Context) (int64, error)

	// ListRecentVerified возвращает подтвержденные регистрации, новые первыми
	ListRecentVerified(ctx context.Context, limit int) ([]entity.Registration, error)

	// ListVerified возвращает всех подтвержденных в порядке подтверждения
	ListVerified(ctx context.Context) ([]entity.Registration, error)

	// DailyVerified группирует подтверждения по дням, новые дни первыми
	DailyVerified(ctx context.Context, days int) ([]entity.DailyCount, error)
}
