package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yourusername/eventreg-api/internal/domain/entity"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
	"github.com/yourusername/eventreg-api/internal/metrics"
	apperrors "github.com/yourusername/eventreg-api/internal/pkg/errors"
	"go.uber.org/zap"
)

const (
	DefaultCodeTTL        = 15 * time.Minute
	DefaultResendCooldown = 60 * time.Second
	defaultNotifyTimeout  = 30 * time.Second
)

// RegistrationConfig содержит настройки процесса регистрации
type RegistrationConfig struct {
	MaxParticipants int64
	CodeTTL         time.Duration
	MinFormFillTime time.Duration
	ResendCooldown  time.Duration
	NotifyTimeout   time.Duration
}

// AvailabilityPublisher получает каждое изменение заполненности
type AvailabilityPublisher interface {
	PublishAvailability(a Availability)
}

// Availability — публичное представление CapacitySnapshot
type Availability struct {
	Available       bool  `json:"available"`
	CurrentCount    int64 `json:"currentCount"`
	MaxParticipants int64 `json:"maxParticipants"`
}

func availabilityFrom(s entity.CapacitySnapshot) Availability {
	return Availability{
		Available:       s.Available(),
		CurrentCount:    s.VerifiedCount,
		MaxParticipants: s.MaxParticipants,
	}
}

type SubmitInput struct {
	FirstName     string
	LastName      string
	Email         string
	Honeypot      string
	FormStartTime time.Time
	IP            string
	UserAgent     string
}

type SubmitResult struct {
	Email   string
	Created bool
}

type VerifyInput struct {
	Email string
	Code  string
	IP    string
}

type VerifyResult struct {
	Email        string
	Availability Availability
}

type ResendInput struct {
	Email string
	IP    string
}

// RegistrationService реализует регистрацию и подтверждение email.
// Регистрация не подтверждена с момента первой принятой заявки и становится
// подтвержденной навсегда при первом верном неистекшем коде.
type RegistrationService struct {
	repo      repository.RegistrationRepository
	gate      *AdmissionGate
	notifier  EmailService
	attempts  AttemptRecorder
	cooldowns repository.CooldownRepository
	publisher AvailabilityPublisher
	metrics   *metrics.Metrics
	logger    *zap.Logger

	bots           BotPolicy
	codeTTL        time.Duration
	resendCooldown time.Duration
	notifyTimeout  time.Duration

	now          func() time.Time
	generateCode func() (string, error)
}

func NewRegistrationService(
	repo repository.RegistrationRepository,
	notifier EmailService,
	attempts AttemptRecorder,
	cooldowns repository.CooldownRepository,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg RegistrationConfig,
) (*RegistrationService, error) {
	if repo == nil {
		return nil, fmt.Errorf("registration repository is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("email service is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("attempt recorder is required")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.CodeTTL <= 0 {
		cfg.CodeTTL = DefaultCodeTTL
	}
	if cfg.MinFormFillTime <= 0 {
		cfg.MinFormFillTime = DefaultMinFormFillTime
	}
	if cfg.ResendCooldown <= 0 {
		cfg.ResendCooldown = DefaultResendCooldown
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}

	gate, err := NewAdmissionGate(repo, cfg.MaxParticipants)
	if err != nil {
		return nil, err
	}
	m.SetMaxParticipants(gate.Max())

	return &RegistrationService{
		repo:           repo,
		gate:           gate,
		notifier:       notifier,
		attempts:       attempts,
		cooldowns:      cooldowns,
		publisher:      noopPublisher{},
		metrics:        m,
		logger:         logger.Named("registration"),
		bots:           BotPolicy{MinFillTime: cfg.MinFormFillTime},
		codeTTL:        cfg.CodeTTL,
		resendCooldown: cfg.ResendCooldown,
		notifyTimeout:  cfg.NotifyTimeout,
		now:            time.Now,
		generateCode:   generateVerificationCode,
	}, nil
}

// SetAvailabilityPublisher подключает рассылку обновлений доступности.
func (s *RegistrationService) SetAvailabilityPublisher(p AvailabilityPublisher) {
	if p == nil {
		p = noopPublisher{}
	}
	s.publisher = p
}

// SetClock подменяет источник времени
func (s *RegistrationService) SetClock(now func() time.Time) {
	s.now = now
}

// Gate отдает шлюз вместимости для читающих сервисов
func (s *RegistrationService) Gate() *AdmissionGate {
	return s.gate
}

// GetAvailability возвращает текущую заполненность
func (s *RegistrationService) GetAvailability(ctx context.Context) (*Availability, error) {
	snap, err := s.gate.CheckCapacity(ctx)
	if err != nil {
		s.logger.Error("availability check failed", zap.Error(err))
		return nil, storeFailure(err)
	}
	s.metrics.SetVerified(snap.VerifiedCount)
	a := availabilityFrom(snap)
	return &a, nil
}

// Submit принимает новую заявку или перевыпускает код для неподтвержденной
func (s *RegistrationService) Submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	res, err := s.submit(ctx, in)
	s.finish(entity.AttemptActionRegister, in.Email, in.IP, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RegistrationService) submit(ctx context.Context, in SubmitInput) (*SubmitResult, error) {
	if verdict := s.bots.Check(in.Honeypot, in.FormStartTime, s.now()); verdict.Rejected {
		return nil, botRejection(verdict.Reason, ValidateFields(in.FirstName, in.LastName, in.Email))
	}

	if err := s.precheckCapacity(ctx); err != nil {
		return nil, err
	}

	if fields := ValidateFields(in.FirstName, in.LastName, in.Email); len(fields) > 0 {
		return nil, validationFailure(fields)
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, storeFailure(fmt.Errorf("failed to generate verification code: %w", err))
	}

	now := s.now()
	reg := &entity.Registration{
		FirstName:        NormalizeName(in.FirstName),
		LastName:         NormalizeName(in.LastName),
		Email:            entity.NormalizeEmail(in.Email),
		VerificationCode: code,
		IPAddress:        in.IP,
		UserAgent:        in.UserAgent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	created, err := s.repo.Upsert(ctx, reg, s.gate.Max())
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrCapacityExhausted):
			return nil, rejection(KindCapacityExhausted, ReasonCapacity, apperrors.ErrCapacityExhausted)
		case errors.Is(err, apperrors.ErrAlreadyVerified):
			return nil, rejection(KindDuplicate, ReasonAlreadyRegistered, ErrDuplicateRegistration)
		default:
			return nil, storeFailure(err)
		}
	}

	if err := s.notify(ctx, reg.Email, code, reg.FirstName); err != nil {
		return nil, err
	}

	return &SubmitResult{Email: reg.Email, Created: created}, nil
}

// Verify проверяет код и при успехе подтверждает регистрацию
func (s *RegistrationService) Verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	res, err := s.verify(ctx, in)
	s.finish(entity.AttemptActionVerify, in.Email, in.IP, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RegistrationService) verify(ctx context.Context, in VerifyInput) (*VerifyResult, error) {
	email := entity.NormalizeEmail(in.Email)
	code := strings.TrimSpace(in.Code)

	fields := ValidationErrors{}
	if email == "" {
		fields[FieldEmail] = "email is required"
	}
	if msg := ValidateCode(code); msg != "" {
		fields[FieldCode] = msg
	}
	if len(fields) > 0 {
		return nil, validationFailure(fields)
	}

	now := s.now()
	check := func(reg *entity.Registration) error {
		if subtle.ConstantTimeCompare([]byte(reg.VerificationCode), []byte(code)) != 1 {
			return ErrCodeMismatch
		}
		if reg.IsCodeExpired(now, s.codeTTL) {
			return ErrCodeExpired
		}
		return nil
	}

	reg, err := s.repo.MarkVerified(ctx, email, now, s.gate.Max(), check)
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, rejection(KindNotFound, ReasonNotFound, apperrors.ErrNotFound)
		case errors.Is(err, apperrors.ErrAlreadyVerified):
			return nil, rejection(KindDuplicate, ReasonAlreadyVerified, ErrDuplicateRegistration)
		case errors.Is(err, ErrCodeMismatch):
			return nil, rejection(KindCodeMismatch, ReasonCodeMismatch, ErrCodeMismatch)
		case errors.Is(err, ErrCodeExpired):
			return nil, rejection(KindCodeExpired, ReasonCodeExpired, ErrCodeExpired)
		case errors.Is(err, apperrors.ErrCapacityExhausted):
			return nil, rejection(KindCapacityExhausted, ReasonCapacity, apperrors.ErrCapacityExhausted)
		default:
			return nil, storeFailure(err)
		}
	}

	s.logger.Info("registration verified", zap.String("email", reg.Email), zap.Uint("id", reg.ID))

	res := &VerifyResult{Email: reg.Email}
	if snap, err := s.gate.CheckCapacity(ctx); err != nil {
		// Подтверждение уже зафиксировано, ошибка чтения его не отменяет
		s.logger.Warn("post-verify availability read failed", zap.Error(err))
	} else {
		res.Availability = availabilityFrom(snap)
		s.metrics.SetVerified(snap.VerifiedCount)
		s.publisher.PublishAvailability(res.Availability)
	}
	return res, nil
}

// Resend выдает новый код неподтвержденной регистрации.
// Проверки полей и защиты от ботов не нужны: данные уже сохранены.
func (s *RegistrationService) Resend(ctx context.Context, in ResendInput) (*SubmitResult, error) {
	res, err := s.resend(ctx, in)
	s.finish(entity.AttemptActionResend, in.Email, in.IP, err)
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (s *RegistrationService) resend(ctx context.Context, in ResendInput) (*SubmitResult, error) {
	if msg := ValidateEmail(in.Email); msg != "" {
		return nil, validationFailure(ValidationErrors{FieldEmail: msg})
	}
	email := entity.NormalizeEmail(in.Email)

	acquired := false
	if s.cooldowns != nil {
		ok, remaining, err := s.cooldowns.Acquire(ctx, email, s.resendCooldown)
		switch {
		case err != nil:
			s.logger.Warn("resend cooldown unavailable, allowing request", zap.Error(err), zap.String("email", email))
		case !ok:
			return nil, &RegistrationError{
				Kind:       KindResendCooldown,
				Reason:     ReasonResendCooldown,
				RetryAfter: remaining,
				Err:        ErrResendCooldown,
			}
		default:
			acquired = true
		}
	}

	res, err := s.reissueCode(ctx, email)
	if err != nil && acquired {
		// Неудачная попытка не должна блокировать следующую
		s.releaseCooldown(ctx, email)
	}
	return res, err
}

func (s *RegistrationService) reissueCode(ctx context.Context, email string) (*SubmitResult, error) {
	if err := s.precheckCapacity(ctx); err != nil {
		return nil, err
	}

	code, err := s.generateCode()
	if err != nil {
		return nil, storeFailure(fmt.Errorf("failed to generate verification code: %w", err))
	}

	reg, err := s.repo.RotateCode(ctx, email, code, s.now(), s.gate.Max())
	if err != nil {
		switch {
		case errors.Is(err, apperrors.ErrNotFound):
			return nil, rejection(KindNotFound, ReasonNotFound, apperrors.ErrNotFound)
		case errors.Is(err, apperrors.ErrAlreadyVerified):
			return nil, rejection(KindDuplicate, ReasonAlreadyVerified, ErrDuplicateRegistration)
		case errors.Is(err, apperrors.ErrCapacityExhausted):
			return nil, rejection(KindCapacityExhausted, ReasonCapacity, apperrors.ErrCapacityExhausted)
		default:
			return nil, storeFailure(err)
		}
	}

	if err := s.notify(ctx, reg.Email, code, reg.FirstName); err != nil {
		return nil, err
	}
	return &SubmitResult{Email: reg.Email}, nil
}

func (s *RegistrationService) releaseCooldown(ctx context.Context, email string) {
	if err := s.cooldowns.Release(context.WithoutCancel(ctx), email); err != nil {
		s.logger.Warn("failed to release resend cooldown", zap.Error(err), zap.String("email", email))
	}
}

func (s *RegistrationService) precheckCapacity(ctx context.Context) error {
	snap, err := s.gate.CheckCapacity(ctx)
	if err != nil {
		return storeFailure(err)
	}
	if !snap.Available() {
		return rejection(KindCapacityExhausted, ReasonCapacity, apperrors.ErrCapacityExhausted)
	}
	return nil
}

// notify вызывается после записи в хранилище. При ошибке запись остается,
// повторная отправка кода ее восстановит.
func (s *RegistrationService) notify(ctx context.Context, email, code, firstName string) error {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	defer cancel()

	if err := s.notifier.SendVerificationCode(sendCtx, email, code, firstName); err != nil {
		s.metrics.IncrementNotifierFailures()
		return notifierFailure(err)
	}
	return nil
}

// finish пишет попытку в журнал и метрики, внутренние сбои логирует
func (s *RegistrationService) finish(action entity.AttemptAction, rawEmail, ip string, err error) {
	if err == nil {
		s.metrics.ObserveAttempt(string(action), "success")
		s.attempts.Record(action, rawEmail, ip, true, "")
		return
	}

	kind := KindOf(err)
	reason := err.Error()
	var regErr *RegistrationError
	if errors.As(err, &regErr) {
		reason = regErr.Reason
		if regErr.Internal() {
			s.logger.Error("registration operation failed",
				zap.String("action", string(action)),
				zap.String("kind", string(kind)),
				zap.String("email", rawEmail),
				zap.Error(regErr.Err))
		}
	}

	s.metrics.ObserveAttempt(string(action), string(kind))
	s.attempts.Record(action, rawEmail, ip, false, reason)
}

type noopPublisher struct{}

func (noopPublisher) PublishAvailability(Availability) {}
