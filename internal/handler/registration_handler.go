package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/eventreg-api/internal/handler/dto"
	"github.com/yourusername/eventreg-api/internal/handler/helper"
	"github.com/yourusername/eventreg-api/internal/service"
	"go.uber.org/zap"
)

const (
	msgCodeSent     = "Код подтверждения отправлен на ваш email"
	msgVerified     = "Регистрация успешно завершена!"
	msgCodeResent   = "Новый код подтверждения отправлен на ваш email"
	msgInvalidInput = "Invalid request data"
)

// RegistrationHandler обрабатывает запросы регистрации на мероприятие
type RegistrationHandler struct {
	registrations *service.RegistrationService
	stats         *service.StatsService
	logger        *zap.Logger
	now           func() time.Time
}

// NewRegistrationHandler создает новый обработчик регистрации
func NewRegistrationHandler(registrations *service.RegistrationService, stats *service.StatsService, logger *zap.Logger) *RegistrationHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationHandler{
		registrations: registrations,
		stats:         stats,
		logger:        logger.Named("registration_handler"),
		now:           time.Now,
	}
}

// GetAvailability возвращает текущее состояние мест
func (h *RegistrationHandler) GetAvailability(c *gin.Context) {
	availability, err := h.registrations.GetAvailability(c.Request.Context())
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, helper.ToAvailabilityResponse(availability))
}

// Register принимает форму регистрации и отправляет код
func (h *RegistrationHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msgInvalidInput, ErrorType: string(service.KindValidation)})
		return
	}

	var formStart time.Time
	if req.FormStartTime != nil && *req.FormStartTime > 0 {
		formStart = time.UnixMilli(*req.FormStartTime)
	}

	_, err := h.registrations.Submit(c.Request.Context(), service.SubmitInput{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Email:         req.Email,
		Honeypot:      req.Honeypot,
		FormStartTime: formStart,
		IP:            c.ClientIP(),
		UserAgent:     c.Request.UserAgent(),
	})
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: msgCodeSent})
}

// Verify проверяет код подтверждения
func (h *RegistrationHandler) Verify(c *gin.Context) {
	var req dto.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msgInvalidInput, ErrorType: string(service.KindValidation)})
		return
	}

	_, err := h.registrations.Verify(c.Request.Context(), service.VerifyInput{
		Email: req.Email,
		Code:  req.Code,
		IP:    c.ClientIP(),
	})
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: msgVerified})
}

// Resend отправляет новый код для неподтвержденной регистрации
func (h *RegistrationHandler) Resend(c *gin.Context) {
	var req dto.ResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msgInvalidInput, ErrorType: string(service.KindValidation)})
		return
	}

	_, err := h.registrations.Resend(c.Request.Context(), service.ResendInput{
		Email: req.Email,
		IP:    c.ClientIP(),
	})
	if err != nil {
		h.handleRegistrationError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.MessageResponse{Success: true, Message: msgCodeResent})
}

// GetStats возвращает статистику для организаторов
func (h *RegistrationHandler) GetStats(c *gin.Context) {
	stats, err := h.stats.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to load stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Ошибка сервера", ErrorType: "internal_server_error"})
		return
	}
	c.JSON(http.StatusOK, helper.ToStatsResponse(stats))
}

// ExportParticipants выгружает подтвержденных участников в CSV или XLSX
func (h *RegistrationHandler) ExportParticipants(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "format must be csv or xlsx", ErrorType: string(service.KindValidation)})
		return
	}

	participants, err := h.stats.ListParticipants(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list participants", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Ошибка сервера", ErrorType: "internal_server_error"})
		return
	}

	filename := service.ExportFilename(h.now())
	switch format {
	case "xlsx":
		c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.xlsx\"", filename))
		err = service.WriteParticipantsXLSX(c.Writer, participants)
	default:
		c.Header("Content-Type", "text/csv; charset=utf-8")
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.csv\"", filename))
		err = service.WriteParticipantsCSV(c.Writer, participants)
	}
	if err != nil {
		// Заголовки уже отправлены, остается только залогировать
		h.logger.Error("participant export failed", zap.String("format", format), zap.Error(err))
	}
}

// handleRegistrationError отображает ошибки сервиса в HTTP-ответ
func (h *RegistrationHandler) handleRegistrationError(c *gin.Context, err error) {
	var regErr *service.RegistrationError
	if !errors.As(err, &regErr) {
		h.logger.Error("unexpected registration error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Ошибка сервера", ErrorType: "internal_server_error"})
		return
	}

	switch regErr.Kind {
	case service.KindValidation, service.KindBotSignal:
		// Срабатывание защиты от ботов для клиента неотличимо от ошибки валидации
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:     "Проверьте правильность заполнения полей",
			ErrorType: string(service.KindValidation),
			Fields:    regErr.Fields,
		})
	case service.KindCapacityExhausted:
		c.JSON(http.StatusForbidden, dto.ErrorResponse{Error: "Регистрация закрыта, все места заняты", ErrorType: string(regErr.Kind)})
	case service.KindDuplicate:
		msg := "Этот email уже зарегистрирован"
		if regErr.Reason == service.ReasonAlreadyVerified {
			msg = "Email уже подтвержден"
		}
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: msg, ErrorType: string(regErr.Kind)})
	case service.KindNotFound:
		c.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "Регистрация не найдена", ErrorType: string(regErr.Kind)})
	case service.KindCodeMismatch:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Неверный код подтверждения", ErrorType: string(regErr.Kind)})
	case service.KindCodeExpired:
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{Error: "Код подтверждения истек. Запросите новый.", ErrorType: string(regErr.Kind)})
	case service.KindResendCooldown:
		retryAfter := int(regErr.RetryAfter.Round(time.Second).Seconds())
		if retryAfter < 1 {
			retryAfter = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
			Error:      fmt.Sprintf("Повторная отправка возможна через %d сек.", retryAfter),
			ErrorType:  string(regErr.Kind),
			RetryAfter: retryAfter,
		})
	case service.KindNotifierFailure:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Не удалось отправить письмо. Попробуйте позже.", ErrorType: string(regErr.Kind)})
	default:
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{Error: "Ошибка сервера", ErrorType: "internal_server_error"})
	}
}
