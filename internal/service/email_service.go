package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

// EmailService отправляет код подтверждения участнику
type EmailService interface {
	SendVerificationCode(ctx context.Context, toEmail, code, firstName string) error
}

const verificationSubject = "Your event registration code"

var verificationHTML = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: -apple-system, 'Segoe UI', Roboto, sans-serif;">
  <div style="max-width: 600px; margin: 0 auto; padding: 20px;">
    <h1>Confirm your registration</h1>
    <p>Hello, {{.FirstName}}!</p>
    <p>Thank you for registering for the event. Use this code to complete your registration:</p>
    <div style="border: 2px dashed #667eea; padding: 20px; text-align: center; margin: 20px 0;">
      <span style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">{{.Code}}</span>
    </div>
    <p>The code is valid for {{.ValidFor}}.</p>
    <p>If you did not register, just ignore this email.</p>
  </div>
</body>
</html>`))

type verificationEmail struct {
	FirstName string
	Code      string
	ValidFor  string
}

func renderVerificationEmail(firstName, code string, ttl time.Duration) (html, text string, err error) {
	data := verificationEmail{
		FirstName: firstName,
		Code:      code,
		ValidFor:  fmt.Sprintf("%d minutes", int(ttl.Minutes())),
	}
	var buf bytes.Buffer
	if err := verificationHTML.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render verification email: %w", err)
	}
	text = fmt.Sprintf("Hello, %s!\n\nYour verification code: %s\n\nThe code is valid for %s.", firstName, code, data.ValidFor)
	return buf.String(), text, nil
}

// LogEmailService только логирует код. Для локальной разработки.
type LogEmailService struct {
	logger *zap.Logger
}

func NewLogEmailService(logger *zap.Logger) *LogEmailService {
	return &LogEmailService{logger: logger}
}

func (s *LogEmailService) SendVerificationCode(ctx context.Context, toEmail, code, firstName string) error {
	s.logger.Info("verification code (log provider, email not sent)",
		zap.String("to", toEmail),
		zap.String("code", code))
	return nil
}

// ResendEmailService отправляет письма через Resend REST API
type ResendEmailService struct {
	from    string
	codeTTL time.Duration
	client  *resend.Client
}

func NewResendEmailService(apiKey, from string, codeTTL time.Duration) (*ResendEmailService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("resend api key is required")
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &ResendEmailService{
		from:    from,
		codeTTL: codeTTL,
		client:  resend.NewClient(apiKey),
	}, nil
}

func (s *ResendEmailService) SendVerificationCode(ctx context.Context, toEmail, code, firstName string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}

	html, text, err := renderVerificationEmail(firstName, code, s.codeTTL)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    s.from,
		To:      []string{toEmail},
		Subject: verificationSubject,
		Text:    text,
		Html:    html,
	}
	// Один ключ идемпотентности на выданный код, общий для повторов ниже
	options := &resend.SendEmailOptions{
		IdempotencyKey: fmt.Sprintf("registration-code:%s:%s", toEmail, uuid.NewString()),
	}

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		_, err := s.client.Emails.SendWithOptions(ctx, params, options)
		if err == nil {
			return nil
		}
		lastErr = err

		if wait, ok := resendRetryDelay(err, attempt); ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("resend send failed: %w", err)
	}

	return fmt.Errorf("resend send failed after retries: %w", lastErr)
}

func resendRetryDelay(err error, attempt int) (time.Duration, bool) {
	var rateLimitErr *resend.RateLimitError
	if errors.As(err, &rateLimitErr) {
		if seconds, convErr := strconv.Atoi(strings.TrimSpace(rateLimitErr.RetryAfter)); convErr == nil && seconds > 0 {
			if seconds > 30 {
				seconds = 30
			}
			return time.Duration(seconds) * time.Second, true
		}
		return time.Duration(attempt+1) * time.Second, true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "temporar") {
		return time.Duration(attempt+1) * 500 * time.Millisecond, true
	}

	return 0, false
}

// SMTPEmailService отправляет письма через SMTP-сервер
type SMTPEmailService struct {
	dialer  *gomail.Dialer
	from    string
	codeTTL time.Duration
}

func NewSMTPEmailService(host string, port int, user, password, from string, codeTTL time.Duration) (*SMTPEmailService, error) {
	if host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if from == "" {
		from = user
	}
	if from == "" {
		return nil, fmt.Errorf("email from is required")
	}
	return &SMTPEmailService{
		dialer:  gomail.NewDialer(host, port, user, password),
		from:    from,
		codeTTL: codeTTL,
	}, nil
}

func (s *SMTPEmailService) SendVerificationCode(ctx context.Context, toEmail, code, firstName string) error {
	if toEmail == "" || code == "" {
		return fmt.Errorf("toEmail and code are required")
	}

	html, text, err := renderVerificationEmail(firstName, code, s.codeTTL)
	if err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", verificationSubject)
	m.SetBody("text/plain", text)
	m.AddAlternative("text/html", html)

	// gomail не поддерживает context
	done := make(chan error, 1)
	go func() {
		done <- s.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		if err != nil {
			return fmt.Errorf("failed to send verification email: %w", err)
		}
		return nil
	}
}
