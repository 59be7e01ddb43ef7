package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yourusername/eventreg-api/internal/metrics"
	"github.com/yourusername/eventreg-api/internal/middleware"
	"github.com/yourusername/eventreg-api/internal/repository/memory"
	"github.com/yourusername/eventreg-api/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newTestGinContext создает *gin.Context для тестов с JSON body
func newTestGinContext(method, path string, body interface{}) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()

	var req *http.Request
	if body != nil {
		bodyBytes, _ := json.Marshal(body)
		req, _ = http.NewRequest(method, path, bytes.NewReader(bodyBytes))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req, _ = http.NewRequest(method, path, nil)
	}

	c, _ := gin.CreateTestContext(w)
	c.Request = req
	return c, w
}

// parseJSONResponse парсит JSON ответ из *httptest.ResponseRecorder
func parseJSONResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err, "Response body should be valid JSON: %s", w.Body.String())
	return resp
}

type capturingEmailService struct {
	mu    sync.Mutex
	codes map[string]string
}

func (s *capturingEmailService) SendVerificationCode(ctx context.Context, toEmail, code, firstName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[toEmail] = code
	return nil
}

func (s *capturingEmailService) code(email string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codes[email]
}

type handlerEnv struct {
	handler *RegistrationHandler
	emails  *capturingEmailService
	router  *gin.Engine
}

func newHandlerEnv(t *testing.T, maxParticipants int64) *handlerEnv {
	t.Helper()

	repo := memory.NewRegistrationRepo()
	attempts := memory.NewAttemptRepo()
	emails := &capturingEmailService{codes: make(map[string]string)}
	m := metrics.New(prometheus.NewRegistry())

	attemptLog := service.NewAttemptLog(attempts, 0, m, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = attemptLog.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	svc, err := service.NewRegistrationService(
		repo, emails, attemptLog,
		memory.NewCooldownRepo(nil), m, nil,
		service.RegistrationConfig{MaxParticipants: maxParticipants},
	)
	require.NoError(t, err)
	stats, err := service.NewStatsService(repo, attempts, svc.Gate())
	require.NoError(t, err)

	h := NewRegistrationHandler(svc, stats, nil)

	router := gin.New()
	api := router.Group("/api")
	api.GET("/availability", h.GetAvailability)
	api.POST("/register", h.Register)
	api.POST("/verify", h.Verify)
	api.POST("/resend", h.Resend)
	admin := api.Group("", middleware.RequireAdminToken("secret"))
	admin.GET("/stats", h.GetStats)
	admin.GET("/admin/registrations/export", h.ExportParticipants)

	return &handlerEnv{handler: h, emails: emails, router: router}
}

func (e *handlerEnv) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func validForm() map[string]interface{} {
	return map[string]interface{}{
		"firstName":     "Ivan",
		"lastName":      "Petrov",
		"email":         "ivan@example.com",
		"honeypot":      "",
		"formStartTime": time.Now().Add(-10 * time.Second).UnixMilli(),
	}
}

// ============================================================================
// Request validation tests — handler возвращает 400 до вызова сервиса
// ============================================================================

func TestRegister_MalformedBody(t *testing.T) {
	h := &RegistrationHandler{}

	for _, method := range []func(*gin.Context){h.Register, h.Verify, h.Resend} {
		c, w := newTestGinContext(http.MethodPost, "/api/x", nil)
		method(c)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := parseJSONResponse(t, w)
		assert.Equal(t, "validation_error", resp["error_type"])
	}
}

func TestExport_RejectsUnknownFormat(t *testing.T) {
	h := &RegistrationHandler{}
	c, w := newTestGinContext(http.MethodGet, "/api/admin/registrations/export?format=pdf", nil)
	h.ExportParticipants(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ============================================================================
// Сквозные сценарии
// ============================================================================

func TestRegistrationFlow(t *testing.T) {
	env := newHandlerEnv(t, 100)

	w := env.do(http.MethodGet, "/api/availability", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, true, resp["available"])
	assert.Equal(t, float64(0), resp["currentCount"])
	assert.Equal(t, float64(100), resp["maxParticipants"])

	w = env.do(http.MethodPost, "/api/register", validForm(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	resp = parseJSONResponse(t, w)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, msgCodeSent, resp["message"])

	wrong := "000000"
	if env.emails.code("ivan@example.com") == wrong {
		wrong = "111111"
	}
	w = env.do(http.MethodPost, "/api/verify", map[string]string{"email": "ivan@example.com", "code": wrong}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "code_mismatch", parseJSONResponse(t, w)["error_type"])

	code := env.emails.code("ivan@example.com")
	w = env.do(http.MethodPost, "/api/verify", map[string]string{"email": "ivan@example.com", "code": code}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, msgVerified, parseJSONResponse(t, w)["message"])

	w = env.do(http.MethodPost, "/api/verify", map[string]string{"email": "ivan@example.com", "code": code}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp = parseJSONResponse(t, w)
	assert.Equal(t, "duplicate_registration", resp["error_type"])
	assert.Equal(t, "Email уже подтвержден", resp["error"])

	w = env.do(http.MethodPost, "/api/register", validForm(), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Этот email уже зарегистрирован", parseJSONResponse(t, w)["error"])
}

func TestRegister_ErrorMapping(t *testing.T) {
	env := newHandlerEnv(t, 100)

	t.Run("validation lists fields", func(t *testing.T) {
		form := validForm()
		form["email"] = "broken"
		form["firstName"] = "1"
		w := env.do(http.MethodPost, "/api/register", form, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := parseJSONResponse(t, w)
		assert.Equal(t, "validation_error", resp["error_type"])
		fields := resp["fields"].(map[string]interface{})
		assert.Contains(t, fields, "email")
		assert.Contains(t, fields, "firstName")
	})

	t.Run("bot signals look like validation", func(t *testing.T) {
		invalid := validForm()
		invalid["firstName"] = "Ivan1"
		wv := env.do(http.MethodPost, "/api/register", invalid, nil)
		require.Equal(t, http.StatusBadRequest, wv.Code)

		honeypot := validForm()
		honeypot["honeypot"] = "spam"
		wh := env.do(http.MethodPost, "/api/register", honeypot, nil)
		assert.Equal(t, http.StatusBadRequest, wh.Code)
		assert.JSONEq(t, wv.Body.String(), wh.Body.String())

		tooFast := validForm()
		tooFast["formStartTime"] = time.Now().UnixMilli()
		wf := env.do(http.MethodPost, "/api/register", tooFast, nil)
		assert.Equal(t, http.StatusBadRequest, wf.Code)
		assert.JSONEq(t, wv.Body.String(), wf.Body.String())
	})

	t.Run("bot with invalid email matches plain validation", func(t *testing.T) {
		invalid := validForm()
		invalid["email"] = "broken"
		wv := env.do(http.MethodPost, "/api/register", invalid, nil)

		bot := validForm()
		bot["email"] = "broken"
		bot["honeypot"] = "spam"
		wb := env.do(http.MethodPost, "/api/register", bot, nil)
		assert.Equal(t, wv.Code, wb.Code)
		assert.JSONEq(t, wv.Body.String(), wb.Body.String())
	})

	t.Run("verify unknown email", func(t *testing.T) {
		w := env.do(http.MethodPost, "/api/verify", map[string]string{"email": "ghost@example.com", "code": "123456"}, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", parseJSONResponse(t, w)["error_type"])
	})
}

func TestRegister_CapacityExhausted(t *testing.T) {
	env := newHandlerEnv(t, 1)

	w := env.do(http.MethodPost, "/api/register", validForm(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/api/verify", map[string]string{"email": "ivan@example.com", "code": env.emails.code("ivan@example.com")}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	form := validForm()
	form["email"] = "maria@example.com"
	w = env.do(http.MethodPost, "/api/register", form, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "capacity_exhausted", parseJSONResponse(t, w)["error_type"])

	w = env.do(http.MethodGet, "/api/availability", nil, nil)
	assert.Equal(t, false, parseJSONResponse(t, w)["available"])
}

func TestResend_Cooldown(t *testing.T) {
	env := newHandlerEnv(t, 100)

	w := env.do(http.MethodPost, "/api/register", validForm(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(http.MethodPost, "/api/resend", map[string]string{"email": "ivan@example.com"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(http.MethodPost, "/api/resend", map[string]string{"email": "ivan@example.com"}, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "resend_cooldown", resp["error_type"])
	assert.Greater(t, resp["retry_after"].(float64), float64(0))
}

func TestStatsAndExport_RequireAdminToken(t *testing.T) {
	env := newHandlerEnv(t, 100)

	w := env.do(http.MethodGet, "/api/stats", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodGet, "/api/stats", nil, map[string]string{"Authorization": "Bearer wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(http.MethodPost, "/api/register", validForm(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(http.MethodPost, "/api/verify", map[string]string{"email": "ivan@example.com", "code": env.emails.code("ivan@example.com")}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	auth := map[string]string{"Authorization": "Bearer secret"}
	w = env.do(http.MethodGet, "/api/stats", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, float64(1), resp["total"])
	assert.Equal(t, float64(0), resp["pending"])
	assert.Len(t, resp["recent"], 1)

	w = env.do(http.MethodGet, "/api/admin/registrations/export?format=csv", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".csv")
	assert.True(t, strings.Contains(w.Body.String(), "ivan@example.com"))

	w = env.do(http.MethodGet, "/api/admin/registrations/export?format=xlsx", nil, auth)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")), "xlsx is a zip archive")
}

func TestStats_IncludesRecentAttempts(t *testing.T) {
	env := newHandlerEnv(t, 100)

	bot := validForm()
	bot["honeypot"] = "spam"
	bot["email"] = "bot@example.com"
	w := env.do(http.MethodPost, "/api/register", bot, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	w = env.do(http.MethodPost, "/api/register", validForm(), nil)
	require.Equal(t, http.StatusOK, w.Code)

	auth := map[string]string{"Authorization": "Bearer secret"}
	var attempts []interface{}
	require.Eventually(t, func() bool {
		w := env.do(http.MethodGet, "/api/stats", nil, auth)
		if w.Code != http.StatusOK {
			return false
		}
		var resp map[string]interface{}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			return false
		}
		attempts, _ = resp["recent_attempts"].([]interface{})
		return len(attempts) == 2
	}, 2*time.Second, 20*time.Millisecond)

	byEmail := map[string]map[string]interface{}{}
	for _, raw := range attempts {
		a := raw.(map[string]interface{})
		byEmail[a["email"].(string)] = a
	}
	assert.Equal(t, "honeypot triggered", byEmail["bot@example.com"]["failure_reason"])
	assert.Equal(t, false, byEmail["bot@example.com"]["success"])
	assert.Equal(t, "register", byEmail["ivan@example.com"]["action"])
	assert.Equal(t, true, byEmail["ivan@example.com"]["success"])
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]HealthCheck{
		"database": func(ctx context.Context) error { return nil },
	})
	c, w := newTestGinContext(http.MethodGet, "/health", nil)
	h.Health(c)

	assert.Equal(t, http.StatusOK, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["timestamp"])

	failing := NewHealthHandler(map[string]HealthCheck{
		"redis": func(ctx context.Context) error { return assert.AnError },
	})
	c, w = newTestGinContext(http.MethodGet, "/health", nil)
	failing.Health(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", parseJSONResponse(t, w)["status"])
}
