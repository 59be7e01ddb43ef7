package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yourusername/eventreg-api/internal/config"
	"github.com/yourusername/eventreg-api/internal/domain/repository"
	"github.com/yourusername/eventreg-api/internal/handler"
	"github.com/yourusername/eventreg-api/internal/metrics"
	"github.com/yourusername/eventreg-api/internal/middleware"
	memRepo "github.com/yourusername/eventreg-api/internal/repository/memory"
	pgRepo "github.com/yourusername/eventreg-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/eventreg-api/internal/repository/redis"
	"github.com/yourusername/eventreg-api/internal/service"
	ws "github.com/yourusername/eventreg-api/internal/websocket"
	"github.com/yourusername/eventreg-api/pkg/database"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// stores собирает реализации репозиториев для выбранного драйвера
type stores struct {
	registrations repository.RegistrationRepository
	attempts      repository.AttemptRepository
	cooldowns     repository.CooldownRepository
	rateCounter   repository.RateCounterRepository
	pubsub        ws.PubSubProvider
	checks        map[string]handler.HealthCheck
	closers       []func() error
}

func (s *stores) Close(logger *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("failed to close resource", zap.Error(err))
		}
	}
}

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped with error", zap.Error(err))
		os.Exit(1)
	}
	logger.Info("Server exited properly")
}

func run(cfg *config.Config, logger *zap.Logger) error {
	// Контекст приложения отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close(logger)

	m := metrics.New(prometheus.DefaultRegisterer)

	emailService, err := newEmailService(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize email service: %w", err)
	}

	attemptLog := service.NewAttemptLog(st.attempts, cfg.Registration.AttemptLogBuffer, m, logger)

	registrationService, err := service.NewRegistrationService(
		st.registrations, emailService, attemptLog, st.cooldowns, m, logger,
		service.RegistrationConfig{
			MaxParticipants: cfg.Registration.MaxParticipants,
			CodeTTL:         cfg.Registration.CodeTTL,
			MinFormFillTime: cfg.Registration.MinFormFillTime,
			ResendCooldown:  cfg.Registration.ResendCooldown,
			NotifyTimeout:   cfg.Registration.NotifyTimeout,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to initialize RegistrationService: %w", err)
	}

	statsService, err := service.NewStatsService(st.registrations, st.attempts, registrationService.Gate())
	if err != nil {
		return fmt.Errorf("failed to initialize StatsService: %w", err)
	}

	hub := ws.NewHub(st.pubsub, cfg.Redis.AvailabilityChannel, m, logger)
	registrationService.SetAvailabilityPublisher(hub)

	// Стартовое значение gauge до первого подтверждения
	if availability, err := registrationService.GetAvailability(ctx); err == nil {
		m.SetVerified(availability.CurrentCount)
	}

	router, err := newRouter(cfg, logger, routerDeps{
		registrations: handler.NewRegistrationHandler(registrationService, statsService, logger),
		ws:            handler.NewWSHandler(hub, registrationService, cfg.CORS.AllowedOrigins, logger),
		health:        handler.NewHealthHandler(st.checks),
		rateLimiter:   middleware.NewRateLimiter(st.rateCounter, logger),
	})
	if err != nil {
		return err
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", srv.Addr, err)
	}
	logger.Info("Starting server",
		zap.String("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Driver),
		zap.Bool("redis", cfg.Redis.Enabled),
		zap.String("email", cfg.Email.Provider),
		zap.Int64("max_participants", registrationService.Gate().Max()))

	return serve(ctx, srv, ln, attemptLog, cfg.Server.ShutdownTimeout, logger, hub.Run)
}

// serve обслуживает HTTP до отмены ctx. Журнал попыток останавливается только
// после srv.Shutdown: запросы, завершающиеся во время остановки, еще пишут в него.
func serve(
	ctx context.Context,
	srv *http.Server,
	ln net.Listener,
	attemptLog *service.AttemptLog,
	shutdownTimeout time.Duration,
	logger *zap.Logger,
	workers ...func(context.Context) error,
) error {
	attemptCtx, stopAttempts := context.WithCancel(context.Background())
	defer stopAttempts()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return attemptLog.Run(attemptCtx) })
	for _, worker := range workers {
		g.Go(func() error { return worker(gctx) })
	}
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		defer stopAttempts()
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server forced to shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, error) {
	st := &stores{checks: map[string]handler.HealthCheck{}}

	if cfg.Database.UsesPostgres() {
		db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString(), cfg.Log.Development)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		st.closers = append(st.closers, sqlDB.Close)

		if cfg.Database.AutoMigrate {
			if err := database.MigrateDB(db, cfg.Database.MigrationsDir, logger); err != nil {
				st.Close(logger)
				return nil, fmt.Errorf("failed to migrate database: %w", err)
			}
		}

		st.registrations = pgRepo.NewRegistrationRepo(db)
		st.attempts = pgRepo.NewAttemptRepo(db)
		st.checks["database"] = sqlDB.PingContext
	} else {
		logger.Warn("using in-memory storage, data is lost on restart")
		st.registrations = memRepo.NewRegistrationRepo()
		st.attempts = memRepo.NewAttemptRepo()
	}

	if !cfg.Redis.Enabled {
		st.cooldowns = memRepo.NewCooldownRepo(nil)
		st.rateCounter = memRepo.NewRateCounterRepo(nil)
		return st, nil
	}

	redisClient, err := database.NewUniversalRedisClient(ctx, cfg.Redis)
	if err != nil {
		st.Close(logger)
		return nil, err
	}
	st.closers = append(st.closers, redisClient.Close)
	logger.Info("Successfully connected to Redis", zap.String("mode", cfg.Redis.Mode))

	if err := attachRedis(st, redisClient, logger); err != nil {
		st.Close(logger)
		return nil, err
	}
	return st, nil
}

func attachRedis(st *stores, client redis.UniversalClient, logger *zap.Logger) error {
	cooldowns, err := redisRepo.NewCooldownRepo(client, "")
	if err != nil {
		return fmt.Errorf("failed to initialize CooldownRepo: %w", err)
	}
	rateCounter, err := redisRepo.NewRateCounterRepo(client)
	if err != nil {
		return fmt.Errorf("failed to initialize RateCounterRepo: %w", err)
	}
	pubsub, err := ws.NewRedisPubSub(client, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize Redis PubSub: %w", err)
	}

	st.cooldowns = cooldowns
	st.rateCounter = rateCounter
	st.pubsub = pubsub
	st.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	return nil
}

func newEmailService(cfg *config.Config, logger *zap.Logger) (service.EmailService, error) {
	switch cfg.Email.Provider {
	case "resend":
		return service.NewResendEmailService(cfg.Email.ResendAPIKey, cfg.Email.From, cfg.Registration.CodeTTL)
	case "smtp":
		return service.NewSMTPEmailService(cfg.Email.SMTPHost, cfg.Email.SMTPPort, cfg.Email.SMTPUser, cfg.Email.SMTPPassword, cfg.Email.From, cfg.Registration.CodeTTL)
	case "log", "":
		logger.Warn("verification codes are written to the log instead of being emailed")
		return service.NewLogEmailService(logger), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}

type routerDeps struct {
	registrations *handler.RegistrationHandler
	ws            *handler.WSHandler
	health        *handler.HealthHandler
	rateLimiter   *middleware.RateLimiter
}

func newRouter(cfg *config.Config, logger *zap.Logger, deps routerDeps) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(middleware.RequestID(), middleware.RequestLogger(logger), gin.Recovery())

	// Настройка доверенных прокси для корректной работы c.ClientIP().
	// Пустой список: не доверяем прокси-заголовкам (защита от IP spoofing)
	var proxies []string
	if len(cfg.Server.TrustedProxies) > 0 {
		proxies = cfg.Server.TrustedProxies
	}
	if err := router.SetTrustedProxies(proxies); err != nil {
		return nil, fmt.Errorf("failed to set trusted proxies: %w", err)
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", "Retry-After", middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	api := router.Group("/api")
	if cfg.RateLimit.Enabled {
		api.Use(deps.rateLimiter.LimitByIP(middleware.RateLimitConfig{
			MaxRequests: cfg.RateLimit.MaxRequests,
			Window:      cfg.RateLimit.Window,
			KeyPrefix:   middleware.DefaultAPIRateLimitConfig().KeyPrefix,
		}))
	}
	{
		api.GET("/availability", deps.registrations.GetAvailability)
		api.POST("/register", deps.registrations.Register)
		api.POST("/verify", deps.registrations.Verify)
		api.POST("/resend", deps.registrations.Resend)

		// Маршруты для организаторов
		admin := api.Group("")
		admin.Use(middleware.RequireAdminToken(cfg.Admin.Token))
		{
			admin.GET("/stats", deps.registrations.GetStats)
			admin.GET("/admin/registrations/export", deps.registrations.ExportParticipants)
		}
	}

	// WebSocket маршрут
	router.GET("/ws", deps.ws.HandleConnection)

	router.GET("/health", deps.health.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return router, nil
}
