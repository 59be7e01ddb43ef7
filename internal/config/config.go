package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config хранит все настройки приложения
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Registration RegistrationConfig `mapstructure:"registration"`
	Email        EmailConfig        `mapstructure:"email"`
	CORS         CORSConfig         `mapstructure:"cors"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Admin        AdminConfig        `mapstructure:"admin"`
	Log          LogConfig          `mapstructure:"log"`
}

// ServerConfig содержит настройки HTTP сервера
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TrustedProxies  []string      `mapstructure:"trusted_proxies"`
	Mode            string        `mapstructure:"mode"`
}

// DatabaseConfig содержит настройки подключения к PostgreSQL.
// Driver "memory" запускает сервис без базы (для разработки).
type DatabaseConfig struct {
	Driver        string `mapstructure:"driver"`
	Host          string `mapstructure:"host"`
	Port          string `mapstructure:"port"`
	User          string `mapstructure:"user"`
	Password      string `mapstructure:"password"`
	DBName        string `mapstructure:"dbname"`
	SSLMode       string `mapstructure:"sslmode"`
	MigrationsDir string `mapstructure:"migrations_dir"`
	AutoMigrate   bool   `mapstructure:"auto_migrate"`
}

// RedisConfig содержит унифицированные настройки подключения к Redis
// Поддерживает режимы: single, sentinel, cluster
type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// Mode: Режим работы Redis ("single", "sentinel", "cluster"). По умолчанию "single".
	Mode string `mapstructure:"mode"`

	// Addrs: Список адресов Redis (хост:порт).
	Addrs []string `mapstructure:"addrs"`

	// Addr: Адрес для режима 'single', если Addrs пустой.
	Addr string `mapstructure:"addr"`

	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`

	// MasterName: Имя мастер-сервера Redis (только для режима "sentinel")
	MasterName string `mapstructure:"master_name"`

	MaxRetries      int `mapstructure:"max_retries"`
	MinRetryBackoff int `mapstructure:"min_retry_backoff"`
	MaxRetryBackoff int `mapstructure:"max_retry_backoff"`

	// AvailabilityChannel: канал Pub/Sub для обновлений доступности мест
	AvailabilityChannel string `mapstructure:"availability_channel"`
}

// RegistrationConfig содержит параметры регистрации на мероприятие
type RegistrationConfig struct {
	MaxParticipants  int64         `mapstructure:"max_participants"`
	CodeTTL          time.Duration `mapstructure:"code_ttl"`
	MinFormFillTime  time.Duration `mapstructure:"min_form_fill_time"`
	ResendCooldown   time.Duration `mapstructure:"resend_cooldown"`
	NotifyTimeout    time.Duration `mapstructure:"notify_timeout"`
	AttemptLogBuffer int           `mapstructure:"attempt_log_buffer"`
}

// EmailConfig содержит настройки отправки писем.
// Provider: "resend", "smtp" или "log".
type EmailConfig struct {
	Provider     string `mapstructure:"provider"`
	From         string `mapstructure:"from"`
	ResendAPIKey string `mapstructure:"resend_api_key"`
	SMTPHost     string `mapstructure:"smtp_host"`
	SMTPPort     int    `mapstructure:"smtp_port"`
	SMTPUser     string `mapstructure:"smtp_user"`
	SMTPPassword string `mapstructure:"smtp_password"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// RateLimitConfig ограничивает число запросов к /api/* с одного IP
type RateLimitConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// PostgresConnectionString формирует строку подключения к PostgreSQL
func (d *DatabaseConfig) PostgresConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// PostgresURL формирует URL для golang-migrate
func (d *DatabaseConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

// UsesPostgres сообщает, нужна ли сервису база данных
func (d *DatabaseConfig) UsesPostgres() bool {
	return d.Driver == "" || d.Driver == "postgres"
}

func setDefaults(vip *viper.Viper) {
	vip.SetDefault("server.port", "8080")
	vip.SetDefault("server.read_timeout", 15*time.Second)
	vip.SetDefault("server.write_timeout", 15*time.Second)
	vip.SetDefault("server.shutdown_timeout", 10*time.Second)
	vip.SetDefault("server.mode", "release")

	vip.SetDefault("database.driver", "postgres")
	vip.SetDefault("database.port", "5432")
	vip.SetDefault("database.sslmode", "disable")
	vip.SetDefault("database.migrations_dir", "migrations")
	vip.SetDefault("database.auto_migrate", true)

	vip.SetDefault("redis.mode", "single")
	vip.SetDefault("redis.availability_channel", "eventreg:availability")

	vip.SetDefault("registration.max_participants", 100)
	vip.SetDefault("registration.code_ttl", 15*time.Minute)
	vip.SetDefault("registration.min_form_fill_time", 3*time.Second)
	vip.SetDefault("registration.resend_cooldown", 60*time.Second)
	vip.SetDefault("registration.notify_timeout", 30*time.Second)
	vip.SetDefault("registration.attempt_log_buffer", 1024)

	vip.SetDefault("email.provider", "log")
	vip.SetDefault("email.smtp_port", 587)

	vip.SetDefault("cors.allowed_origins", []string{"http://localhost:3000", "http://localhost:5173"})

	vip.SetDefault("rate_limit.enabled", true)
	vip.SetDefault("rate_limit.max_requests", 10)
	vip.SetDefault("rate_limit.window", 15*time.Minute)

	vip.SetDefault("log.level", "info")
}

func bindEnv(vip *viper.Viper) {
	binds := map[string]string{
		"server.port":            "PORT",
		"server.mode":            "GIN_MODE",
		"server.trusted_proxies": "TRUSTED_PROXIES",

		"database.driver":         "DATABASE_DRIVER",
		"database.host":           "DATABASE_HOST",
		"database.port":           "DATABASE_PORT",
		"database.user":           "DATABASE_USER",
		"database.password":       "DATABASE_PASSWORD",
		"database.dbname":         "DATABASE_DBNAME",
		"database.sslmode":        "DATABASE_SSLMODE",
		"database.migrations_dir": "DATABASE_MIGRATIONS_DIR",
		"database.auto_migrate":   "DATABASE_AUTO_MIGRATE",

		"redis.enabled":     "REDIS_ENABLED",
		"redis.mode":        "REDIS_MODE",
		"redis.addrs":       "REDIS_ADDRS",
		"redis.addr":        "REDIS_ADDR",
		"redis.password":    "REDIS_PASSWORD",
		"redis.db":          "REDIS_DB",
		"redis.master_name": "REDIS_MASTER_NAME",

		"registration.max_participants":   "MAX_PARTICIPANTS",
		"registration.code_ttl":           "CODE_TTL",
		"registration.min_form_fill_time": "MIN_FORM_FILL_TIME",
		"registration.resend_cooldown":    "RESEND_COOLDOWN",
		"registration.notify_timeout":     "NOTIFY_TIMEOUT",

		"email.provider":       "EMAIL_PROVIDER",
		"email.from":           "EMAIL_FROM",
		"email.resend_api_key": "RESEND_API_KEY",
		"email.smtp_host":      "EMAIL_HOST",
		"email.smtp_port":      "EMAIL_PORT",
		"email.smtp_user":      "EMAIL_USER",
		"email.smtp_password":  "EMAIL_PASSWORD",

		"cors.allowed_origins": "CORS_ALLOWED_ORIGINS",

		"rate_limit.enabled":      "RATE_LIMIT_ENABLED",
		"rate_limit.max_requests": "RATE_LIMIT_MAX_REQUESTS",
		"rate_limit.window":       "RATE_LIMIT_WINDOW",

		"admin.token": "ADMIN_TOKEN",

		"log.level":       "LOG_LEVEL",
		"log.development": "LOG_DEVELOPMENT",
	}
	for key, env := range binds {
		vip.BindEnv(key, env)
	}
}

// Load загружает конфигурацию: .env, затем файл (если задан), затем переменные окружения.
func Load(configPath string) (*Config, error) {
	// .env необязателен, в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	vip := viper.New()
	setDefaults(vip)
	bindEnv(vip)

	if configPath != "" {
		vip.SetConfigFile(configPath)
		if err := vip.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file %q: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := vip.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Списки из переменных окружения приходят строкой через запятую
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)
	cfg.Redis.Addrs = splitList(cfg.Redis.Addrs)
	cfg.Server.TrustedProxies = splitList(cfg.Server.TrustedProxies)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	if c.Registration.MaxParticipants <= 0 {
		return fmt.Errorf("registration.max_participants must be positive (check MAX_PARTICIPANTS env var)")
	}

	switch c.Database.Driver {
	case "", "postgres":
		if c.Database.Host == "" || c.Database.DBName == "" || c.Database.User == "" {
			return fmt.Errorf("database configuration (host, dbname, user) is incomplete (check DATABASE_HOST, DATABASE_DBNAME, DATABASE_USER env vars)")
		}
		if c.Server.Mode == "release" && c.Database.Password == "" {
			return fmt.Errorf("database password is required in release mode (check DATABASE_PASSWORD env var)")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	if c.Redis.Enabled && len(c.Redis.Addrs) == 0 && c.Redis.Addr == "" {
		return fmt.Errorf("redis is enabled but no address is configured (check REDIS_ADDR env var)")
	}

	switch c.Email.Provider {
	case "resend":
		if c.Email.ResendAPIKey == "" || c.Email.From == "" {
			return fmt.Errorf("resend provider requires RESEND_API_KEY and EMAIL_FROM")
		}
	case "smtp":
		if c.Email.SMTPHost == "" {
			return fmt.Errorf("smtp provider requires EMAIL_HOST")
		}
	case "log":
		if c.Server.Mode == "release" {
			return fmt.Errorf("email provider 'log' is not allowed in release mode")
		}
	default:
		return fmt.Errorf("unsupported email provider: %s", c.Email.Provider)
	}

	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.Window <= 0) {
		return fmt.Errorf("rate_limit requires positive max_requests and window")
	}
	return nil
}

func splitList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
