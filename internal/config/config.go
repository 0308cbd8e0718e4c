// Package config предоставляет структуры и функции для парсинга и загрузки конфига.
// Любое значение из YAML можно переопределить переменной окружения.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string        `yaml:"env" env:"APP_ENV" env-default:"local"`
	StorageConnectionString string        `yaml:"storage_connection_string" env:"DATABASE_URL" env-required:"true"`
	StorageTimeout          time.Duration `yaml:"storage_timeout" env:"STORAGE_TIMEOUT" env-default:"5s"`
	SideEffectTimeout       time.Duration `yaml:"side_effect_timeout" env:"SIDE_EFFECT_TIMEOUT" env-default:"1s"`
	AuditTimeout            time.Duration `yaml:"audit_timeout" env:"AUDIT_TIMEOUT" env-default:"1s"`
	MigrationsPath          string        `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"migrations"`
	GRPCAddress             string        `yaml:"grpc_address" env:"GRPC_ADDRESS" env-default:":50051"`
	Storage                 `yaml:"storage"`
	HTTPServer              `yaml:"http_server"`
	Webhook                 `yaml:"webhook"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	JWTToken                `yaml:"jwttoken"`
}

// Storage структура для настройки пула соединений с базой
type Storage struct {
	MaxOpenConns    int           `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"20"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"5"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env:"HTTP_ADDRESS" env-default:":3000"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env:"HTTP_TIMEOUT" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env:"HTTP_IDLE_TIMEOUT" env-default:"60s"`
}

// Webhook структура для настройки приёма вебхуков
type Webhook struct {
	// Secret пустой, если секрет не выдан: тогда каждый запрос получает 500.
	Secret       string   `yaml:"secret" env:"REVENUECAT_WEBHOOK_SECRET"`
	Providers    []string `yaml:"providers" env:"WEBHOOK_PROVIDERS" env-default:"revenuecat"`
	MaxBodyBytes int64    `yaml:"max_body_bytes" env:"WEBHOOK_MAX_BODY_BYTES" env-default:"262144"`
	RateLimitRPS float64  `yaml:"rate_limit_rps" env:"WEBHOOK_RATE_LIMIT_RPS" env-default:"100"`
	RateBurst    int      `yaml:"rate_burst" env:"WEBHOOK_RATE_BURST" env-default:"200"`
}

// RedisConnection структура для настройки подключения к redis.
// Пустой адрес отключает кэш.
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user" env:"REDIS_USER"`
	DB           int           `yaml:"db" env:"REDIS_DB" env-default:"0"`
	MaxRetries   int           `yaml:"max_retries" env:"REDIS_MAX_RETRIES" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env:"REDIS_DIAL_TIMEOUT" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env:"REDIS_TIMEOUT" env-default:"3s"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"5m"`
}

// RabbitMQ структура для настройки публикации уведомлений.
// Пустой URL отключает уведомления.
type RabbitMQ struct {
	URL      string `yaml:"url" env:"RABBITMQ_URL"`
	Exchange string `yaml:"exchange" env:"RABBITMQ_EXCHANGE" env-default:"entitlements"`
}

// JWTToken структура для работы с jwt-токеном операторского API
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env:"JWT_TOKEN_TTL" env-default:"1h"`
}

// ErrNoConfigPath возвращается, если путь к конфигу не задан.
var ErrNoConfigPath = errors.New("CONFIG_PATH is not set")

// ErrTimeoutBudget возвращается, если ответ на вебхук может не уложиться в таймаут HTTP.
var ErrTimeoutBudget = errors.New("http timeout is shorter than webhook processing deadlines")

// ProcessingBudget — худший срок обработки одной доставки: транзакция,
// шаги после фиксации и запись в аудит выполняются последовательно.
func (c *Config) ProcessingBudget() time.Duration {
	return c.StorageTimeout + c.SideEffectTimeout + c.AuditTimeout
}

// Load читает конфиг из YAML-файла path и переменных окружения.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	if path == "" {
		return nil, fmt.Errorf("%s: %w", op, ErrNoConfigPath)
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%s: file %s: %w", op, path, err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(cfg.Providers) == 0 {
		cfg.Providers = []string{"revenuecat"}
	}
	if cfg.TimeoutHTTP <= cfg.ProcessingBudget() {
		return nil, fmt.Errorf("%s: %w: timeouthttp %s, needs more than %s",
			op, ErrTimeoutBudget, cfg.TimeoutHTTP, cfg.ProcessingBudget())
	}
	return &cfg, nil
}

// MustLoad загружает конфиг по пути из CONFIG_PATH и завершает процесс при ошибке.
func MustLoad() *Config {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func mask(secret string) string {
	if secret == "" {
		return "<empty>"
	}
	return "******"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"StorageTimeout: %s\n"+
			"SideEffectTimeout: %s\n"+
			"AuditTimeout: %s\n"+
			"MigrationsPath: %s\n"+
			"GRPCAddress: %s\n"+
			"HTTPServer:\n"+
			"  Address: %s\n"+
			"  Timeout: %s\n"+
			"  IdleTimeout: %s\n"+
			"Webhook:\n"+
			"  Secret: %s\n"+
			"  Providers: %v\n"+
			"  MaxBodyBytes: %d\n"+
			"  RateLimit: %.1f rps, burst %d\n"+
			"RedisConnection:\n"+
			"  Addr: %s\n"+
			"  Password: %s\n"+
			"  DB: %d\n"+
			"  CacheTTL: %s\n"+
			"RabbitMQ:\n"+
			"  URL: %s\n"+
			"  Exchange: %s\n"+
			"JWTToken:\n"+
			"  JWTSecretKey: %s\n"+
			"  TokenTTL: %s\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.StorageTimeout,
		c.SideEffectTimeout,
		c.AuditTimeout,
		c.MigrationsPath,
		c.GRPCAddress,
		c.AddressHTTP,
		c.TimeoutHTTP,
		c.IdleTimeout,
		mask(c.Secret),
		c.Providers,
		c.MaxBodyBytes,
		c.RateLimitRPS,
		c.RateBurst,
		c.AddressRedis,
		mask(c.Password),
		c.DB,
		c.CacheTTL,
		mask(c.URL),
		c.Exchange,
		mask(c.JWTSecretKey),
		c.TokenTTL,
	)
}
