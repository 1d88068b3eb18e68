package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

var Cfg Config

type Config struct {
	// 服务配置
	ServerPort  string `env:"SERVER_PORT" envDefault:"8888"`
	ServerHost  string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"` // development, staging, production
	ServiceName string `env:"SERVICE_NAME" envDefault:"goalengine"`

	// PostgreSQL 配置（通知注册表）
	PostgreSQLHost     string `env:"POSTGRESQL_HOST" envDefault:"localhost"`
	PostgreSQLPort     string `env:"POSTGRESQL_PORT" envDefault:"5432"`
	PostgreSQLUser     string `env:"POSTGRESQL_USER" envDefault:"postgres"`
	PostgreSQLPassword string `env:"POSTGRESQL_PASSWORD" envDefault:"postgres"`
	PostgreSQLDatabase string `env:"POSTGRESQL_DATABASE" envDefault:"goalengine"`
	PostgreSQLSchema   string `env:"POSTGRESQL_SCHEMA" envDefault:"public"`
	PostgreSQLSSLMode  string `env:"POSTGRESQL_SSLMODE" envDefault:"disable"`
	PostgreSQLMaxIdle  int    `env:"POSTGRESQL_MAX_IDLE" envDefault:"10"`
	PostgreSQLMaxOpen  int    `env:"POSTGRESQL_MAX_OPEN" envDefault:"50"`

	// Redis 配置（标记、读缓存失效、通知权限）
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	RedisPrefix   string `env:"REDIS_PREFIX" envDefault:"goal"`

	// RabbitMQ 配置（通知投递、next-up 推送）
	RabbitMQAddr     string `env:"RABBITMQ_ADDR" envDefault:"localhost"`
	RabbitMQPort     string `env:"RABBITMQ_PORT" envDefault:"5672"`
	RabbitMQUsername string `env:"RABBITMQ_USERNAME" envDefault:"guest"`
	RabbitMQPassword string `env:"RABBITMQ_PASSWORD" envDefault:"guest"`
	RabbitMQVhost    string `env:"RABBITMQ_VHOST" envDefault:"/"`

	// JWT 配置，只做校验，不负责签发用户 token
	JWTSecret string `env:"JWT_SECRET"`

	// 后端 REST API 配置
	BackendBaseURL     string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8080"`
	BackendJWTSecret   string        `env:"BACKEND_JWT_SECRET"` // 服务间调用签名用
	BackendServiceName string        `env:"BACKEND_SERVICE_NAME" envDefault:"goalengine"`
	BackendTimeout     time.Duration `env:"BACKEND_TIMEOUT" envDefault:"5s"`

	// 计划生成轮询
	PlanPollInterval time.Duration `env:"PLAN_POLL_INTERVAL" envDefault:"3s"`

	// 通知配置
	NotifyBackend          string        `env:"NOTIFY_BACKEND" envDefault:"postgres"` // postgres, memory
	NotifyDefaultGranted   bool          `env:"NOTIFY_DEFAULT_GRANTED" envDefault:"true"`
	DispatchInterval       time.Duration `env:"DISPATCH_INTERVAL" envDefault:"30s"`
	DispatchBatchSize      int           `env:"DISPATCH_BATCH_SIZE" envDefault:"200"`
	ReengagementDelayHours int           `env:"REENGAGEMENT_DELAY_HOURS" envDefault:"24"`

	// Snowflake ID 生成器配置
	SnowflakeMachineID  int64 `env:"SNOWFLAKE_MACHINE_ID" envDefault:"1"`
	SnowflakeDataCenter int64 `env:"SNOWFLAKE_DATACENTER_ID" envDefault:"1"`

	// 日志配置
	LoggerLevel      string `env:"LOGGER_LEVEL" envDefault:"INFO"`
	LoggerFormat     string `env:"LOGGER_FORMAT" envDefault:"text"` // json, text
	LoggerOutputPath string `env:"LOGGER_OUTPUT_PATH" envDefault:"stdout"`

	// 链路追踪配置
	OTLPEndpoint   string  `env:"OTLP_ENDPOINT"`
	TracingSampler float64 `env:"TRACING_SAMPLER" envDefault:"0.1"`
	ServiceVersion string  `env:"SERVICE_VERSION" envDefault:"dev"`

	// 速率限制配置
	RateLimitEnabled bool `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
}

func init() {
	if err := godotenv.Load(); err != nil {
		log.Printf("WARN: Cannot load .env file: %v, using environment variables", err)
	}

	Cfg = Config{}
	if err := env.Parse(&Cfg); err != nil {
		log.Fatalf("Failed to parse environment variables: %v", err)
	}

	validateConfig()
}

func validateConfig() {
	if Cfg.JWTSecret == "" {
		log.Printf("WARN: JWT_SECRET is not set, the API server will refuse to start")
	}

	if Cfg.BackendJWTSecret == "" {
		log.Printf("WARN: BACKEND_JWT_SECRET is not set, backend requests will be sent without a service token")
	}

	if Cfg.PlanPollInterval <= 0 {
		log.Printf("WARN: PLAN_POLL_INTERVAL must be positive, falling back to 3s")
		Cfg.PlanPollInterval = 3 * time.Second
	}

	if Cfg.DispatchInterval <= 0 {
		log.Printf("WARN: DISPATCH_INTERVAL must be positive, falling back to 30s")
		Cfg.DispatchInterval = 30 * time.Second
	}

	if Cfg.ReengagementDelayHours <= 0 {
		Cfg.ReengagementDelayHours = 24
	}

	if Cfg.NotifyBackend != "postgres" && Cfg.NotifyBackend != "memory" {
		log.Printf("WARN: unknown NOTIFY_BACKEND %q, using postgres", Cfg.NotifyBackend)
		Cfg.NotifyBackend = "postgres"
	}
}

func (c *Config) GetDSN() string {
	return "host=" + c.PostgreSQLHost +
		" port=" + c.PostgreSQLPort +
		" user=" + c.PostgreSQLUser +
		" password=" + c.PostgreSQLPassword +
		" dbname=" + c.PostgreSQLDatabase +
		" sslmode=" + c.PostgreSQLSSLMode +
		" search_path=" + c.PostgreSQLSchema
}

func (c *Config) GetRabbitMQURL() string {
	return "amqp://" + c.RabbitMQUsername + ":" + c.RabbitMQPassword + "@" + c.RabbitMQAddr + ":" + c.RabbitMQPort + c.RabbitMQVhost
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) UseMemoryNotifier() bool {
	return c.NotifyBackend == "memory"
}
