package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Redis    RedisConfig    `toml:"redis"`
	Sources  SourcesConfig  `toml:"sources"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Catalog  CatalogConfig  `toml:"catalog"`
	Schedule ScheduleConfig `toml:"schedule"`
	Logging  LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string `toml:"port"`
	Host string `toml:"host"`
}

// DatabaseConfig holds PostgreSQL configuration. DSN, when set, wins over the parts.
type DatabaseConfig struct {
	DSN            string `toml:"dsn"`
	Host           string `toml:"host"`
	Port           string `toml:"port"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	DBName         string `toml:"dbname"`
	SSLMode        string `toml:"sslmode"`
	MigrationsPath string `toml:"migrations_path"`
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Enabled       bool     `toml:"enabled"`
	Brokers       []string `toml:"brokers"`
	EventsTopic   string   `toml:"events_topic"`
	RequestsTopic string   `toml:"requests_topic"`
	GroupID       string   `toml:"group_id"`
}

// RedisConfig holds the catalog snapshot cache configuration
type RedisConfig struct {
	Enabled  bool     `toml:"enabled"`
	Addr     string   `toml:"addr"`
	Password string   `toml:"password"`
	DB       int      `toml:"db"`
	Key      string   `toml:"key"`
	TTL      Duration `toml:"ttl"`
}

// SourceConfig configures one upstream price source
type SourceConfig struct {
	BaseURL    string   `toml:"base_url"`
	AltBaseURL string   `toml:"alt_base_url"`
	Timeout    Duration `toml:"timeout"`
	Interval   Duration `toml:"interval"`
}

// SourcesConfig groups the three upstreams
type SourcesConfig struct {
	TWSE  SourceConfig `toml:"twse"`
	TPEx  SourceConfig `toml:"tpex"`
	Yahoo SourceConfig `toml:"yahoo"`
}

// PipelineConfig controls update batches
type PipelineConfig struct {
	Workers      int      `toml:"workers"`
	BatchTimeout Duration `toml:"batch_timeout"`
	DefaultStart string   `toml:"default_start"`
	SymbolLimit  int      `toml:"symbol_limit"`
}

// CatalogConfig controls the symbol catalog cache
type CatalogConfig struct {
	TTL Duration `toml:"ttl"`
}

// ScheduleConfig controls the cron-driven incremental update
type ScheduleConfig struct {
	Enabled bool     `toml:"enabled"`
	Cron    string   `toml:"cron"`
	Symbols []string `toml:"symbols"`
}

// LoggingConfig holds the log level
type LoggingConfig struct {
	Level string `toml:"level"`
}

// Duration is a time.Duration written as "1.5s" in TOML
type Duration struct {
	time.Duration
}

// UnmarshalText parses a Go duration string
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText renders the duration
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", Host: "0.0.0.0"},
		Database: DatabaseConfig{
			Host:           "localhost",
			Port:           "5432",
			User:           "postgres",
			Password:       "postgres",
			DBName:         "twstock",
			SSLMode:        "disable",
			MigrationsPath: "db/migrations",
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			EventsTopic:   "twstock.prices",
			RequestsTopic: "twstock.update-requests",
			GroupID:       "twstock-service",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			Key:  "twstock:catalog",
			TTL:  Duration{time.Hour},
		},
		Sources: SourcesConfig{
			TWSE: SourceConfig{
				BaseURL:  "https://www.twse.com.tw",
				Timeout:  Duration{15 * time.Second},
				Interval: Duration{1500 * time.Millisecond},
			},
			TPEx: SourceConfig{
				BaseURL:  "https://www.tpex.org.tw",
				Timeout:  Duration{15 * time.Second},
				Interval: Duration{500 * time.Millisecond},
			},
			Yahoo: SourceConfig{
				BaseURL:    "https://query1.finance.yahoo.com",
				AltBaseURL: "https://query2.finance.yahoo.com",
				Timeout:    Duration{10 * time.Second},
				Interval:   Duration{500 * time.Millisecond},
			},
		},
		Pipeline: PipelineConfig{
			Workers:      4,
			BatchTimeout: Duration{30 * time.Minute},
			DefaultStart: "2023-01-01",
			SymbolLimit:  50,
		},
		Catalog:  CatalogConfig{TTL: Duration{time.Hour}},
		Schedule: ScheduleConfig{Cron: "0 30 14 * * 1-5"},
		Logging:  LoggingConfig{Level: "info"},
	}
}

// Load reads .env, then the TOML file named by TWSTOCK_CONFIG if any, then
// environment variable overrides
func Load() (*Config, error) {
	// a missing .env is normal outside development
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("TWSTOCK_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Server.Port = getEnv("SERVER_PORT", c.Server.Port)
	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)

	c.Database.DSN = getEnv("DATABASE_URL", c.Database.DSN)
	c.Database.Host = getEnv("DB_HOST", c.Database.Host)
	c.Database.Port = getEnv("DB_PORT", c.Database.Port)
	c.Database.User = getEnv("DB_USER", c.Database.User)
	c.Database.Password = getEnv("DB_PASSWORD", c.Database.Password)
	c.Database.DBName = getEnv("DB_NAME", c.Database.DBName)
	c.Database.SSLMode = getEnv("DB_SSLMODE", c.Database.SSLMode)
	c.Database.MigrationsPath = getEnv("DB_MIGRATIONS_PATH", c.Database.MigrationsPath)

	c.Kafka.Enabled = getEnvBool("KAFKA_ENABLED", c.Kafka.Enabled)
	c.Kafka.Brokers = getEnvList("KAFKA_BROKERS", c.Kafka.Brokers)
	c.Kafka.EventsTopic = getEnv("KAFKA_TOPIC", c.Kafka.EventsTopic)
	c.Kafka.RequestsTopic = getEnv("KAFKA_REQUESTS_TOPIC", c.Kafka.RequestsTopic)
	c.Kafka.GroupID = getEnv("KAFKA_GROUP_ID", c.Kafka.GroupID)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Pipeline.Workers = getEnvInt("PIPELINE_WORKERS", c.Pipeline.Workers)
	c.Pipeline.BatchTimeout.Duration = getEnvDuration("PIPELINE_BATCH_TIMEOUT", c.Pipeline.BatchTimeout.Duration)
	c.Pipeline.DefaultStart = getEnv("PIPELINE_DEFAULT_START", c.Pipeline.DefaultStart)
	c.Pipeline.SymbolLimit = getEnvInt("PIPELINE_SYMBOL_LIMIT", c.Pipeline.SymbolLimit)

	c.Catalog.TTL.Duration = getEnvDuration("CATALOG_TTL", c.Catalog.TTL.Duration)

	c.Schedule.Enabled = getEnvBool("SCHEDULE_ENABLED", c.Schedule.Enabled)
	c.Schedule.Cron = getEnv("SCHEDULE_CRON", c.Schedule.Cron)
	c.Schedule.Symbols = getEnvList("SCHEDULE_SYMBOLS", c.Schedule.Symbols)

	c.Logging.Level = getEnv("LOG_LEVEL", c.Logging.Level)
}

// Validate rejects settings the service cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("pipeline.workers must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.BatchTimeout.Duration <= 0 {
		errs = append(errs, errors.New("pipeline.batch_timeout must be positive"))
	}
	if _, err := time.Parse("2006-01-02", c.Pipeline.DefaultStart); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.default_start: %w", err))
	}
	for name, s := range map[string]SourceConfig{"twse": c.Sources.TWSE, "tpex": c.Sources.TPEx, "yahoo": c.Sources.Yahoo} {
		if s.Timeout.Duration <= 0 {
			errs = append(errs, fmt.Errorf("sources.%s.timeout must be positive", name))
		}
		if s.Interval.Duration < 0 {
			errs = append(errs, fmt.Errorf("sources.%s.interval must not be negative", name))
		}
	}
	if c.Catalog.TTL.Duration <= 0 {
		errs = append(errs, errors.New("catalog.ttl must be positive"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("kafka.brokers is required when kafka is enabled"))
	}
	if c.Schedule.Enabled {
		parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
		if _, err := parser.Parse(c.Schedule.Cron); err != nil {
			errs = append(errs, fmt.Errorf("schedule.cron: %w", err))
		}
	}
	return errors.Join(errs...)
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	if d.DSN != "" {
		return d.DSN
	}
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
