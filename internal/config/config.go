package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures the runtime configuration for the application.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Ledger   LedgerConfig
	Cure     CureConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
}

// ServerConfig configures the HTTP server runtime behavior.
type ServerConfig struct {
	Addr string
}

// DatabaseConfig contains the database connection settings.
type DatabaseConfig struct {
	URL             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	UseMock         bool
}

type LoggingConfig struct {
	Level string
}

// LedgerConfig tunes balance arithmetic and write retries.
type LedgerConfig struct {
	Epsilon     float64
	MaxRetries  int
	AuditKey    string
	StrictUnits bool
}

// CureConfig is the fallback nitrite band used when the settings table has no override.
type CureConfig struct {
	PpmMin    float64
	PpmTarget float64
	PpmMax    float64
}

// RedisConfig enables cross-process lot locks when URL is set.
type RedisConfig struct {
	URL     string
	LockTTL time.Duration
}

// KafkaConfig enables recall notices when Brokers is non-empty.
type KafkaConfig struct {
	Brokers     []string
	RecallTopic string
}

// Load inspects the environment and builds a Config value.
func Load() (Config, error) {
	cfg := Config{}

	cfg.Server = ServerConfig{
		Addr: firstNonEmpty(
			os.Getenv("SERVER_ADDR"),
			os.Getenv("ADDR"),
			":8080",
		),
	}

	cfg.Database = DatabaseConfig{
		URL: firstNonEmpty(
			os.Getenv("DATABASE_URL"),
			os.Getenv("DB_URL"),
			"",
		),
		MaxIdleConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_IDLE_CONNS"), 5),
		MaxOpenConns:    parseIntWithDefault(os.Getenv("DATABASE_MAX_OPEN_CONNS"), 20),
		ConnMaxLifetime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_LIFETIME"), 30*time.Minute),
		ConnMaxIdleTime: parseDurationWithDefault(os.Getenv("DATABASE_CONN_MAX_IDLE_TIME"), 5*time.Minute),
		UseMock:         parseBoolWithDefault(os.Getenv("DATABASE_USE_MOCK"), false),
	}

	cfg.Logging = LoggingConfig{
		Level: firstNonEmpty(os.Getenv("LOG_LEVEL"), "info"),
	}

	cfg.Ledger = LedgerConfig{
		Epsilon:     parseFloatWithDefault(os.Getenv("LEDGER_EPSILON"), 1e-6),
		MaxRetries:  parseIntWithDefault(os.Getenv("LEDGER_MAX_RETRIES"), 3),
		AuditKey:    os.Getenv("LEDGER_AUDIT_KEY"),
		StrictUnits: parseBoolWithDefault(os.Getenv("LEDGER_STRICT_UNITS"), false),
	}

	cfg.Cure = CureConfig{
		PpmMin:    parseFloatWithDefault(os.Getenv("CURE_PPM_MIN"), 120),
		PpmTarget: parseFloatWithDefault(os.Getenv("CURE_PPM_TARGET"), 150),
		PpmMax:    parseFloatWithDefault(os.Getenv("CURE_PPM_MAX"), 156),
	}

	cfg.Redis = RedisConfig{
		URL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		LockTTL: parseDurationWithDefault(os.Getenv("REDIS_LOCK_TTL"), 10*time.Second),
	}

	cfg.Kafka = KafkaConfig{
		Brokers:     splitList(os.Getenv("KAFKA_BROKERS")),
		RecallTopic: firstNonEmpty(os.Getenv("KAFKA_RECALL_TOPIC"), "smokehouse.lot-recalls"),
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return Config{}, fmt.Errorf("server address must not be empty")
	}
	if cfg.Ledger.Epsilon <= 0 {
		return Config{}, fmt.Errorf("ledger epsilon must be positive")
	}
	if cfg.Ledger.MaxRetries < 0 {
		return Config{}, fmt.Errorf("ledger max retries must not be negative")
	}
	if len(cfg.Ledger.AuditKey) > 64 {
		return Config{}, fmt.Errorf("ledger audit key must be at most 64 bytes")
	}
	if cfg.Cure.PpmMin > cfg.Cure.PpmTarget || cfg.Cure.PpmTarget > cfg.Cure.PpmMax {
		return Config{}, fmt.Errorf("cure ppm band must satisfy min <= target <= max")
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func parseIntWithDefault(value string, def int) int {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseFloatWithDefault(value string, def float64) float64 {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return def
	}
	return parsed
}

func parseDurationWithDefault(value string, def time.Duration) time.Duration {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func parseBoolWithDefault(value string, def bool) bool {
	if strings.TrimSpace(value) == "" {
		return def
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return def
	}
	return parsed
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
