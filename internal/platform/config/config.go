package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr            string
	Environment     string
	LogLevel        string
	ShutdownTimeout time.Duration
	TxTimeout       time.Duration
	// MaxShareTTL caps the lifetime a share session may be created with.
	MaxShareTTL time.Duration

	Auth      AuthConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Blob      BlobConfig
	Engine    EngineConfig
	RateLimit RateLimitConfig
}

// AuthConfig configures signer token validation.
type AuthConfig struct {
	JWTSigningKey string
	Issuer        string
	Audience      string
}

// DatabaseConfig selects PostgreSQL storage. Empty URL means in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig enables the share status cache. Empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StatusTTL    time.Duration
}

// KafkaConfig enables access-change publishing. No brokers disables it.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	ClientID    string
	EnsureTopic bool

	// RunSyncer consumes the topic in-process and applies each change to the
	// confidential engine.
	RunSyncer     bool
	ConsumerGroup string
}

// BlobConfig configures S3 presigning. Empty bucket disables the blob endpoints.
type BlobConfig struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	PresignExpires time.Duration
}

// RateLimitConfig sizes the per-key token buckets. Public routes are keyed by
// client IP, authenticated routes by signer.
type RateLimitConfig struct {
	Disabled        bool
	PublicPerSecond float64
	PublicBurst     int
	SignerPerSecond float64
	SignerBurst     int
}

// EngineConfig configures the in-process dev confidential engine.
// Empty key means a random key per process.
type EngineConfig struct {
	KeyHex string
}

// FromEnv builds a Server config from PRIVYLOCKER_* environment variables so main stays lean.
func FromEnv() (Server, error) {
	var errs []string
	dur := func(name string, def time.Duration) time.Duration {
		v, err := durationEnv(name, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	flt := func(name string, def float64) float64 {
		v, err := floatEnv(name, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}
	num := func(name string, def int) int {
		v, err := intEnv(name, def)
		if err != nil {
			errs = append(errs, err.Error())
		}
		return v
	}

	cfg := Server{
		Addr:            stringEnv("PRIVYLOCKER_ADDR", ":8080"),
		Environment:     stringEnv("PRIVYLOCKER_ENV", "local"),
		LogLevel:        stringEnv("PRIVYLOCKER_LOG_LEVEL", "info"),
		ShutdownTimeout: dur("PRIVYLOCKER_SHUTDOWN_TIMEOUT", 10*time.Second),
		TxTimeout:       dur("PRIVYLOCKER_TX_TIMEOUT", 5*time.Second),
		MaxShareTTL:     dur("PRIVYLOCKER_MAX_SHARE_TTL", 0),
		Auth: AuthConfig{
			// Use a default for development - should be overridden in production
			JWTSigningKey: stringEnv("PRIVYLOCKER_JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			Issuer:        stringEnv("PRIVYLOCKER_JWT_ISSUER", "privylocker"),
			Audience:      stringEnv("PRIVYLOCKER_JWT_AUDIENCE", "privylocker-api"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("PRIVYLOCKER_DATABASE_URL"),
			MaxOpenConns:    num("PRIVYLOCKER_DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    num("PRIVYLOCKER_DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: dur("PRIVYLOCKER_DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
			AutoMigrate:     os.Getenv("PRIVYLOCKER_DATABASE_AUTO_MIGRATE") != "false",
		},
		Redis: RedisConfig{
			URL:          os.Getenv("PRIVYLOCKER_REDIS_URL"),
			PoolSize:     num("PRIVYLOCKER_REDIS_POOL_SIZE", 10),
			MinIdleConns: num("PRIVYLOCKER_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  dur("PRIVYLOCKER_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  dur("PRIVYLOCKER_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: dur("PRIVYLOCKER_REDIS_WRITE_TIMEOUT", 3*time.Second),
			StatusTTL:    dur("PRIVYLOCKER_REDIS_STATUS_TTL", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:       listEnv("PRIVYLOCKER_KAFKA_BROKERS"),
			Topic:         stringEnv("PRIVYLOCKER_KAFKA_TOPIC", "privylocker.access-changes"),
			ClientID:      stringEnv("PRIVYLOCKER_KAFKA_CLIENT_ID", "privylocker"),
			EnsureTopic:   os.Getenv("PRIVYLOCKER_KAFKA_ENSURE_TOPIC") == "true",
			RunSyncer:     os.Getenv("PRIVYLOCKER_KAFKA_RUN_SYNCER") == "true",
			ConsumerGroup: stringEnv("PRIVYLOCKER_KAFKA_CONSUMER_GROUP", "privylocker-access-syncer"),
		},
		Blob: BlobConfig{
			Bucket:         os.Getenv("PRIVYLOCKER_BLOB_BUCKET"),
			Region:         stringEnv("PRIVYLOCKER_BLOB_REGION", "us-east-1"),
			Endpoint:       os.Getenv("PRIVYLOCKER_BLOB_ENDPOINT"),
			AccessKey:      os.Getenv("PRIVYLOCKER_BLOB_ACCESS_KEY"),
			SecretKey:      os.Getenv("PRIVYLOCKER_BLOB_SECRET_KEY"),
			PresignExpires: dur("PRIVYLOCKER_BLOB_PRESIGN_EXPIRES", 15*time.Minute),
		},
		Engine: EngineConfig{
			KeyHex: os.Getenv("PRIVYLOCKER_DEV_ENGINE_KEY"),
		},
		RateLimit: RateLimitConfig{
			Disabled:        os.Getenv("PRIVYLOCKER_RATE_LIMIT_DISABLED") == "true",
			PublicPerSecond: flt("PRIVYLOCKER_RATE_LIMIT_PUBLIC_RPS", 5),
			PublicBurst:     num("PRIVYLOCKER_RATE_LIMIT_PUBLIC_BURST", 20),
			SignerPerSecond: flt("PRIVYLOCKER_RATE_LIMIT_SIGNER_RPS", 20),
			SignerBurst:     num("PRIVYLOCKER_RATE_LIMIT_SIGNER_BURST", 50),
		},
	}

	if len(errs) > 0 {
		return Server{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

func stringEnv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", name)
	}
	return d, nil
}

func intEnv(name string, def int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	return n, nil
}

func floatEnv(name string, def float64) (float64, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("%s: must be positive", name)
	}
	return f, nil
}

func listEnv(name string) []string {
	raw := os.Getenv(name)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
