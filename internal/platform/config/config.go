package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"tradepost/internal/domain"
)

// Server captures process level configuration.
type Server struct {
	Addr string

	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// PostgresURL selects the database-backed store; empty runs in memory.
	PostgresURL string

	Redis RedisConfig

	// KafkaBrokers enables the Kafka audit sink when non-empty.
	KafkaBrokers []string
	KafkaTopic   string

	// Treasury is the escrow address all buyer payments land on.
	Treasury domain.Address

	// LedgerSeed pre-funds the in-memory ledger simulator, as
	// "addr=amount,addr=amount". Ignored when a real ledger is wired.
	LedgerSeed map[domain.Address]int64

	ItemCacheTTL time.Duration
	AuditBuffer  int
}

// RedisConfig holds connection settings for the item cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("TRADEPOST_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Use a default for development - should be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}
	jwtIssuer := os.Getenv("JWT_ISSUER")
	if jwtIssuer == "" {
		jwtIssuer = "tradepost"
	}
	jwtAudience := os.Getenv("JWT_AUDIENCE")
	if jwtAudience == "" {
		jwtAudience = "tradepost-api"
	}

	treasury := domain.Address(os.Getenv("TRADEPOST_TREASURY"))
	if treasury.IsZero() {
		treasury = "0xtreasury"
	}

	kafkaTopic := os.Getenv("KAFKA_AUDIT_TOPIC")
	if kafkaTopic == "" {
		kafkaTopic = "tradepost.audit"
	}

	return Server{
		Addr:          addr,
		JWTSigningKey: jwtSigningKey,
		JWTIssuer:     jwtIssuer,
		JWTAudience:   jwtAudience,
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		KafkaBrokers: envList("KAFKA_BROKERS"),
		KafkaTopic:   kafkaTopic,
		Treasury:     treasury,
		LedgerSeed:   envSeed("LEDGER_SEED"),
		ItemCacheTTL: envDuration("ITEM_CACHE_TTL", 5*time.Minute),
		AuditBuffer:  envInt("AUDIT_BUFFER", 256),
	}
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envSeed(key string) map[domain.Address]int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	seed := make(map[domain.Address]int64)
	for _, pair := range strings.Split(raw, ",") {
		addr, amount, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		value, err := strconv.ParseInt(amount, 10, 64)
		if err != nil {
			continue
		}
		seed[domain.Address(addr)] = value
	}
	return seed
}
