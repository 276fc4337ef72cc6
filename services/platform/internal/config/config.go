package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	base "github.com/AfshinJalili/sentinel/libs/config"
	"github.com/AfshinJalili/sentinel/services/platform/internal/security"
	"github.com/AfshinJalili/sentinel/services/platform/internal/storage"
)

type DBConfig struct {
	// URL takes precedence over the discrete fields when set.
	URL      string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string

	MaxConns int32
	MinConns int32
}

// ConnString returns the Postgres DSN.
func (c DBConfig) ConnString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}

type TokenConfig struct {
	Secret    string
	Algorithm string
	TTL       time.Duration
	Issuer    string
}

type RateLimitRedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type RateLimitConfig struct {
	LoginLimit int
	Window     time.Duration
	Redis      RateLimitRedisConfig
}

type KeyConfig struct {
	Tag           string
	MaxActiveKeys int
}

type UsageConfig struct {
	Enabled       bool
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	KafkaBrokers  []string
	Topic         string
	DLQTopic      string
	// StoreLogs keeps writing usage rows to the database when Kafka is on.
	StoreLogs bool
}

type Config struct {
	App         base.AppConfig
	StoreDriver string
	SQLitePath  string
	DB          DBConfig
	Token       TokenConfig
	Argon2      security.Argon2Params
	Keys        KeyConfig
	RateLimit   RateLimitConfig
	Usage       UsageConfig
}

// Load reads the server configuration. PLATFORM_SECRET_KEY is required.
func Load() (*Config, error) {
	return load(true)
}

// LoadAdmin reads the configuration for offline tooling, which never signs
// session tokens.
func LoadAdmin() (*Config, error) {
	return load(false)
}

func load(requireSecret bool) (*Config, error) {
	appCfg, err := base.Load(os.Getenv("SENTINEL_CONFIG"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App:         *appCfg,
		StoreDriver: envString("PLATFORM_STORE_DRIVER", storage.DriverPostgres),
		SQLitePath:  envString("PLATFORM_SQLITE_PATH", ""),
		DB: DBConfig{
			URL:      envString("PLATFORM_DATABASE_URL", ""),
			Host:     envString("POSTGRES_HOST", "localhost"),
			Port:     envInt("POSTGRES_PORT", 5432),
			Name:     envString("POSTGRES_DB", "sentinel"),
			User:     envString("POSTGRES_USER", "sentinel"),
			Password: envString("POSTGRES_PASSWORD", "sentinel"),
			SSLMode:  envString("POSTGRES_SSLMODE", "disable"),
			MaxConns: int32(envInt("PLATFORM_DB_MAX_CONNS", 20)),
			MinConns: int32(envInt("PLATFORM_DB_MIN_CONNS", 2)),
		},
		Token: TokenConfig{
			Secret:    envString("PLATFORM_SECRET_KEY", ""),
			Algorithm: envString("PLATFORM_ALGORITHM", "HS256"),
			TTL:       time.Duration(envInt("PLATFORM_ADMIN_JWT_EXPIRE_MINUTES", 60)) * time.Minute,
			Issuer:    envString("PLATFORM_JWT_ISSUER", ""),
		},
		Argon2: security.Argon2Params{
			Memory:      uint32(envInt("PLATFORM_ARGON2_MEMORY", 64*1024)),
			Iterations:  uint32(envInt("PLATFORM_ARGON2_ITERATIONS", 3)),
			Parallelism: uint8(envInt("PLATFORM_ARGON2_PARALLELISM", 2)),
			SaltLength:  uint32(envInt("PLATFORM_ARGON2_SALT_LENGTH", 16)),
			KeyLength:   uint32(envInt("PLATFORM_ARGON2_KEY_LENGTH", 32)),
		},
		Keys: KeyConfig{
			Tag:           envString("PLATFORM_API_KEY_TAG", "snt_"),
			MaxActiveKeys: envInt("PLATFORM_MAX_ACTIVE_KEYS", 5),
		},
		RateLimit: RateLimitConfig{
			LoginLimit: envInt("PLATFORM_LOGIN_RATE_LIMIT", 10),
			Window:     envDuration("PLATFORM_LOGIN_RATE_WINDOW", time.Minute),
			Redis: RateLimitRedisConfig{
				Addr:     envString("PLATFORM_RATE_LIMIT_REDIS_ADDR", ""),
				Password: envString("PLATFORM_RATE_LIMIT_REDIS_PASSWORD", ""),
				DB:       envInt("PLATFORM_RATE_LIMIT_REDIS_DB", 0),
				Prefix:   envString("PLATFORM_RATE_LIMIT_REDIS_PREFIX", "sentinel:platform:rl:"),
			},
		},
		Usage: UsageConfig{
			Enabled:       envBool("PLATFORM_USAGE_ENABLED", true),
			BufferSize:    envInt("PLATFORM_USAGE_BUFFER_SIZE", 1024),
			BatchSize:     envInt("PLATFORM_USAGE_BATCH_SIZE", 100),
			FlushInterval: envDuration("PLATFORM_USAGE_FLUSH_INTERVAL", 2*time.Second),
			KafkaBrokers:  envList("PLATFORM_KAFKA_BROKERS"),
			Topic:         envString("PLATFORM_USAGE_TOPIC", "platform.usage.v1"),
			DLQTopic:      envString("PLATFORM_USAGE_DLQ_TOPIC", ""),
			StoreLogs:     envBool("PLATFORM_USAGE_STORE_LOGS", true),
		},
	}

	if requireSecret && cfg.Token.Secret == "" {
		return nil, fmt.Errorf("PLATFORM_SECRET_KEY must be set")
	}
	if cfg.StoreDriver != storage.DriverPostgres && cfg.StoreDriver != storage.DriverSQLite {
		return nil, fmt.Errorf("PLATFORM_STORE_DRIVER must be %q or %q", storage.DriverPostgres, storage.DriverSQLite)
	}
	if err := cfg.Argon2.Validate(); err != nil {
		return nil, fmt.Errorf("argon2 params: %w", err)
	}

	return cfg, nil
}

// Store returns the storage configuration.
func (c *Config) Store() storage.Config {
	return storage.Config{
		Driver: c.StoreDriver,
		Postgres: storage.PoolConfig{
			ConnString: c.DB.ConnString(),
			MaxConns:   c.DB.MaxConns,
			MinConns:   c.DB.MinConns,
		},
		SQLitePath: c.SQLitePath,
	}
}

func (c *Config) TokenCodec() security.TokenConfig {
	return security.TokenConfig{
		Secret:    []byte(c.Token.Secret),
		Algorithm: c.Token.Algorithm,
		TTL:       c.Token.TTL,
		Issuer:    c.Token.Issuer,
	}
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
