package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Config holds runtime configuration values for the blogpress server.
type Config struct {
	ServerPort    int
	LogLevel      string
	LogFormat     string
	Environment   string
	SentryDSN     string
	ShutdownGrace time.Duration

	DBDriver     string
	DBPath       string
	DatabaseURL  string
	StoreTimeout time.Duration

	JWTSecret string
	JWTIssuer string
	JWTTTL    time.Duration

	Admin     AdminSeed
	Media     Media
	RateLimit RateLimit

	RedisURL string
}

// AdminSeed describes the optional administrator created at startup.
type AdminSeed struct {
	Email    string
	Username string
	Password string
}

// Media configures thumbnail storage.
type Media struct {
	Backend        string
	Dir            string
	BaseURL        string
	MaxBytes       int64
	StorageTimeout time.Duration
	S3             S3
}

// S3 configures an S3-compatible object store (AWS, R2, MinIO).
type S3 struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	PublicURL string
}

// RateLimit configures the request limiter.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
	ClientTTL         time.Duration
	// TrustProxyHeaders keys clients by X-Forwarded-For / X-Real-IP. Enable only
	// behind a proxy that overwrites them.
	TrustProxyHeaders bool
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	MediaLocal = "local"
	MediaS3    = "s3"
)

const (
	defaultServerPort     = 8080
	defaultLogLevel       = "info"
	defaultEnvironment    = "development"
	defaultShutdownGrace  = 10 * time.Second
	defaultDBPath         = "./data/blogpress.db"
	defaultStoreTimeout   = 5 * time.Second
	defaultJWTIssuer      = "blogpress"
	defaultJWTTTL         = 24 * time.Hour
	defaultMediaDir       = "./data/uploads"
	defaultMediaBaseURL   = "/uploads"
	defaultMediaMaxBytes  = 5 << 20
	defaultStorageTimeout = 15 * time.Second
	defaultS3Region       = "auto"
	defaultRateLimitRPS   = 5
	defaultRateLimitBurst = 20
	defaultRateLimitTTL   = 10 * time.Minute
)

// Load reads configuration values from environment variables, applying defaults where necessary.
func Load() (*Config, error) {
	cfg := &Config{
		LogLevel:    getEnv("LOG_LEVEL", defaultLogLevel),
		LogFormat:   strings.ToLower(getEnv("LOG_FORMAT", "json")),
		Environment: getEnv("ENV", defaultEnvironment),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		DBDriver:    strings.ToLower(getEnv("DB_DRIVER", DriverSQLite)),
		DBPath:      getEnv("DB_PATH", defaultDBPath),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		JWTSecret:   os.Getenv("JWT_SECRET"),
		JWTIssuer:   getEnv("JWT_ISSUER", defaultJWTIssuer),
		RedisURL:    os.Getenv("REDIS_URL"),
		Admin: AdminSeed{
			Email:    os.Getenv("ADMIN_EMAIL"),
			Username: getEnv("ADMIN_USERNAME", "admin"),
			Password: os.Getenv("ADMIN_PASSWORD"),
		},
		Media: Media{
			Backend: strings.ToLower(getEnv("MEDIA_BACKEND", MediaLocal)),
			Dir:     getEnv("MEDIA_DIR", defaultMediaDir),
			BaseURL: getEnv("MEDIA_BASE_URL", defaultMediaBaseURL),
			S3: S3{
				Endpoint:  os.Getenv("S3_ENDPOINT"),
				Region:    getEnv("S3_REGION", defaultS3Region),
				Bucket:    os.Getenv("S3_BUCKET"),
				AccessKey: os.Getenv("S3_ACCESS_KEY"),
				SecretKey: os.Getenv("S3_SECRET_KEY"),
				PublicURL: os.Getenv("S3_PUBLIC_URL"),
			},
		},
	}

	var err error
	if cfg.ServerPort, err = getInt("SERVER_PORT", defaultServerPort); err != nil {
		return nil, err
	}
	if cfg.ShutdownGrace, err = getDuration("SHUTDOWN_GRACE", defaultShutdownGrace); err != nil {
		return nil, err
	}
	if cfg.StoreTimeout, err = getDuration("STORE_TIMEOUT", defaultStoreTimeout); err != nil {
		return nil, err
	}
	if cfg.JWTTTL, err = getDuration("JWT_TTL", defaultJWTTTL); err != nil {
		return nil, err
	}
	if cfg.Media.MaxBytes, err = getInt64("MEDIA_MAX_BYTES", defaultMediaMaxBytes); err != nil {
		return nil, err
	}
	if cfg.Media.StorageTimeout, err = getDuration("STORAGE_TIMEOUT", defaultStorageTimeout); err != nil {
		return nil, err
	}
	if cfg.RateLimit.RequestsPerSecond, err = getFloat("RATE_LIMIT_RPS", defaultRateLimitRPS); err != nil {
		return nil, err
	}
	if cfg.RateLimit.Burst, err = getInt("RATE_LIMIT_BURST", defaultRateLimitBurst); err != nil {
		return nil, err
	}
	if cfg.RateLimit.ClientTTL, err = getDuration("RATE_LIMIT_TTL", defaultRateLimitTTL); err != nil {
		return nil, err
	}
	if cfg.RateLimit.TrustProxyHeaders, err = getBool("TRUST_PROXY_HEADERS", false); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports configuration combinations the server cannot start with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return eris.New("JWT_SECRET is required")
	}

	switch c.DBDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DBPath) == "" {
			return eris.New("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return eris.New("DATABASE_URL is required for the postgres driver")
		}
	default:
		return eris.Errorf("unsupported DB_DRIVER: %s", c.DBDriver)
	}

	switch c.Media.Backend {
	case MediaLocal:
	case MediaS3:
		if strings.TrimSpace(c.Media.S3.Bucket) == "" {
			return eris.New("S3_BUCKET is required for the s3 media backend")
		}
	default:
		return eris.Errorf("unsupported MEDIA_BACKEND: %s", c.Media.Backend)
	}

	if c.Media.MaxBytes <= 0 {
		return eris.New("MEDIA_MAX_BYTES must be greater than zero")
	}
	if c.RateLimit.Burst <= 0 || c.RateLimit.RequestsPerSecond <= 0 {
		return eris.New("rate limit burst and requests per second must be greater than zero")
	}
	if c.Admin.Email != "" && c.Admin.Password == "" {
		return eris.New("ADMIN_PASSWORD is required when ADMIN_EMAIL is set")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getInt64(key string, fallback int64) (int64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, eris.Wrapf(err, "invalid %s value: %s", key, raw)
	}
	return value, nil
}
