package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/mateit-cloudware/mate-sentinel/internal/security"
)

type Config struct {
	Server  ServerConfig
	Threat  ThreatConfig
	Auth    AuthConfig
	Alert   AlertConfig
	AuditDB AuditDBConfig
}

type ServerConfig struct {
	Port           string
	Env            string `validate:"oneof=development staging production"`
	LogLevel       string
	TrustedProxies []string
	OuterIPLimit   int `validate:"gte=0"` // httprate guard on /auth, requests per minute
}

// ThreatConfig carries the engine tunables. Every missing value falls back
// to a hardcoded default; a missing limit never fails startup.
type ThreatConfig struct {
	IPPerMinute         int `validate:"gte=0"`
	IPPerHour           int `validate:"gte=0"`
	UserPerMinute       int `validate:"gte=0"`
	UserPerHour         int `validate:"gte=0"`
	EndpointLimits      []security.EndpointLimit
	MaxLoginAttempts    int           `validate:"gte=1"`
	BaseLockout         time.Duration `validate:"gt=0"`
	MaxLockout          time.Duration `validate:"gt=0"`
	ProgressiveLockout  bool
	ScorePerThreat      int           `validate:"gte=1"`
	SuspiciousThreshold int           `validate:"gte=1"`
	BlockThreshold      int           `validate:"gte=1"`
	MaxScanDepth        int           `validate:"gte=1,lte=32"`
	MaxEvents           int           `validate:"gte=1"`
	EventRetention      time.Duration `validate:"gt=0"`
	SweepInterval       time.Duration `validate:"gt=0"`
	MaxBodyScanBytes    int64         `validate:"gte=1024"`
}

type AuthConfig struct {
	JWTSecret         string        `validate:"required,min=16"`
	AccessTokenExpiry time.Duration `validate:"gt=0"`
	AdminEmail        string
	AdminPasswordHash string
}

type AlertConfig struct {
	EmailEnabled   bool
	AWSRegion      string
	FromAddress    string
	ToAddresses    []string
	DispatchPerMin int           `validate:"gte=1"` // throttle on outbound alerts
	Timeout        time.Duration `validate:"gt=0"`
}

type AuditDBConfig struct {
	Enabled           bool
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

var validate = validator.New()

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: getEnvAsList("TRUSTED_PROXIES", nil),
			OuterIPLimit:   getEnvAsInt("OUTER_IP_LIMIT_PER_MINUTE", 30),
		},
		Threat: ThreatConfig{
			IPPerMinute:         getEnvAsInt("RATE_LIMIT_IP_PER_MINUTE", 100),
			IPPerHour:           getEnvAsInt("RATE_LIMIT_IP_PER_HOUR", 2000),
			UserPerMinute:       getEnvAsInt("RATE_LIMIT_USER_PER_MINUTE", 300),
			UserPerHour:         getEnvAsInt("RATE_LIMIT_USER_PER_HOUR", 5000),
			EndpointLimits:      parseEndpointLimits(getEnv("RATE_LIMIT_ENDPOINTS", "")),
			MaxLoginAttempts:    getEnvAsInt("MAX_LOGIN_ATTEMPTS", 5),
			BaseLockout:         getEnvAsDuration("LOCKOUT_BASE_DURATION", 15*time.Minute),
			MaxLockout:          getEnvAsDuration("LOCKOUT_MAX_DURATION", 24*time.Hour),
			ProgressiveLockout:  getEnvAsBool("PROGRESSIVE_LOCKOUT", true),
			ScorePerThreat:      getEnvAsInt("SUSPICION_SCORE_PER_THREAT", 10),
			SuspiciousThreshold: getEnvAsInt("SUSPICION_THRESHOLD", 30),
			BlockThreshold:      getEnvAsInt("BLOCK_THRESHOLD", 100),
			MaxScanDepth:        getEnvAsInt("MAX_SCAN_DEPTH", 5),
			MaxEvents:           getEnvAsInt("MAX_SECURITY_EVENTS", 10000),
			EventRetention:      getEnvAsDuration("EVENT_RETENTION", 7*24*time.Hour),
			SweepInterval:       getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			MaxBodyScanBytes:    int64(getEnvAsInt("MAX_BODY_SCAN_BYTES", 64*1024)),
		},
		Auth: AuthConfig{
			JWTSecret:         jwtSecret,
			AccessTokenExpiry: getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			AdminEmail:        getEnv("ADMIN_EMAIL", ""),
			AdminPasswordHash: getEnv("ADMIN_PASSWORD_HASH", ""),
		},
		Alert: AlertConfig{
			EmailEnabled:   getEnvAsBool("ALERT_EMAIL_ENABLED", false),
			AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
			FromAddress:    getEnv("ALERT_FROM_ADDRESS", ""),
			ToAddresses:    getEnvAsList("ALERT_TO_ADDRESSES", nil),
			DispatchPerMin: getEnvAsInt("ALERT_DISPATCH_PER_MINUTE", 10),
			Timeout:        getEnvAsDuration("ALERT_TIMEOUT", 5*time.Second),
		},
		AuditDB: AuditDBConfig{
			Enabled:           getEnvAsBool("AUDIT_DB_ENABLED", false),
			Host:              getEnv("AUDIT_DB_HOST", "localhost"),
			Port:              getEnvAsInt("AUDIT_DB_PORT", 5432),
			User:              getEnv("AUDIT_DB_USER", "postgres"),
			Password:          getEnv("AUDIT_DB_PASSWORD", ""),
			Name:              getEnv("AUDIT_DB_NAME", "sentinel"),
			SSLMode:           getEnv("AUDIT_DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("AUDIT_DB_MAX_CONNS", 10)),
			MinConns:          int32(getEnvAsInt("AUDIT_DB_MIN_CONNS", 2)),
			MaxConnLifetime:   getEnvAsDuration("AUDIT_DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("AUDIT_DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("AUDIT_DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
	}

	if cfg.AuditDB.Enabled && cfg.AuditDB.Password == "" {
		return nil, fmt.Errorf("AUDIT_DB_PASSWORD is required when the audit database is enabled")
	}
	if cfg.Alert.EmailEnabled && (cfg.Alert.FromAddress == "" || len(cfg.Alert.ToAddresses) == 0) {
		return nil, fmt.Errorf("ALERT_FROM_ADDRESS and ALERT_TO_ADDRESSES are required when email alerts are enabled")
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// EngineConfig maps the loaded settings onto the engine's config structs.
func (c *Config) EngineConfig() security.Config {
	return security.Config{
		RateLimit: security.RateLimitConfig{
			IPPerMinute:   c.Threat.IPPerMinute,
			IPPerHour:     c.Threat.IPPerHour,
			UserPerMinute: c.Threat.UserPerMinute,
			UserPerHour:   c.Threat.UserPerHour,
			Endpoints:     c.Threat.EndpointLimits,
		},
		BruteForce: security.BruteForceConfig{
			MaxAttempts: c.Threat.MaxLoginAttempts,
			BaseLockout: c.Threat.BaseLockout,
			MaxLockout:  c.Threat.MaxLockout,
			Progressive: c.Threat.ProgressiveLockout,
		},
		Registry: security.RegistryConfig{
			ScorePerThreat:      c.Threat.ScorePerThreat,
			SuspiciousThreshold: c.Threat.SuspiciousThreshold,
			BlockThreshold:      c.Threat.BlockThreshold,
		},
		Scorer: security.ScorerConfig{
			MaxScanDepth: c.Threat.MaxScanDepth,
		},
		MaxEvents:      c.Threat.MaxEvents,
		EventRetention: c.Threat.EventRetention,
	}
}

func (c *AuditDBConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// parseEndpointLimits parses "prefix=perMinute:perHour" pairs separated by
// commas, e.g. "/auth=10:100,/api/admin=60:600". Malformed entries are
// skipped so a typo never takes down startup.
func parseEndpointLimits(raw string) []security.EndpointLimit {
	if raw == "" {
		return []security.EndpointLimit{
			{Prefix: "/auth", PerMinute: 10, PerHour: 100},
			{Prefix: "/api/admin", PerMinute: 60, PerHour: 600},
		}
	}

	var limits []security.EndpointLimit
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		prefix, budgets, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(prefix, "/") {
			continue
		}
		perMinuteStr, perHourStr, _ := strings.Cut(budgets, ":")
		perMinute, err := strconv.Atoi(perMinuteStr)
		if err != nil || perMinute < 0 {
			continue
		}
		perHour := 0
		if perHourStr != "" {
			if v, err := strconv.Atoi(perHourStr); err == nil && v >= 0 {
				perHour = v
			}
		}
		limits = append(limits, security.EndpointLimit{Prefix: prefix, PerMinute: perMinute, PerHour: perHour})
	}
	return limits
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultVal
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
