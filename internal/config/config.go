package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Log      LogConfig      `mapstructure:"log"`
	Security SecurityConfig `mapstructure:"security"`
	TOTP     TOTPConfig     `mapstructure:"totp"`
	Realtime RealtimeConfig `mapstructure:"realtime"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	TLS  struct {
		Enabled  bool   `mapstructure:"enabled"`
		CertFile string `mapstructure:"cert_file"`
		KeyFile  string `mapstructure:"key_file"`
	} `mapstructure:"tls"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	Password     PasswordConfig     `mapstructure:"password"`
	Tokens       TokenConfig        `mapstructure:"tokens"`
	Sessions     SessionConfig      `mapstructure:"sessions"`
	Lockout      LockoutConfig      `mapstructure:"lockout"`
	Abuse        AbuseConfig        `mapstructure:"abuse"`
	RateLimiting RateLimitingConfig `mapstructure:"rate_limiting"`
}

// PasswordConfig holds password hashing configuration
type PasswordConfig struct {
	MinLength         int    `mapstructure:"min_length"`
	Argon2Memory      uint32 `mapstructure:"argon2_memory"`
	Argon2Iterations  uint32 `mapstructure:"argon2_iterations"`
	Argon2Parallelism uint8  `mapstructure:"argon2_parallelism"`
}

// TokenConfig holds JWT token configuration
type TokenConfig struct {
	// AdminTokenTTL applies to tokens issued to admin-role accounts.
	AdminTokenTTL time.Duration `mapstructure:"admin_token_ttl"`
	// StandardTokenTTL applies to customer and seller tokens.
	StandardTokenTTL time.Duration `mapstructure:"standard_token_ttl"`
	Issuer           string        `mapstructure:"issuer"`
	// SigningKeySeed is a hex-encoded 32-byte Ed25519 seed. When empty an
	// ephemeral key is generated at startup and tokens do not survive
	// restarts (dev mode).
	SigningKeySeed string `mapstructure:"signing_key_seed"`
}

// SessionConfig holds session lifetime configuration
type SessionConfig struct {
	AdminWindow    time.Duration `mapstructure:"admin_window"`
	StandardWindow time.Duration `mapstructure:"standard_window"`
	SweepInterval  time.Duration `mapstructure:"sweep_interval"`
}

// LockoutConfig holds account lockout configuration
type LockoutConfig struct {
	MaxFailedAttempts int           `mapstructure:"max_failed_attempts"`
	Duration          time.Duration `mapstructure:"duration"`
}

// AbuseConfig holds suspicious-IP tracking configuration
type AbuseConfig struct {
	// BlockThreshold is the number of flagged events within Window that
	// latches an IP to blocked.
	BlockThreshold int           `mapstructure:"block_threshold"`
	Window         time.Duration `mapstructure:"window"`
	// HistorySize bounds the per-IP event ring buffer.
	HistorySize int `mapstructure:"history_size"`
}

// RateLimitingConfig holds rate limiting configuration
type RateLimitingConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	LoginLimit      int           `mapstructure:"login_limit"`
	AdminLoginLimit int           `mapstructure:"admin_login_limit"`
	LoginWindow     time.Duration `mapstructure:"login_window"`
	DefaultLimit    int           `mapstructure:"default_limit"`
	DefaultWindow   time.Duration `mapstructure:"default_window"`
}

// TOTPConfig holds time-based one-time password configuration
type TOTPConfig struct {
	Issuer string `mapstructure:"issuer"`
	Digits int    `mapstructure:"digits"`
	Period int    `mapstructure:"period"`
	// BackupCodeCount is the number of single-use recovery codes minted
	// when two-factor auth is enabled.
	BackupCodeCount int `mapstructure:"backup_code_count"`
}

// RealtimeConfig holds websocket gateway configuration
type RealtimeConfig struct {
	// AuthGracePeriod is how long a connection may stay unauthenticated
	// before it is closed.
	AuthGracePeriod time.Duration `mapstructure:"auth_grace_period"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	// SendBuffer is the per-connection outbound queue size; a full queue
	// drops the event (at-most-once delivery).
	SendBuffer     int      `mapstructure:"send_buffer"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads configuration from file and environment variables
func Load() (*Config, error) {
	v := viper.New()

	// Set config file name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/tradegate")

	// Set defaults
	setDefaults(v)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults and env vars
	}

	// Bind environment variables
	v.SetEnvPrefix("TRADEGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unmarshal config
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.tls.enabled", false)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "tradegate")
	v.SetDefault("database.user", "tradegate")
	v.SetDefault("database.password", "")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_connections", 25)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Security defaults
	v.SetDefault("security.password.min_length", 12)
	v.SetDefault("security.password.argon2_memory", 65536)
	v.SetDefault("security.password.argon2_iterations", 3)
	v.SetDefault("security.password.argon2_parallelism", 4)

	v.SetDefault("security.tokens.admin_token_ttl", "4h")
	v.SetDefault("security.tokens.standard_token_ttl", "24h")
	v.SetDefault("security.tokens.issuer", "tradegate")
	v.SetDefault("security.tokens.signing_key_seed", "")

	v.SetDefault("security.sessions.admin_window", "4h")
	v.SetDefault("security.sessions.standard_window", "24h")
	v.SetDefault("security.sessions.sweep_interval", "15m")

	v.SetDefault("security.lockout.max_failed_attempts", 5)
	v.SetDefault("security.lockout.duration", "2h")

	v.SetDefault("security.abuse.block_threshold", 10)
	v.SetDefault("security.abuse.window", "1h")
	v.SetDefault("security.abuse.history_size", 50)

	v.SetDefault("security.rate_limiting.enabled", true)
	v.SetDefault("security.rate_limiting.login_limit", 10)
	v.SetDefault("security.rate_limiting.admin_login_limit", 5)
	v.SetDefault("security.rate_limiting.login_window", "15m")
	v.SetDefault("security.rate_limiting.default_limit", 100)
	v.SetDefault("security.rate_limiting.default_window", "1m")

	// TOTP defaults
	v.SetDefault("totp.issuer", "TradeGate")
	v.SetDefault("totp.digits", 6)
	v.SetDefault("totp.period", 30)
	v.SetDefault("totp.backup_code_count", 10)

	// Realtime defaults
	v.SetDefault("realtime.auth_grace_period", "10s")
	v.SetDefault("realtime.write_timeout", "10s")
	v.SetDefault("realtime.send_buffer", 64)
	v.SetDefault("realtime.allowed_origins", []string{"http://localhost:3000"})
}
