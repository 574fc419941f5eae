// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

// configPath is filled by the --config flag before the other flags resolve
// their TOML sources.
var configPath = "config.toml"

var configFile = altsrc.NewStringPtrSourcer(&configPath)

type Config struct { //nolint:govet // fieldalignment not critical for config structs
	Server   ServerConfig
	Log      LogConfig
	Database DatabaseConfig
	Auth     AuthConfig
	SMTP     SMTPConfig
	Storage  StorageConfig
}

type ServerConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host          string
	Port          int
	BaseURL       string
	FrontendURL   string // used for links in outgoing emails
	MaxBodySize   int    // in MB
	UploadMaxSize int    // in MB, report uploads only
	RateLimit     float64
	RateBurst     int
	Dev           bool
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // text, json
}

type DatabaseConfig struct {
	DSN string
}

type AuthConfig struct { //nolint:govet // fieldalignment not critical for config structs
	JWTSecret       string
	SessionDuration time.Duration
	RefreshDuration time.Duration
	RefreshHashKey  string // 32-byte hex string for HMAC signing
	RefreshBlockKey string // 32-byte hex string for AES encryption (optional)
	OTPSecret       string // keys the OTP hash, defaults to JWTSecret
	MaxFailedLogins int
	LockoutDuration time.Duration
}

type SMTPConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	TLS      bool
}

type StorageConfig struct { //nolint:govet // fieldalignment not critical for config structs
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// Enabled reports whether report storage is configured.
func (s StorageConfig) Enabled() bool {
	return s.Bucket != ""
}

func NewFromCLI(cmd *cli.Command) *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host:          cmd.String("host"),
			Port:          int(cmd.Int("port")),
			BaseURL:       cmd.String("base-url"),
			FrontendURL:   cmd.String("frontend-url"),
			MaxBodySize:   int(cmd.Int("max-body-size")),
			UploadMaxSize: int(cmd.Int("upload-max-size")),
			RateLimit:     cmd.Float("rate-limit"),
			RateBurst:     int(cmd.Int("rate-burst")),
			Dev:           cmd.Bool("dev"),
		},
		Log: LogConfig{
			Level:  cmd.String("log-level"),
			Format: cmd.String("log-format"),
		},
		Database: DatabaseConfig{
			DSN: cmd.String("database-dsn"),
		},
		Auth: AuthConfig{
			JWTSecret:       cmd.String("jwt-secret"),
			SessionDuration: time.Duration(cmd.Int("session-duration")) * time.Hour,
			RefreshDuration: time.Duration(cmd.Int("refresh-duration")) * time.Hour,
			RefreshHashKey:  cmd.String("refresh-hash-key"),
			RefreshBlockKey: cmd.String("refresh-block-key"),
			OTPSecret:       cmd.String("otp-secret"),
			MaxFailedLogins: int(cmd.Int("max-failed-logins")),
			LockoutDuration: time.Duration(cmd.Int("lockout-minutes")) * time.Minute,
		},
		SMTP: SMTPConfig{
			Host:     cmd.String("smtp-host"),
			Port:     int(cmd.Int("smtp-port")),
			Username: cmd.String("smtp-username"),
			Password: cmd.String("smtp-password"),
			From:     cmd.String("smtp-from"),
			FromName: cmd.String("smtp-from-name"),
			TLS:      cmd.Bool("smtp-tls"),
		},
		Storage: StorageConfig{
			Endpoint:     cmd.String("s3-endpoint"),
			Region:       cmd.String("s3-region"),
			Bucket:       cmd.String("s3-bucket"),
			AccessKey:    cmd.String("s3-access-key"),
			SecretKey:    cmd.String("s3-secret-key"),
			UsePathStyle: cmd.Bool("s3-use-path-style"),
		},
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = buildBaseURL(cfg)
	}
	cfg.Server.BaseURL = strings.TrimSuffix(cfg.Server.BaseURL, "/")
	if cfg.Server.FrontendURL == "" {
		cfg.Server.FrontendURL = cfg.Server.BaseURL
	}
	cfg.Server.FrontendURL = strings.TrimSuffix(cfg.Server.FrontendURL, "/")

	return cfg
}

func buildBaseURL(cfg *Config) string {
	host := cfg.Server.Host
	port := cfg.Server.Port
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}

	// Hide default port in URL
	if port == 80 {
		return fmt.Sprintf("http://%s", host)
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// Validate checks settings that must be present before the server starts.
// Outside dev mode, missing secrets are fatal instead of falling back to
// well-known defaults.
func (c *Config) Validate() error {
	var errs []error

	if !c.Server.Dev {
		if c.Auth.JWTSecret == "" {
			errs = append(errs, errors.New("jwt secret is required (set JWT_SECRET)"))
		} else if len(c.Auth.JWTSecret) < 32 {
			errs = append(errs, errors.New("jwt secret must be at least 32 characters"))
		}
		if c.Auth.RefreshHashKey == "" {
			errs = append(errs, errors.New("refresh hash key is required (set REFRESH_HASH_KEY)"))
		}
		if c.SMTP.Host == "" {
			errs = append(errs, errors.New("smtp host is required (set SMTP_HOST)"))
		}
	}

	if c.Auth.RefreshHashKey != "" {
		if err := checkHexKey(c.Auth.RefreshHashKey); err != nil {
			errs = append(errs, fmt.Errorf("invalid refresh hash key: %w", err))
		}
	}
	if c.Auth.RefreshBlockKey != "" {
		if err := checkHexKey(c.Auth.RefreshBlockKey); err != nil {
			errs = append(errs, fmt.Errorf("invalid refresh block key: %w", err))
		}
	}

	if c.Auth.SessionDuration <= 0 {
		errs = append(errs, errors.New("session duration must be positive"))
	}
	if c.Auth.RefreshDuration <= 0 {
		errs = append(errs, errors.New("refresh duration must be positive"))
	}

	return errors.Join(errs...)
}

// ApplyDevDefaults fills empty secrets with random values in dev mode.
// It returns the names of the generated settings so the caller can warn.
func (c *Config) ApplyDevDefaults() []string {
	if !c.Server.Dev {
		return nil
	}

	var generated []string
	if c.Auth.JWTSecret == "" {
		c.Auth.JWTSecret = randomHex(32)
		generated = append(generated, "jwt-secret")
	}
	if c.Auth.RefreshHashKey == "" {
		c.Auth.RefreshHashKey = randomHex(32)
		generated = append(generated, "refresh-hash-key")
	}
	return generated
}

// OTPKey returns the key used to hash one-time codes.
func (a AuthConfig) OTPKey() []byte {
	if a.OTPSecret != "" {
		return []byte(a.OTPSecret)
	}
	return []byte(a.JWTSecret)
}

func checkHexKey(key string) error {
	b, err := hex.DecodeString(key)
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return fmt.Errorf("must be 32 bytes, got %d", len(b))
	}
	return nil
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func source(env, key string) cli.ValueSourceChain {
	return cli.NewValueSourceChain(cli.EnvVar(env), toml.TOML(key, configFile))
}

func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Value:       "config.toml",
			Usage:       "Path to configuration file",
			Destination: &configPath,
			Sources:     cli.EnvVars("CONFIG"),
		},
		&cli.StringFlag{
			Name:    "host",
			Value:   "localhost",
			Usage:   "Host to bind to",
			Sources: source("HOST", "server.host"),
		},
		&cli.IntFlag{
			Name:    "port",
			Value:   8080,
			Usage:   "Port to listen on",
			Sources: source("PORT", "server.port"),
		},
		&cli.StringFlag{
			Name:    "base-url",
			Usage:   "Public base URL of the API",
			Sources: source("BASE_URL", "server.base_url"),
		},
		&cli.StringFlag{
			Name:    "frontend-url",
			Usage:   "Base URL of the web client, used for invitation links (defaults to base-url)",
			Sources: source("FRONTEND_URL", "server.frontend_url"),
		},
		&cli.IntFlag{
			Name:    "max-body-size",
			Value:   1,
			Usage:   "Maximum JSON request body size in MB",
			Sources: source("MAX_BODY_SIZE", "server.max_body_size"),
		},
		&cli.IntFlag{
			Name:    "upload-max-size",
			Value:   20,
			Usage:   "Maximum report upload size in MB",
			Sources: source("UPLOAD_MAX_SIZE", "server.upload_max_size"),
		},
		&cli.FloatFlag{
			Name:    "rate-limit",
			Value:   5,
			Usage:   "Requests per second per client on /auth endpoints",
			Sources: source("RATE_LIMIT", "server.rate_limit"),
		},
		&cli.IntFlag{
			Name:    "rate-burst",
			Value:   10,
			Usage:   "Burst size for the /auth rate limiter",
			Sources: source("RATE_BURST", "server.rate_burst"),
		},
		&cli.BoolFlag{
			Name:    "dev",
			Usage:   "Development mode (generated secrets, error details in responses, emails logged)",
			Sources: source("DEV", "server.dev"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Value:   "info",
			Usage:   "Log level (debug, info, warn, error)",
			Sources: source("LOG_LEVEL", "log.level"),
		},
		&cli.StringFlag{
			Name:    "log-format",
			Value:   "text",
			Usage:   "Log format (text, json)",
			Sources: source("LOG_FORMAT", "log.format"),
		},
		&cli.StringFlag{
			Name:    "database-dsn",
			Value:   "./data/medivault.db",
			Usage:   "Database DSN (SQLite path or postgres:// URL)",
			Sources: source("DATABASE_DSN", "database.dsn"),
		},
		// Auth flags
		&cli.StringFlag{
			Name:    "jwt-secret",
			Usage:   "Secret for signing bearer tokens (required outside dev mode)",
			Sources: source("JWT_SECRET", "auth.jwt_secret"),
		},
		&cli.IntFlag{
			Name:    "session-duration",
			Value:   168, // 7 days
			Usage:   "Bearer token lifetime in hours",
			Sources: source("SESSION_DURATION", "auth.session_duration"),
		},
		&cli.IntFlag{
			Name:    "refresh-duration",
			Value:   720, // 30 days
			Usage:   "Refresh token lifetime in hours",
			Sources: source("REFRESH_DURATION", "auth.refresh_duration"),
		},
		&cli.StringFlag{
			Name:    "refresh-hash-key",
			Usage:   "Refresh token hash key (32-byte hex, auto-generated if empty in dev)",
			Sources: source("REFRESH_HASH_KEY", "auth.refresh_hash_key"),
		},
		&cli.StringFlag{
			Name:    "refresh-block-key",
			Usage:   "Refresh token block key for encryption (32-byte hex, optional)",
			Sources: source("REFRESH_BLOCK_KEY", "auth.refresh_block_key"),
		},
		&cli.StringFlag{
			Name:    "otp-secret",
			Usage:   "Key for hashing one-time codes (defaults to jwt-secret)",
			Sources: source("OTP_SECRET", "auth.otp_secret"),
		},
		&cli.IntFlag{
			Name:    "max-failed-logins",
			Value:   5,
			Usage:   "Consecutive password failures before the account is locked",
			Sources: source("MAX_FAILED_LOGINS", "auth.max_failed_logins"),
		},
		&cli.IntFlag{
			Name:    "lockout-minutes",
			Value:   15,
			Usage:   "Minutes an account stays locked after too many failures",
			Sources: source("LOCKOUT_MINUTES", "auth.lockout_minutes"),
		},
		// SMTP flags
		&cli.StringFlag{
			Name:    "smtp-host",
			Usage:   "SMTP server host",
			Sources: source("SMTP_HOST", "smtp.host"),
		},
		&cli.IntFlag{
			Name:    "smtp-port",
			Value:   587,
			Usage:   "SMTP server port",
			Sources: source("SMTP_PORT", "smtp.port"),
		},
		&cli.StringFlag{
			Name:    "smtp-username",
			Usage:   "SMTP username",
			Sources: source("SMTP_USERNAME", "smtp.username"),
		},
		&cli.StringFlag{
			Name:    "smtp-password",
			Usage:   "SMTP password",
			Sources: source("SMTP_PASSWORD", "smtp.password"),
		},
		&cli.StringFlag{
			Name:    "smtp-from",
			Value:   "noreply@medivault.local",
			Usage:   "Sender address",
			Sources: source("SMTP_FROM", "smtp.from"),
		},
		&cli.StringFlag{
			Name:    "smtp-from-name",
			Value:   "MediVault",
			Usage:   "Sender display name",
			Sources: source("SMTP_FROM_NAME", "smtp.from_name"),
		},
		&cli.BoolFlag{
			Name:    "smtp-tls",
			Value:   true,
			Usage:   "Require TLS for SMTP",
			Sources: source("SMTP_TLS", "smtp.tls"),
		},
		// Storage flags
		&cli.StringFlag{
			Name:    "s3-endpoint",
			Usage:   "S3-compatible endpoint URL (empty for AWS)",
			Sources: source("S3_ENDPOINT", "storage.endpoint"),
		},
		&cli.StringFlag{
			Name:    "s3-region",
			Value:   "us-east-1",
			Usage:   "S3 region",
			Sources: source("S3_REGION", "storage.region"),
		},
		&cli.StringFlag{
			Name:    "s3-bucket",
			Usage:   "Bucket for uploaded reports (reports are disabled when empty)",
			Sources: source("S3_BUCKET", "storage.bucket"),
		},
		&cli.StringFlag{
			Name:    "s3-access-key",
			Usage:   "S3 access key id",
			Sources: source("S3_ACCESS_KEY", "storage.access_key"),
		},
		&cli.StringFlag{
			Name:    "s3-secret-key",
			Usage:   "S3 secret access key",
			Sources: source("S3_SECRET_KEY", "storage.secret_key"),
		},
		&cli.BoolFlag{
			Name:    "s3-use-path-style",
			Usage:   "Use path-style bucket addressing (MinIO)",
			Sources: source("S3_USE_PATH_STYLE", "storage.use_path_style"),
		},
	}
}
