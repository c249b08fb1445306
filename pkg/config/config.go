package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hugh/projectcamp/pkg/util"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	SMTP      SMTPConfig
	App       AppConfig
	Sweep     SweepConfig
}

type ServerConfig struct {
	Host                  string
	Port                  int
	Env                   string
	RequestTimeoutSeconds int
	AllowedOrigins        []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	AccessSecret        string
	AccessExpiryMinutes int
	RefreshSecret       string
	RefreshExpiryHours  int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
	AuthRequests  int

	// UploadRequests is the per-user limit on task writes carrying files.
	UploadRequests int
}

// StorageConfig selects the blob backend for task attachments.
type StorageConfig struct {
	Driver    string // local, s3, gcs
	PublicURL string // base URL attachments are served from; derived from the driver when empty

	LocalDir string

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool

	// S3AssumeRoleARN, when set, is assumed through STS on top of the
	// credentials above.
	S3AssumeRoleARN string
	S3ExternalID    string

	GCSBucket          string
	GCSCredentialsFile string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type AppConfig struct {
	// ServerURL is the externally reachable base URL of this API.
	ServerURL string
	// ResetPasswordURL is the client page that receives reset tokens.
	ResetPasswordURL string
}

type SweepConfig struct {
	Cron string
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) AccessExpiry() time.Duration {
	return time.Duration(j.AccessExpiryMinutes) * time.Minute
}

func (j *JWTConfig) RefreshExpiry() time.Duration {
	return time.Duration(j.RefreshExpiryHours) * time.Hour
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(s.RequestTimeoutSeconds) * time.Second
}

func (s *SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled reports whether outgoing mail should go over SMTP.
func (s *SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// Placeholder JWT secrets used by Load when none are set. They are only
// accepted in development.
const (
	defaultAccessSecret  = "change-me-in-production"
	defaultRefreshSecret = "change-me-too-in-production"
)

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("SERVER_REQUEST_TIMEOUT_SECONDS", 30)
	v.SetDefault("CORS_ORIGINS", "")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "projectcamp")
	v.SetDefault("DATABASE_PASSWORD", "projectcamp_secret")
	v.SetDefault("DATABASE_NAME", "projectcamp")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("ACCESS_TOKEN_SECRET", defaultAccessSecret)
	v.SetDefault("ACCESS_TOKEN_EXPIRY_MINUTES", 60)
	v.SetDefault("REFRESH_TOKEN_SECRET", defaultRefreshSecret)
	v.SetDefault("REFRESH_TOKEN_EXPIRY_HOURS", 240)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("RATE_LIMIT_AUTH_REQUESTS", 10)
	v.SetDefault("RATE_LIMIT_UPLOAD_REQUESTS", 30)
	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_LOCAL_DIR", "public/images")
	v.SetDefault("STORAGE_S3_REGION", "us-east-1")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_FROM", "mail.taskmanager@example.com")
	v.SetDefault("SERVER_URL", "http://localhost:8080")
	v.SetDefault("FORGOT_PASSWORD_REDIRECT_URL", "http://localhost:3000/reset-password")
	v.SetDefault("SWEEP_CRON", "0 3 * * *")

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:                  v.GetString("SERVER_HOST"),
			Port:                  v.GetInt("SERVER_PORT"),
			Env:                   v.GetString("SERVER_ENV"),
			RequestTimeoutSeconds: v.GetInt("SERVER_REQUEST_TIMEOUT_SECONDS"),
			AllowedOrigins:        splitList(v.GetString("CORS_ORIGINS")),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			AccessSecret:        v.GetString("ACCESS_TOKEN_SECRET"),
			AccessExpiryMinutes: v.GetInt("ACCESS_TOKEN_EXPIRY_MINUTES"),
			RefreshSecret:       v.GetString("REFRESH_TOKEN_SECRET"),
			RefreshExpiryHours:  v.GetInt("REFRESH_TOKEN_EXPIRY_HOURS"),
		},
		RateLimit: RateLimitConfig{
			Requests:       v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds:  v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
			AuthRequests:   v.GetInt("RATE_LIMIT_AUTH_REQUESTS"),
			UploadRequests: v.GetInt("RATE_LIMIT_UPLOAD_REQUESTS"),
		},
		Storage: StorageConfig{
			Driver:             strings.ToLower(v.GetString("STORAGE_DRIVER")),
			PublicURL:          strings.TrimRight(v.GetString("STORAGE_PUBLIC_URL"), "/"),
			LocalDir:           v.GetString("STORAGE_LOCAL_DIR"),
			S3Bucket:           v.GetString("STORAGE_S3_BUCKET"),
			S3Region:           v.GetString("STORAGE_S3_REGION"),
			S3Endpoint:         v.GetString("STORAGE_S3_ENDPOINT"),
			S3AccessKey:        v.GetString("STORAGE_S3_ACCESS_KEY"),
			S3SecretKey:        v.GetString("STORAGE_S3_SECRET_KEY"),
			S3PathStyle:        v.GetBool("STORAGE_S3_PATH_STYLE"),
			S3AssumeRoleARN:    v.GetString("STORAGE_S3_ASSUME_ROLE_ARN"),
			S3ExternalID:       v.GetString("STORAGE_S3_EXTERNAL_ID"),
			GCSBucket:          v.GetString("STORAGE_GCS_BUCKET"),
			GCSCredentialsFile: v.GetString("STORAGE_GCS_CREDENTIALS_FILE"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USER"),
			Password: v.GetString("SMTP_PASS"),
			From:     v.GetString("SMTP_FROM"),
		},
		App: AppConfig{
			ServerURL:        strings.TrimRight(v.GetString("SERVER_URL"), "/"),
			ResetPasswordURL: strings.TrimRight(v.GetString("FORGOT_PASSWORD_REDIRECT_URL"), "/"),
		},
		Sweep: SweepConfig{
			Cron: v.GetString("SWEEP_CRON"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the processes cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("STORAGE_LOCAL_DIR is required for the local driver")
		}
	case "s3":
		if c.Storage.S3Bucket == "" {
			return fmt.Errorf("STORAGE_S3_BUCKET is required for the s3 driver")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("STORAGE_GCS_BUCKET is required for the gcs driver")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}

	if c.Sweep.Cron != "" {
		if err := util.ValidateCronExpr(c.Sweep.Cron); err != nil {
			return fmt.Errorf("SWEEP_CRON: %w", err)
		}
	}

	if c.JWT.AccessSecret == c.JWT.RefreshSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if !c.Server.IsDevelopment() {
		if c.JWT.AccessSecret == defaultAccessSecret {
			return fmt.Errorf("ACCESS_TOKEN_SECRET must be set outside development")
		}
		if c.JWT.RefreshSecret == defaultRefreshSecret {
			return fmt.Errorf("REFRESH_TOKEN_SECRET must be set outside development")
		}
	}

	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
