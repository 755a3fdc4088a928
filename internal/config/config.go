package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8000"
	DefaultSQLitePath      = "businessly.db"
	DefaultGigaChatScope   = "GIGACHAT_API_PERS"
	DefaultGigaChatOAuth   = "https://ngw.devices.sberbank.ru:9443/api/v2/oauth"
	DefaultGigaChatAPI     = "https://gigachat.devices.sberbank.ru/api/v1"
	DefaultGigaChatModel   = "GigaChat"
	DefaultTelegramAPI     = "https://api.telegram.org/bot%s/%s"
	DefaultJWTExpiresIn    = "24h"
	DefaultWorkerQueueSize = 256
	DefaultJobTimeout      = "3m"

	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Auth     AuthConfig     `toml:"auth"`
	Database DatabaseConfig `toml:"database"`
	GigaChat GigaChatConfig `toml:"gigachat"`
	Telegram TelegramConfig `toml:"telegram"`
	Worker   WorkerConfig   `toml:"worker"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr        string   `toml:"addr"`
	CORSOrigins []string `toml:"cors_origins"`
}

type AuthConfig struct {
	JWTSecret    string `toml:"jwt_secret"`
	JWTExpiresIn string `toml:"jwt_expires_in"`
}

type DatabaseConfig struct {
	Driver     string `toml:"driver"`
	URL        string `toml:"url"`
	SQLitePath string `toml:"sqlite_path"`
}

type GigaChatConfig struct {
	AuthKey            string `toml:"auth_key"`
	Scope              string `toml:"scope"`
	OAuthURL           string `toml:"oauth_url"`
	APIURL             string `toml:"api_url"`
	Model              string `toml:"model"`
	InsecureSkipVerify bool   `toml:"insecure_skip_verify"`
}

type TelegramConfig struct {
	APIEndpoint    string `toml:"api_endpoint"`
	WebhookBaseURL string `toml:"webhook_base_url"`
}

type WorkerConfig struct {
	RedisURL    string `toml:"redis_url"`
	Concurrency int    `toml:"concurrency"`
	QueueSize   int    `toml:"queue_size"`
	JobTimeout  string `toml:"job_timeout"`
}

// JWTTTL parses the configured token lifetime.
func (c AuthConfig) JWTTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTExpiresIn)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

func (c WorkerConfig) JobTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.JobTimeout)
	if err != nil || d <= 0 {
		return 3 * time.Minute
	}
	return d
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:        DefaultHTTPAddr,
			CORSOrigins: []string{"*"},
		},
		Auth: AuthConfig{
			JWTExpiresIn: DefaultJWTExpiresIn,
		},
		Database: DatabaseConfig{
			Driver:     DriverPostgres,
			SQLitePath: DefaultSQLitePath,
		},
		GigaChat: GigaChatConfig{
			Scope:    DefaultGigaChatScope,
			OAuthURL: DefaultGigaChatOAuth,
			APIURL:   DefaultGigaChatAPI,
			Model:    DefaultGigaChatModel,
		},
		Telegram: TelegramConfig{
			APIEndpoint: DefaultTelegramAPI,
		},
		Worker: WorkerConfig{
			Concurrency: 8,
			QueueSize:   DefaultWorkerQueueSize,
			JobTimeout:  DefaultJobTimeout,
		},
	}
}

// Load layers defaults, the optional TOML file at path, a .env file and the
// process environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("BUSINESSLY_CONFIG")
	}
	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	// Missing .env is normal in containers.
	_ = godotenv.Load()

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setString(&cfg.Server.Addr, "HTTP_ADDR")
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		cfg.Server.CORSOrigins = splitList(v)
	}

	setString(&cfg.Auth.JWTSecret, "JWT_SECRET")
	setString(&cfg.Auth.JWTExpiresIn, "JWT_EXPIRES_IN")

	setString(&cfg.Database.Driver, "DATABASE_DRIVER")
	setString(&cfg.Database.URL, "DATABASE_URL")
	setString(&cfg.Database.SQLitePath, "SQLITE_PATH")

	setString(&cfg.GigaChat.AuthKey, "GIGACHAT_AUTH_KEY")
	setString(&cfg.GigaChat.Scope, "GIGACHAT_SCOPE")
	setString(&cfg.GigaChat.OAuthURL, "GIGACHAT_OAUTH_URL")
	setString(&cfg.GigaChat.APIURL, "GIGACHAT_API_URL")
	setString(&cfg.GigaChat.Model, "GIGACHAT_MODEL")
	setBool(&cfg.GigaChat.InsecureSkipVerify, "GIGACHAT_INSECURE_SKIP_VERIFY")

	setString(&cfg.Telegram.APIEndpoint, "TELEGRAM_API_ENDPOINT")
	setString(&cfg.Telegram.WebhookBaseURL, "WEBHOOK_BASE_URL")

	setString(&cfg.Worker.RedisURL, "REDIS_URL")
	setInt(&cfg.Worker.Concurrency, "WORKER_CONCURRENCY")
	setInt(&cfg.Worker.QueueSize, "WORKER_QUEUE_SIZE")
	setString(&cfg.Worker.JobTimeout, "WORKER_JOB_TIMEOUT")
}

// Validate reports settings the process cannot start with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET must be set"))
	}
	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL must be set for the postgres driver"))
		}
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH must be set for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Worker.Concurrency <= 0 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be positive"))
	}
	return errors.Join(errs...)
}

func setString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	if b, err := strconv.ParseBool(v); err == nil {
		*dst = b
	}
}

func setInt(dst *int, key string) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return
	}
	if i, err := strconv.Atoi(v); err == nil {
		*dst = i
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
