package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	ServiceName  string        `env:"SERVICE_NAME" envDefault:"anbarinoo"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
	ServerPort   string        `env:"SERVER_PORT" envDefault:"8080"`
	DatabaseURL  string        `env:"DATABASE_URL,required,notEmpty"`
	RefreshStore string        `env:"REFRESH_STORE" envDefault:"gorm"`
	CORSOrigins  []string      `env:"CORS_ALLOW_ORIGINS" envSeparator:"," envDefault:"*"`
	KafkaBrokers []string      `env:"KAFKA_BROKERS" envSeparator:","`
	JWT          JWT           `envPrefix:"JWT_"`
	Admin        Admin         `envPrefix:"ADMIN_"`
	Redis        Redis         `envPrefix:"REDIS_"`
	OAuth2       OAuth2        `envPrefix:"OAUTH2_"`
	Elastic      Elastic       `envPrefix:"ELASTIC_"`
	Shutdown     time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

type JWT struct {
	SecretKey  string        `env:"SECRET_KEY,required,notEmpty"`
	AccessTTL  time.Duration `env:"ACCESS_TTL" envDefault:"60s"`
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"504h"`
}

type Admin struct {
	Username string `env:"USERNAME" envDefault:"admin"`
	Email    string `env:"EMAIL"`
	Password string `env:"PASSWORD"`
}

type Redis struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type OAuth2 struct {
	ClientID               string   `env:"CLIENT_ID"`
	ClientSecret           string   `env:"CLIENT_SECRET"`
	AuthURL                string   `env:"AUTH_URL" envDefault:"https://accounts.google.com/o/oauth2/auth"`
	TokenURL               string   `env:"TOKEN_URL" envDefault:"https://oauth2.googleapis.com/token"`
	UserInfoURL            string   `env:"USERINFO_URL" envDefault:"https://openidconnect.googleapis.com/v1/userinfo"`
	RedirectURL            string   `env:"REDIRECT_URL" envDefault:"http://localhost:8080/login/callback"`
	Scopes                 []string `env:"SCOPES" envSeparator:"," envDefault:"openid,email,profile"`
	AuthorizedRedirectURIs []string `env:"AUTHORIZED_REDIRECT_URIS" envSeparator:","`
	DefaultRedirect        string   `env:"DEFAULT_REDIRECT" envDefault:"/"`
}

// Enabled reports whether enough is configured to offer provider login.
func (o OAuth2) Enabled() bool {
	return o.ClientID != "" && o.ClientSecret != ""
}

type Elastic struct {
	URL      string `env:"URL"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	Index    string `env:"INDEX" envDefault:"products"`
}

const (
	RefreshStoreGorm  = "gorm"
	RefreshStoreRedis = "redis"
)

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv_not_loaded", "error", err)
	}
	return parse(env.Options{})
}

// Parse builds a Config from the given variables only.
func Parse(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.RefreshStore {
	case RefreshStoreGorm, RefreshStoreRedis:
	default:
		return fmt.Errorf("parse config: REFRESH_STORE must be %q or %q, got %q", RefreshStoreGorm, RefreshStoreRedis, c.RefreshStore)
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("parse config: token ttls must be positive")
	}
	if c.JWT.AccessTTL >= c.JWT.RefreshTTL {
		return fmt.Errorf("parse config: JWT_ACCESS_TTL must be shorter than JWT_REFRESH_TTL")
	}
	return nil
}
