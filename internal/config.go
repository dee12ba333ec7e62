package internal

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Security      SecurityConfig      `mapstructure:"security" validate:"required"`
	Access        AccessConfig        `mapstructure:"access"`
	Preferences   PreferencesConfig   `mapstructure:"preferences"`
	Expiry        ExpiryConfig        `mapstructure:"expiry"`
	RateLimit     RateLimitConfig     `mapstructure:"rate_limit"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"required,min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"required,min=1m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" validate:"required,min=1m"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db" validate:"min=0"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" validate:"required,min=1m"`
	Issuer              string        `mapstructure:"issuer"`
}

// AccessConfig tunes the resolvers and the routing engine.
type AccessConfig struct {
	CacheTTL         time.Duration `mapstructure:"cache_ttl"`
	CacheSize        int           `mapstructure:"cache_size" validate:"min=0"`
	SessionTTL       time.Duration `mapstructure:"session_ttl"`
	SessionCacheSize int           `mapstructure:"session_cache_size" validate:"min=0"`
	ProgressLimit    int           `mapstructure:"progress_limit" validate:"min=0,max=100"`
	AdminPermission  string        `mapstructure:"admin_permission"`
}

type PreferencesConfig struct {
	Backend string        `mapstructure:"backend" validate:"omitempty,oneof=redis postgres memory"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ExpiryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests" validate:"required_if=Enabled true"`
	Window   time.Duration `mapstructure:"window"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

const (
	DefaultCacheTTL      = 60 * time.Second
	DefaultCacheSize     = 10000
	DefaultSessionTTL    = 30 * time.Minute
	DefaultProgressLimit = 10
	DefaultAdminPerm     = "manage_access"
)

// ApplyDefaults fills unset values. Call it before Validate.
func (c *Config) ApplyDefaults() {
	if c.Access.CacheTTL <= 0 {
		c.Access.CacheTTL = DefaultCacheTTL
	}
	if c.Access.CacheSize == 0 {
		c.Access.CacheSize = DefaultCacheSize
	}
	if c.Access.SessionTTL <= 0 {
		c.Access.SessionTTL = DefaultSessionTTL
	}
	if c.Access.SessionCacheSize == 0 {
		c.Access.SessionCacheSize = DefaultCacheSize
	}
	if c.Access.ProgressLimit == 0 {
		c.Access.ProgressLimit = DefaultProgressLimit
	}
	if c.Access.AdminPermission == "" {
		c.Access.AdminPermission = DefaultAdminPerm
	}
	if c.Preferences.Backend == "" {
		c.Preferences.Backend = "postgres"
	}
	if c.Preferences.Timeout <= 0 {
		c.Preferences.Timeout = 2 * time.Second
	}
	if c.Expiry.Schedule == "" {
		c.Expiry.Schedule = "@every 1m"
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Observability.Logging.Level == "" {
		c.Observability.Logging.Level = "info"
	}
	if c.Observability.Logging.Format == "" {
		c.Observability.Logging.Format = "text"
	}
}

// ----------------- VALIDATION -----------------

var configValidator = validator.New(validator.WithRequiredStructEnabled())

func (c *Config) Validate() error {
	var errs []string

	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if c.Preferences.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, "preferences config: redis backend requires redis.addr")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}
