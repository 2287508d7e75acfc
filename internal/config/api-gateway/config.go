package api_gateway_config

import (
	"strings"
	"time"

	"github.com/NordCoder/Taskly/internal/domain/user"
	"github.com/NordCoder/Taskly/internal/notifier"
	"github.com/NordCoder/Taskly/internal/obs"
	pg "github.com/NordCoder/Taskly/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
	BaseURL string `mapstructure:"base_url"`
}

func (a App) IsProduction() bool {
	switch strings.ToLower(a.Env) {
	case "prod", "production":
		return true
	}
	return false
}

func (a App) IsDevelopment() bool {
	switch strings.ToLower(a.Env) {
	case "dev", "development", "test", "local":
		return true
	}
	return false
}

type Server struct {
	HTTPAddr        string        `mapstructure:"http_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	TrustProxy      bool          `mapstructure:"trust_proxy"`
}

const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

type DB struct {
	Driver   string    `mapstructure:"driver"`
	Postgres pg.Config `mapstructure:",squash"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type RateLimit struct {
	Backend      string        `mapstructure:"backend"` // memory | redis
	Prefix       string        `mapstructure:"prefix"`
	SignInLimit  int           `mapstructure:"signin_limit"`
	SignInWindow time.Duration `mapstructure:"signin_window"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

func (oc OTEL) AsOTELConfig() obs.OTELConfig {
	return obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Auth struct {
	Secret       string        `mapstructure:"secret"`
	TokenTTL     time.Duration `mapstructure:"token_ttl"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieDomain string        `mapstructure:"cookie_domain"`
	// CookieSecure forces the Secure flag outside production.
	CookieSecure bool `mapstructure:"cookie_secure"`

	LockoutThreshold int             `mapstructure:"lockout_threshold"`
	LockoutSteps     []time.Duration `mapstructure:"lockout_steps"`
	BcryptCost       int             `mapstructure:"bcrypt_cost"`
	VerifyTTL        time.Duration   `mapstructure:"verify_ttl"`
	ResetTTL         time.Duration   `mapstructure:"reset_ttl"`

	RequireVerifiedEmail bool `mapstructure:"require_verified_email"`

	// UsingDevSecret is set by Load when the development fallback is in use.
	UsingDevSecret bool `mapstructure:"-"`
}

func (a Auth) LockoutPolicy() user.LockoutPolicy {
	return user.LockoutPolicy{Threshold: a.LockoutThreshold, Steps: a.LockoutSteps}
}

type Outbox struct {
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
	Retention     time.Duration `mapstructure:"retention"`
	PurgeEvery    time.Duration `mapstructure:"purge_every"`
}

type Kafka struct {
	Enable            bool     `mapstructure:"enable"`
	Brokers           []string `mapstructure:"brokers"`
	AuthEventsTopic   string   `mapstructure:"auth_events_topic"`
	EnsureTopic       bool     `mapstructure:"ensure_topic"`
	Partitions        int      `mapstructure:"partitions"`
	ReplicationFactor int      `mapstructure:"replication_factor"`
}

type Config struct {
	App       App                 `mapstructure:"app"`
	Server    Server              `mapstructure:"server"`
	DB        DB                  `mapstructure:"db"`
	Redis     Redis               `mapstructure:"redis"`
	RateLimit RateLimit           `mapstructure:"ratelimit"`
	OTEL      OTEL                `mapstructure:"otel"`
	Log       Log                 `mapstructure:"log"`
	Auth      Auth                `mapstructure:"auth"`
	Outbox    Outbox              `mapstructure:"outbox"`
	Kafka     Kafka               `mapstructure:"kafka"`
	SMTP      notifier.SMTPConfig `mapstructure:"smtp"`
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    "taskly/" + c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

// CookieSecure reports whether the session cookie carries the Secure flag.
func (c *Config) CookieSecure() bool {
	return c.App.IsProduction() || c.Auth.CookieSecure
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
