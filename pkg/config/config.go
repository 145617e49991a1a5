package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// EnvPrefix namespaces every environment variable the service reads.
	EnvPrefix = "CIRCLEUP"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	Auth         AuthConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Dispatch     DispatchConfig
	Inbox        InboxConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"CIRCLEUP_APP_ENV" required:"true"`
	Port         string `envconfig:"CIRCLEUP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CIRCLEUP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CIRCLEUP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"CIRCLEUP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"CIRCLEUP_DB_DSN"`
	Driver string `envconfig:"CIRCLEUP_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"CIRCLEUP_DB_HOST"`
	Port     int    `envconfig:"CIRCLEUP_DB_PORT" default:"5432"`
	User     string `envconfig:"CIRCLEUP_DB_USER"`
	Password string `envconfig:"CIRCLEUP_DB_PASSWORD"`
	Name     string `envconfig:"CIRCLEUP_DB_NAME"`
	SSLMode  string `envconfig:"CIRCLEUP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CIRCLEUP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CIRCLEUP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CIRCLEUP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CIRCLEUP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CIRCLEUP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"CIRCLEUP_REDIS_ADDR"`
	Password     string        `envconfig:"CIRCLEUP_REDIS_PASSWORD"`
	DB           int           `envconfig:"CIRCLEUP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CIRCLEUP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CIRCLEUP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CIRCLEUP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CIRCLEUP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CIRCLEUP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type AuthConfig struct {
	JWTSecret     string   `envconfig:"CIRCLEUP_JWT_SECRET" required:"true"`
	JWTIssuer     string   `envconfig:"CIRCLEUP_JWT_ISSUER" required:"true"`
	AdminSubjects []string `envconfig:"CIRCLEUP_ADMIN_SUBJECTS"`
	DispatchToken string   `envconfig:"CIRCLEUP_DISPATCH_TOKEN" required:"true"`
}

// IsAdminSubject reports whether the subject is on the admin allow-list.
func (a AuthConfig) IsAdminSubject(subject string) bool {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return false
	}
	for _, candidate := range a.AdminSubjects {
		if strings.EqualFold(strings.TrimSpace(candidate), subject) {
			return true
		}
	}
	return false
}

type GCPConfig struct {
	ProjectID              string `envconfig:"CIRCLEUP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"CIRCLEUP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"CIRCLEUP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	PushTopic string `envconfig:"CIRCLEUP_PUBSUB_PUSH_TOPIC" default:"cu-push-notifications"`
}

type DispatchConfig struct {
	BatchSize          int           `envconfig:"CIRCLEUP_DISPATCH_BATCH_SIZE" default:"100"`
	Workers            int           `envconfig:"CIRCLEUP_DISPATCH_WORKERS" default:"8"`
	SendTimeout        time.Duration `envconfig:"CIRCLEUP_DISPATCH_SEND_TIMEOUT" default:"10s"`
	StalenessThreshold time.Duration `envconfig:"CIRCLEUP_DISPATCH_STALENESS_THRESHOLD" default:"5m"`
	MaxAttempts        int           `envconfig:"CIRCLEUP_DISPATCH_MAX_ATTEMPTS" default:"5"`
	BackoffBase        time.Duration `envconfig:"CIRCLEUP_DISPATCH_BACKOFF_BASE" default:"1m"`
	BackoffCap         time.Duration `envconfig:"CIRCLEUP_DISPATCH_BACKOFF_CAP" default:"1h"`
	WorkerInterval     time.Duration `envconfig:"CIRCLEUP_DISPATCH_WORKER_INTERVAL" default:"1m"`
}

type InboxConfig struct {
	RetentionDays int `envconfig:"CIRCLEUP_INBOX_RETENTION_DAYS" default:"90"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CIRCLEUP_AUTO_MIGRATE" default:"false"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	parts := map[string]string{
		"CIRCLEUP_DB_HOST": db.Host,
		"CIRCLEUP_DB_USER": db.User,
		"CIRCLEUP_DB_NAME": db.Name,
	}
	for _, key := range []string{"CIRCLEUP_DB_HOST", "CIRCLEUP_DB_USER", "CIRCLEUP_DB_NAME"} {
		if parts[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either CIRCLEUP_DB_DSN or %s are required", strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
