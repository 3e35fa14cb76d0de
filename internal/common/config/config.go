// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Server        ServerConfig            `mapstructure:"server"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Realtime      RealtimeConfig          `mapstructure:"realtime"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Push          PushConfig              `mapstructure:"push"`
	Email         EmailConfig             `mapstructure:"email"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	Logging       LoggingConfig           `mapstructure:"logging"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address         string   `mapstructure:"address"`
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	ShutdownTimeout int      `mapstructure:"shutdown_timeout"` // milliseconds
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// RealtimeConfig configures the LISTEN/NOTIFY change feed.
type RealtimeConfig struct {
	NotifyChannel        string `mapstructure:"notify_channel"`
	MinReconnectInterval int    `mapstructure:"min_reconnect_interval"` // milliseconds
	MaxReconnectInterval int    `mapstructure:"max_reconnect_interval"` // milliseconds
	SubscribeTimeout     int    `mapstructure:"subscribe_timeout"`      // milliseconds
	ResubscribeOnVisible bool   `mapstructure:"resubscribe_on_visible"`
}

// NotificationConfig holds inbox and decision settings.
type NotificationConfig struct {
	ListLimit          int    `mapstructure:"list_limit"`
	PreviewSize        int    `mapstructure:"preview_size"`
	ToastDuration      int    `mapstructure:"toast_duration"` // milliseconds
	PollInterval       int    `mapstructure:"poll_interval"`  // milliseconds
	Timezone           string `mapstructure:"timezone"`
	GroupThreshold     int    `mapstructure:"group_threshold"`
	TableCheckEvery    int    `mapstructure:"table_check_every"`
	PreferenceCacheTTL int    `mapstructure:"preference_cache_ttl"` // milliseconds
}

// PushConfig selects the OS-level push forwarder.
type PushConfig struct {
	Provider string `mapstructure:"provider"` // none | sns | websocket
	Icon     string `mapstructure:"icon"`
	SNS      struct {
		Region            string `mapstructure:"region"`
		EndpointAttribute string `mapstructure:"endpoint_attribute"`
	} `mapstructure:"sns"`
}

// EmailConfig configures the SES email channel.
type EmailConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	FromEmail string `mapstructure:"from_email"`
}

// WorkerConfig holds the core settings applicable to every worker.
type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
