package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-notification-hub/internal/infrastructure/logger"
)

const envPrefix = "HUB"

// Config is resolved once at startup and passed down explicitly; nothing below cmd reads
// the environment on its own.
type Config struct {
	Server ServerConfig  `mapstructure:"server"`
	Hub    HubConfig     `mapstructure:"hub"`
	Auth   AuthConfig    `mapstructure:"auth"`
	CORS   CORSConfig    `mapstructure:"cors"`
	Log    logger.Config `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type HubConfig struct {
	MaxConnections     int           `mapstructure:"max_connections"`
	HeartbeatInterval  time.Duration `mapstructure:"heartbeat_interval"`
	StaleThreshold     time.Duration `mapstructure:"stale_threshold"`
	SendBuffer         int           `mapstructure:"send_buffer"`
	RefreshOnHeartbeat bool          `mapstructure:"refresh_on_heartbeat"`
	ConnectRate        float64       `mapstructure:"connect_rate"` // per remote IP per second, 0 disables
	ConnectBurst       int           `mapstructure:"connect_burst"`
}

type AuthConfig struct {
	InternalSecret  string        `mapstructure:"internal_secret"`
	SecretHeader    string        `mapstructure:"secret_header"`
	SessionSecret   string        `mapstructure:"session_secret"`
	SessionName     string        `mapstructure:"session_name"`
	TokenSecret     string        `mapstructure:"token_secret"`
	TokenQueryParam string        `mapstructure:"token_query_param"`
	AllowAnonymous  bool          `mapstructure:"allow_anonymous"`
	TokenCacheSize  int           `mapstructure:"token_cache_size"`
	TokenCacheTTL   time.Duration `mapstructure:"token_cache_ttl"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)

	v.SetDefault("hub.max_connections", 100)
	v.SetDefault("hub.heartbeat_interval", 25*time.Second)
	v.SetDefault("hub.stale_threshold", 60*time.Second)
	v.SetDefault("hub.send_buffer", 64)
	v.SetDefault("hub.refresh_on_heartbeat", false)
	v.SetDefault("hub.connect_rate", 0.0)
	v.SetDefault("hub.connect_burst", 10)

	v.SetDefault("auth.internal_secret", "")
	v.SetDefault("auth.secret_header", "X-Internal-Secret")
	v.SetDefault("auth.session_secret", "")
	v.SetDefault("auth.session_name", "session")
	v.SetDefault("auth.token_secret", "")
	v.SetDefault("auth.token_query_param", "token")
	v.SetDefault("auth.allow_anonymous", false)
	v.SetDefault("auth.token_cache_size", 1024)
	v.SetDefault("auth.token_cache_ttl", time.Minute)

	v.SetDefault("cors.allow_origins", []string{"*"})

	def := logger.NewDefaultConfig()
	v.SetDefault("log.level", def.Level)
	v.SetDefault("log.format", def.Format)
	v.SetDefault("log.output", def.Output)
	v.SetDefault("log.file_path", def.FilePath)
	v.SetDefault("log.max_size", def.MaxSize)
	v.SetDefault("log.max_backups", def.MaxBackups)
	v.SetDefault("log.max_age", def.MaxAge)
	v.SetDefault("log.compress", def.Compress)
	v.SetDefault("log.fields", def.Fields)
}

// Load reads defaults, then the optional config file at path, then HUB_* environment
// variables (HUB_HUB_MAX_CONNECTIONS, HUB_AUTH_INTERNAL_SECRET, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Hub.MaxConnections <= 0 {
		errs = append(errs, errors.New("hub.max_connections must be positive"))
	}
	if c.Hub.HeartbeatInterval <= 0 {
		errs = append(errs, errors.New("hub.heartbeat_interval must be positive"))
	}
	if c.Hub.StaleThreshold <= c.Hub.HeartbeatInterval {
		errs = append(errs, errors.New("hub.stale_threshold must exceed hub.heartbeat_interval"))
	}
	if c.Hub.SendBuffer <= 0 {
		errs = append(errs, errors.New("hub.send_buffer must be positive"))
	}
	if c.Hub.ConnectRate < 0 {
		errs = append(errs, errors.New("hub.connect_rate must not be negative"))
	}
	if c.Hub.ConnectRate > 0 && c.Hub.ConnectBurst <= 0 {
		errs = append(errs, errors.New("hub.connect_burst must be positive when hub.connect_rate is set"))
	}
	if c.Auth.SecretHeader == "" {
		errs = append(errs, errors.New("auth.secret_header must not be empty"))
	}
	return errors.Join(errs...)
}
