package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPath = "config.yaml"
	EnvPrefix   = "SENTINEL"

	EnvDev  = "dev"
	EnvTest = "test"
)

type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

func (h HTTPConfig) Addr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

// AppConfig is shared by every binary. Nested keys map to env vars with
// underscores, e.g. SENTINEL_HTTP_PORT.
type AppConfig struct {
	ServiceName string     `mapstructure:"service_name"`
	Env         string     `mapstructure:"env"`
	LogLevel    string     `mapstructure:"log_level"`
	MetricsPath string     `mapstructure:"metrics_path"`
	HTTP        HTTPConfig `mapstructure:"http"`
}

func (c AppConfig) IsDev() bool {
	return c.Env == EnvDev || c.Env == EnvTest
}

func (c AppConfig) Validate() error {
	if c.ServiceName == "" {
		return errors.New("service_name must be set")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.HTTP.Port)
	}
	if !strings.HasPrefix(c.MetricsPath, "/") {
		return fmt.Errorf("metrics_path %q must start with /", c.MetricsPath)
	}
	return nil
}

var defaults = map[string]any{
	"service_name":       "platform-api",
	"env":                EnvDev,
	"log_level":          "info",
	"metrics_path":       "/metrics",
	"http.host":          "0.0.0.0",
	"http.port":          8080,
	"http.read_timeout":  "5s",
	"http.write_timeout": "10s",
	"http.idle_timeout":  "60s",
}

// Load reads path (DefaultPath when empty) if it exists, then applies
// SENTINEL_* overrides.
func Load(path string) (*AppConfig, error) {
	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !isMissing(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := &AppConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func isMissing(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	return errors.As(err, &notFound) || errors.Is(err, fs.ErrNotExist)
}
