package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/craftvisor/internal/console"
	"github.com/loykin/craftvisor/internal/logger"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. CRAFTVISOR_HTTP_LISTEN.
const EnvPrefix = "CRAFTVISOR"

// Config is the daemon configuration file (TOML by default).
type Config struct {
	ServerDir    string        `toml:"server_dir" mapstructure:"server_dir"`
	SettingsFile string        `toml:"settings_file" mapstructure:"settings_file"`
	Java         string        `toml:"java" mapstructure:"java"`
	JVMArgs      []string      `toml:"jvm_args" mapstructure:"jvm_args"`
	LogCapacity  int           `toml:"log_capacity" mapstructure:"log_capacity"`
	StopTimeout  time.Duration `toml:"stop_timeout" mapstructure:"stop_timeout"`
	RestartDelay time.Duration `toml:"restart_delay" mapstructure:"restart_delay"`

	Log     LogConfig     `toml:"log" mapstructure:"log"`
	Console FileConfig    `toml:"console" mapstructure:"console"`
	HTTP    HTTPConfig    `toml:"http" mapstructure:"http"`
	Metrics MetricsConfig `toml:"metrics" mapstructure:"metrics"`
	History HistoryConfig `toml:"history" mapstructure:"history"`
}

type LogConfig struct {
	Level  string     `toml:"level" mapstructure:"level"`
	Format string     `toml:"format" mapstructure:"format"`
	Color  bool       `toml:"color" mapstructure:"color"`
	File   FileConfig `toml:"file" mapstructure:"file"`
}

// FileConfig describes a rotating log file.
type FileConfig struct {
	Path       string `toml:"path" mapstructure:"path"`
	MaxSizeMB  int    `toml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `toml:"compress" mapstructure:"compress"`
}

type HTTPConfig struct {
	Enabled  bool      `toml:"enabled" mapstructure:"enabled"`
	Listen   string    `toml:"listen" mapstructure:"listen"`
	BasePath string    `toml:"base_path" mapstructure:"base_path"`
	TLS      TLSConfig `toml:"tls" mapstructure:"tls"`
}

// TLSConfig enables HTTPS on the control listener. Either CertFile and KeyFile
// or Dir must be set; with AutoGenerate a self-signed pair is created in Dir.
type TLSConfig struct {
	Enabled      bool     `toml:"enabled" mapstructure:"enabled"`
	CertFile     string   `toml:"cert_file" mapstructure:"cert_file"`
	KeyFile      string   `toml:"key_file" mapstructure:"key_file"`
	Dir          string   `toml:"dir" mapstructure:"dir"`
	AutoGenerate bool     `toml:"auto_generate" mapstructure:"auto_generate"`
	Hosts        []string `toml:"hosts" mapstructure:"hosts"`
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled" mapstructure:"enabled"`
	Listen  string `toml:"listen" mapstructure:"listen"`
}

type HistoryConfig struct {
	DSN string `toml:"dsn" mapstructure:"dsn"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_dir", "server")
	v.SetDefault("settings_file", "settings.json")
	v.SetDefault("java", "java")
	v.SetDefault("jvm_args", []string{})
	v.SetDefault("log_capacity", console.DefaultCapacity)
	v.SetDefault("stop_timeout", 10*time.Second)
	v.SetDefault("restart_delay", 3*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.listen", "127.0.0.1:8080")
	v.SetDefault("http.base_path", "/api")
	v.SetDefault("metrics.listen", ":9090")
}

// Load reads the daemon configuration. An empty path yields defaults plus any
// CRAFTVISOR_* environment overrides. Relative paths inside the file resolve
// against the file's directory.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base := "."
	if path != "" {
		v.SetConfigFile(path)
		if filepath.Ext(path) == "" {
			v.SetConfigType("toml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		base = filepath.Dir(path)
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.resolve(base)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) resolve(base string) {
	c.ServerDir = resolvePath(base, c.ServerDir)
	// settings_file is relative to the server directory, next to server.properties
	c.SettingsFile = resolvePath(c.ServerDir, c.SettingsFile)
	c.Log.File.Path = resolvePath(base, c.Log.File.Path)
	c.Console.Path = resolvePath(base, c.Console.Path)
	c.HTTP.TLS.CertFile = resolvePath(base, c.HTTP.TLS.CertFile)
	c.HTTP.TLS.KeyFile = resolvePath(base, c.HTTP.TLS.KeyFile)
	c.HTTP.TLS.Dir = resolvePath(base, c.HTTP.TLS.Dir)
	c.History.DSN = strings.TrimSpace(c.History.DSN)
}

func resolvePath(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// Validate checks the values Load cannot default away.
func (c *Config) Validate() error {
	var errs []error
	if c.ServerDir == "" {
		errs = append(errs, errors.New("server_dir must be set"))
	}
	if strings.TrimSpace(c.Java) == "" {
		errs = append(errs, errors.New("java must be set"))
	}
	if c.LogCapacity <= 0 {
		errs = append(errs, fmt.Errorf("log_capacity must be positive, got %d", c.LogCapacity))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("stop_timeout must be positive, got %s", c.StopTimeout))
	}
	if c.RestartDelay < 0 {
		errs = append(errs, fmt.Errorf("restart_delay cannot be negative, got %s", c.RestartDelay))
	}
	if c.HTTP.Enabled && c.HTTP.Listen == "" {
		errs = append(errs, errors.New("http.listen must be set when http is enabled"))
	}
	if t := c.HTTP.TLS; t.Enabled && (t.CertFile == "" || t.KeyFile == "") && t.Dir == "" {
		errs = append(errs, errors.New("http.tls needs cert_file and key_file, or dir"))
	}
	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, errors.New("metrics.listen must be set when metrics are enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LoggerConfig converts the [log] section to a logger.Config.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Log.Level,
		Format: c.Log.Format,
		Color:  c.Log.Color,
		File:   c.Log.File.toLogger(),
	}
}

// ConsoleFile converts the [console] section to a logger.FileConfig.
func (c *Config) ConsoleFile() logger.FileConfig { return c.Console.toLogger() }

func (f FileConfig) toLogger() logger.FileConfig {
	return logger.FileConfig{
		Path:       f.Path,
		MaxSizeMB:  f.MaxSizeMB,
		MaxBackups: f.MaxBackups,
		MaxAgeDays: f.MaxAgeDays,
		Compress:   f.Compress,
	}
}
