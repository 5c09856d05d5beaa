// Package config loads runtime settings.
//
// Sources, lowest to highest precedence:
//
//	defaults → autopr.yaml (optional) → .env → AUTOPR_* environment → PORT
//
// The config file is optional: a bare `autopr serve` with no file works on
// defaults. Credentials are NOT configuration. They arrive with each request.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Backend names accepted by sandbox.backend.
const (
	BackendE2B    = "e2b"
	BackendDocker = "docker"
)

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type SandboxConfig struct {
	Backend      string        `mapstructure:"backend"`
	Template     string        `mapstructure:"template"`
	CloseTimeout time.Duration `mapstructure:"close_timeout"`
}

type ScriptConfig struct {
	Path       string `mapstructure:"path"`
	RemotePath string `mapstructure:"remote_path"`
}

type E2BConfig struct {
	Domain         string        `mapstructure:"domain"`
	Lifetime       time.Duration `mapstructure:"lifetime"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DockerConfig struct {
	Image       string  `mapstructure:"image"`
	MemoryLimit int64   `mapstructure:"memory_limit"`
	CPULimit    float64 `mapstructure:"cpu_limit"`
	NetworkMode string  `mapstructure:"network_mode"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Script  ScriptConfig  `mapstructure:"script"`
	E2B     E2BConfig     `mapstructure:"e2b"`
	Docker  DockerConfig  `mapstructure:"docker"`
	Log     LogConfig     `mapstructure:"log"`
}

// Options point Load at non-default locations. Zero values mean defaults.
type Options struct {
	// ConfigFile is an explicit config path. When set, it must exist.
	ConfigFile string
	// EnvFile is loaded into the process environment before reading env vars.
	// Missing env files are ignored.
	EnvFile string
}

// Load builds the Config.
func Load(opts Options) (*Config, error) {
	envFile := opts.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading %s: %w", envFile, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("AUTOPR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// PORT is the platform convention (Heroku, Cloud Run, Railway ...).
	if err := v.BindEnv("server.port", "AUTOPR_SERVER_PORT", "PORT"); err != nil {
		return nil, fmt.Errorf("binding PORT: %w", err)
	}

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else {
		v.SetConfigName("autopr")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.autopr")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("sandbox.backend", BackendE2B)
	v.SetDefault("sandbox.template", "Nodejs")
	v.SetDefault("sandbox.close_timeout", 30*time.Second)

	v.SetDefault("script.path", "e2b_script_content.sh")
	v.SetDefault("script.remote_path", "/home/user/e2b_script_content.sh")

	v.SetDefault("e2b.domain", "e2b.app")
	v.SetDefault("e2b.lifetime", time.Hour)
	v.SetDefault("e2b.request_timeout", 60*time.Second)

	v.SetDefault("docker.image", "node:22-bookworm")
	v.SetDefault("docker.memory_limit", 1024*1024*1024)
	v.SetDefault("docker.cpu_limit", 1.0)
	v.SetDefault("docker.network_mode", "bridge")

	v.SetDefault("log.level", "info")
}

func (c *Config) validate() error {
	switch c.Sandbox.Backend {
	case BackendE2B, BackendDocker:
	default:
		return fmt.Errorf("unknown sandbox backend %q (want %s or %s)", c.Sandbox.Backend, BackendE2B, BackendDocker)
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	return nil
}

// Template returns the template or image the selected backend should create.
// The docker backend needs an image name, not an E2B template ID.
func (c *Config) Template() string {
	if c.Sandbox.Backend == BackendDocker {
		return c.Docker.Image
	}
	return c.Sandbox.Template
}
