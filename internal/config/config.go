package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/minekeeper/minekeeper/internal/detector"
	"github.com/minekeeper/minekeeper/internal/history/factory"
	"github.com/minekeeper/minekeeper/internal/logger"
	"github.com/minekeeper/minekeeper/internal/supervisor"
)

// Environment variables recognized on top of the config file.
const (
	EnvMode     = "MINEKEEPER_ENV"       // "production" enables auto-start at boot
	EnvHTTPAddr = "MINEKEEPER_HTTP_ADDR" // overrides http.listen
)

// Config is the top-level TOML structure.
type Config struct {
	Production bool                 `toml:"production" mapstructure:"production"`
	Server     ServerConfig         `toml:"server" mapstructure:"server"`
	HTTP       HTTPConfig           `toml:"http" mapstructure:"http"`
	Log        LogConfig            `toml:"log" mapstructure:"log"`
	Console    logger.ConsoleConfig `toml:"console" mapstructure:"console"`
	History    factory.Config       `toml:"history" mapstructure:"history"`
	Endpoints  EndpointsConfig      `toml:"endpoints" mapstructure:"endpoints"`
}

// ServerConfig describes the supervised server and its lifecycle policy.
type ServerConfig struct {
	Name           string          `toml:"name" mapstructure:"name"`
	Command        string          `toml:"command" mapstructure:"command"`
	WorkDir        string          `toml:"workdir" mapstructure:"workdir"`
	Env            []string        `toml:"env" mapstructure:"env"`
	StopCommand    string          `toml:"stop_command" mapstructure:"stop_command"`
	StopTimeout    time.Duration   `toml:"stop_timeout" mapstructure:"stop_timeout"`
	MaxRestarts    int             `toml:"max_restarts" mapstructure:"max_restarts"`
	RestartBackoff time.Duration   `toml:"restart_backoff" mapstructure:"restart_backoff"`
	SampleInterval time.Duration   `toml:"sample_interval" mapstructure:"sample_interval"`
	MaxCommandLen  int             `toml:"max_command_len" mapstructure:"max_command_len"`
	Markers        detector.Config `toml:"markers" mapstructure:"markers"`
}

type HTTPConfig struct {
	Listen          string        `toml:"listen" mapstructure:"listen"`
	BasePath        string        `toml:"base_path" mapstructure:"base_path"`
	ShutdownCeiling time.Duration `toml:"shutdown_ceiling" mapstructure:"shutdown_ceiling"`
}

type LogConfig struct {
	Level string `toml:"level" mapstructure:"level"`
	Color bool   `toml:"color" mapstructure:"color"`
}

// EndpointsConfig is advertised verbatim through GET /status so players know
// where to connect. The supervisor itself never uses these values.
type EndpointsConfig struct {
	Host        string `toml:"host" mapstructure:"host"`
	JavaPort    int    `toml:"java_port" mapstructure:"java_port"`
	BedrockPort int    `toml:"bedrock_port" mapstructure:"bedrock_port"`
}

// Load reads a TOML config file and applies environment overrides and
// defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, err
	}
	c.applyEnv()
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	if strings.EqualFold(os.Getenv(EnvMode), "production") {
		c.Production = true
	}
	if addr := os.Getenv(EnvHTTPAddr); addr != "" {
		c.HTTP.Listen = addr
	}
}

func (c *Config) applyDefaults() {
	if c.HTTP.Listen == "" {
		c.HTTP.Listen = ":8080"
	}
	if c.HTTP.BasePath == "" {
		c.HTTP.BasePath = "/api"
	}
	if c.HTTP.ShutdownCeiling <= 0 {
		c.HTTP.ShutdownCeiling = 5 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Endpoints.Host == "" {
		c.Endpoints.Host = "localhost"
	}
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.Server.Command) == "" {
		return fmt.Errorf("server.command is required")
	}
	if len(c.Server.Markers.Ready) == 0 {
		return fmt.Errorf("server.markers.ready requires at least one marker")
	}
	return nil
}

// SupervisorSpec maps the file config onto the supervisor's spec.
func (c *Config) SupervisorSpec() supervisor.Spec {
	return supervisor.Spec{
		Name:           c.Server.Name,
		Command:        c.Server.Command,
		WorkDir:        c.Server.WorkDir,
		Env:            c.Server.Env,
		StopCommand:    c.Server.StopCommand,
		StopTimeout:    c.Server.StopTimeout,
		MaxRestarts:    c.Server.MaxRestarts,
		RestartBackoff: c.Server.RestartBackoff,
		SampleInterval: c.Server.SampleInterval,
		MaxCommandLen:  c.Server.MaxCommandLen,
		Markers:        c.Server.Markers,
		Console:        c.Console,
	}
}
