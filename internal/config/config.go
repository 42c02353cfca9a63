// Package config loads process configuration for the editor front ends
// from YAML files, .env files and environment variables.
package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/fpang/ai-image-editor/internal/chat"
)

// Config is the process configuration shared by the CLI, web server, Lambda
// and MCP server. Model holds per-process overrides applied on top of the
// stored model settings; it is never persisted.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	Output      OutputConfig     `yaml:"output"`
	AWS         AWSConfig        `yaml:"aws"`
	Gemini      GeminiConfig     `yaml:"gemini"`
	Log         LogConfig        `yaml:"log"`
	Model       chat.ConfigPatch `yaml:"model"`
	SettingsDir string           `yaml:"settingsDir"`
}

// ServerConfig configures the local web server.
type ServerConfig struct {
	Addr        string `yaml:"addr"`
	OpenBrowser bool   `yaml:"openBrowser"`
}

// OutputConfig controls where downloads go and how the CLI renders.
type OutputConfig struct {
	Dir       string `yaml:"dir"`
	ColorMode string `yaml:"colorMode"`
}

// AWSConfig names the resources used by the Lambda deployment.
type AWSConfig struct {
	ResultBucket string `yaml:"resultBucket"`
	SessionTable string `yaml:"sessionTable"`
	SSMParam     string `yaml:"ssmParam"`
}

// GeminiConfig tunes the remote client.
type GeminiConfig struct {
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
	AnalysisCacheTTL  time.Duration `yaml:"analysisCacheTTL"`
	RequestTimeout    time.Duration `yaml:"requestTimeout"`
}

// LogConfig mirrors EDITOR_LOG_LEVEL and EDITOR_LOG_FORMAT.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Color modes accepted by OutputConfig.ColorMode.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Addr: "127.0.0.1:8080"},
		Output: OutputConfig{Dir: ".", ColorMode: ColorAuto},
		Gemini: GeminiConfig{
			RequestsPerSecond: 1,
			Burst:             4,
			AnalysisCacheTTL:  chat.DefaultAnalysisTTL,
			RequestTimeout:    chat.DefaultRequestTimeout,
		},
		Log: LogConfig{Level: "info"},
	}
}

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks the merged configuration.
func (c *Config) Validate() error {
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		return fmt.Errorf("%w: server.addr %q: %v", ErrInvalid, c.Server.Addr, err)
	}
	switch c.Output.ColorMode {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return fmt.Errorf("%w: output.colorMode must be auto, always or never, got %q", ErrInvalid, c.Output.ColorMode)
	}
	if c.Gemini.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: gemini.requestsPerSecond must not be negative", ErrInvalid)
	}
	if c.Gemini.RequestsPerSecond > 0 && c.Gemini.Burst < 1 {
		return fmt.Errorf("%w: gemini.burst must be at least 1", ErrInvalid)
	}
	if c.Gemini.RequestTimeout <= 0 {
		return fmt.Errorf("%w: gemini.requestTimeout must be positive", ErrInvalid)
	}
	if err := chat.DefaultConfig().Apply(c.Model).Validate(); err != nil {
		return fmt.Errorf("%w: model: %w", ErrInvalid, err)
	}
	return nil
}
