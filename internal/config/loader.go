package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fpang/ai-image-editor/internal/chat"
)

// Paths lists the config files searched, highest priority first.
var Paths = []string{
	"./.image-editor.yaml",
	"~/.config/ai-image-editor/config.yaml",
}

// DotEnvFiles are loaded into the environment before overrides are read.
// Variables already set are never replaced.
var DotEnvFiles = []string{".env", ".env.local"}

// Loader merges configuration sources.
type Loader struct {
	paths     []string
	dotEnv    []string
	lookupEnv func(string) (string, bool)
}

// NewLoader returns a Loader over Paths and DotEnvFiles.
func NewLoader() *Loader {
	return &Loader{paths: Paths, dotEnv: DotEnvFiles, lookupEnv: os.LookupEnv}
}

// Load builds the configuration. Priority, highest first:
//  1. command line flags (applied by the caller)
//  2. environment variables (including .env files)
//  3. ./.image-editor.yaml
//  4. ~/.config/ai-image-editor/config.yaml
//  5. built-in defaults
//
// A non-empty customPath replaces the file search.
func (l *Loader) Load(customPath string) (*Config, error) {
	cfg := DefaultConfig()

	if customPath != "" {
		if err := loadFile(cfg, customPath); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", customPath, err)
		}
	} else {
		for i := len(l.paths) - 1; i >= 0; i-- {
			path := expandPath(l.paths[i])
			if _, err := os.Stat(path); err != nil {
				continue
			}
			if err := loadFile(cfg, path); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("Failed to load config file")
				continue
			}
			log.Debug().Str("path", path).Msg("Config file loaded")
		}
	}

	l.loadDotEnv()
	if err := l.applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadDotEnv() {
	var present []string
	for _, f := range l.dotEnv {
		if _, err := os.Stat(f); err == nil {
			present = append(present, f)
		}
	}
	if len(present) == 0 {
		return
	}
	if err := godotenv.Load(present...); err != nil {
		log.Warn().Err(err).Strs("files", present).Msg("Failed to load .env files")
	}
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	merge(cfg, &file)
	return nil
}

// merge copies every non-zero field of src into dst.
func merge(dst, src *Config) {
	setString(&dst.Server.Addr, src.Server.Addr)
	if src.Server.OpenBrowser {
		dst.Server.OpenBrowser = true
	}
	setString(&dst.Output.Dir, src.Output.Dir)
	setString(&dst.Output.ColorMode, src.Output.ColorMode)
	setString(&dst.AWS.ResultBucket, src.AWS.ResultBucket)
	setString(&dst.AWS.SessionTable, src.AWS.SessionTable)
	setString(&dst.AWS.SSMParam, src.AWS.SSMParam)
	setString(&dst.Log.Level, src.Log.Level)
	setString(&dst.Log.Format, src.Log.Format)
	setString(&dst.SettingsDir, src.SettingsDir)

	if src.Gemini.RequestsPerSecond != 0 {
		dst.Gemini.RequestsPerSecond = src.Gemini.RequestsPerSecond
	}
	if src.Gemini.Burst != 0 {
		dst.Gemini.Burst = src.Gemini.Burst
	}
	if src.Gemini.AnalysisCacheTTL != 0 {
		dst.Gemini.AnalysisCacheTTL = src.Gemini.AnalysisCacheTTL
	}
	if src.Gemini.RequestTimeout != 0 {
		dst.Gemini.RequestTimeout = src.Gemini.RequestTimeout
	}
	dst.Model = mergePatch(dst.Model, src.Model)
}

func mergePatch(dst, src chat.ConfigPatch) chat.ConfigPatch {
	if src.Temperature != nil {
		dst.Temperature = src.Temperature
	}
	if src.TopP != nil {
		dst.TopP = src.TopP
	}
	if src.TopK != nil {
		dst.TopK = src.TopK
	}
	if src.MaxOutputTokens != nil {
		dst.MaxOutputTokens = src.MaxOutputTokens
	}
	if src.SafetyLevel != nil {
		dst.SafetyLevel = src.SafetyLevel
	}
	if src.ModelVersion != nil {
		dst.ModelVersion = src.ModelVersion
	}
	return dst
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func (l *Loader) applyEnv(cfg *Config) error {
	envMappings := map[string]func(string) error{
		"EDITOR_ADDR":               func(v string) error { cfg.Server.Addr = v; return nil },
		"EDITOR_OPEN_BROWSER":       func(v string) error { return parseBool(v, &cfg.Server.OpenBrowser) },
		"EDITOR_OUTPUT_DIR":         func(v string) error { cfg.Output.Dir = v; return nil },
		"EDITOR_COLOR":              func(v string) error { cfg.Output.ColorMode = v; return nil },
		"EDITOR_CONFIG_DIR":         func(v string) error { cfg.SettingsDir = v; return nil },
		"EDITOR_LOG_LEVEL":          func(v string) error { cfg.Log.Level = v; return nil },
		"EDITOR_LOG_FORMAT":         func(v string) error { cfg.Log.Format = v; return nil },
		"RESULT_BUCKET_NAME":        func(v string) error { cfg.AWS.ResultBucket = v; return nil },
		"SESSION_TABLE_NAME":        func(v string) error { cfg.AWS.SessionTable = v; return nil },
		"SSM_API_KEY_PARAM":         func(v string) error { cfg.AWS.SSMParam = v; return nil },
		"EDITOR_RATE_LIMIT":         func(v string) error { return parseFloat(v, &cfg.Gemini.RequestsPerSecond) },
		"EDITOR_RATE_BURST":         func(v string) error { return parseInt(v, &cfg.Gemini.Burst) },
		"EDITOR_ANALYSIS_CACHE_TTL": func(v string) error { return parseDuration(v, &cfg.Gemini.AnalysisCacheTTL) },
		"EDITOR_REQUEST_TIMEOUT":    func(v string) error { return parseDuration(v, &cfg.Gemini.RequestTimeout) },
	}

	for envVar, setter := range envMappings {
		if value, ok := l.lookupEnv(envVar); ok && value != "" {
			if err := setter(value); err != nil {
				return fmt.Errorf("invalid value for %s: %w", envVar, err)
			}
		}
	}
	return nil
}

func parseBool(v string, dst *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}
	*dst = b
	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func parseFloat(v string, dst *float64) error {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return err
	}
	*dst = f
	return nil
}

func parseDuration(v string, dst *time.Duration) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
