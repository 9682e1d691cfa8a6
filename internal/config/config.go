package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/youruser/contextco/internal/logging"
)

var (
	ErrNoConfig            = errors.New("config file not found")
	ErrInvalidJSON         = errors.New("invalid config JSON")
	ErrInvalidYAML         = errors.New("invalid config YAML")
	ErrInvalidServerURL    = errors.New("server_url must be an http or https URL")
	ErrInvalidContextLines = errors.New("context_lines must be between 0 and 20")
	ErrInvalidTimeout      = errors.New("request_timeout_seconds must not be negative")
)

const (
	DefaultServerURL = "http://127.0.0.1:8000"
	maxContextLines  = 20
)

// Environment overrides.
const (
	EnvServerURL = "CONTEXTCO_SERVER_URL"
	EnvWorkspace = "CONTEXTCO_WORKSPACE"
)

var log = logging.Get()

// Config holds the contextco configuration.
type Config struct {
	ServerURL             string `json:"server_url" yaml:"server_url"`
	WorkspaceRoot         string `json:"workspace_root" yaml:"workspace_root"`                   // Project root edits apply to (default: working directory)
	ContextLines          *int   `json:"context_lines" yaml:"context_lines"`                     // Unchanged lines around a change (default: 2)
	RequestTimeoutSeconds *int   `json:"request_timeout_seconds" yaml:"request_timeout_seconds"` // Connection setup limit, 0 for none (default: 0)
	HighlightOnResolve    *bool  `json:"highlight_on_resolve" yaml:"highlight_on_resolve"`       // Highlight changed lines once a diff resolves (default: true)
}

// Dir returns the directory holding the config file.
func Dir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "contextco"), nil
}

// Load loads .env from the working directory, then the first of
// config.json, config.yaml and config.yml under Dir, then applies
// environment overrides. A missing config file yields the defaults.
func Load() (*Config, error) {
	loadDotEnv(".env")

	dir, err := Dir()
	if err != nil {
		return nil, err
	}

	var cfg *Config
	for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
		cfg, err = read(filepath.Join(dir, name))
		if errors.Is(err, ErrNoConfig) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info("Loaded config from %s", filepath.Join(dir, name))
		break
	}
	if cfg == nil {
		log.Debug("No config file in %s, using defaults", dir)
		cfg = &Config{}
	}

	applyEnv(cfg)
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFrom reads the config from a specific path. The format follows the
// extension: .yaml and .yml are YAML, anything else JSON. Environment
// overrides are not applied.
func LoadFrom(path string) (*Config, error) {
	cfg, err := read(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoConfig
		}
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, ErrInvalidJSON
		}
	}
	return &cfg, nil
}

// loadDotEnv sets variables from path without overriding ones already set.
func loadDotEnv(path string) {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Error("Failed to load %s: %v", path, err)
	}
}

func applyEnv(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvServerURL)); v != "" {
		cfg.ServerURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWorkspace)); v != "" {
		cfg.WorkspaceRoot = v
	}
}

// finish fills defaults and validates.
func (cfg *Config) finish() error {
	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
	}
	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")
	if cfg.ContextLines == nil {
		n := 2
		cfg.ContextLines = &n
	}
	if cfg.RequestTimeoutSeconds == nil {
		n := 0
		cfg.RequestTimeoutSeconds = &n
	}
	if cfg.HighlightOnResolve == nil {
		t := true
		cfg.HighlightOnResolve = &t
	}

	u, err := url.Parse(cfg.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidServerURL
	}
	if *cfg.ContextLines < 0 || *cfg.ContextLines > maxContextLines {
		return ErrInvalidContextLines
	}
	if *cfg.RequestTimeoutSeconds < 0 {
		return ErrInvalidTimeout
	}
	return nil
}

// RequestTimeout returns the connection setup limit, zero for none.
func (cfg *Config) RequestTimeout() time.Duration {
	if cfg.RequestTimeoutSeconds == nil {
		return 0
	}
	return time.Duration(*cfg.RequestTimeoutSeconds) * time.Second
}
