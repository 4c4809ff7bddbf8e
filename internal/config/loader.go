package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"reflectd/internal/common/fsutil"
)

// Config holds runtime parameters for the reflection service. It is built
// once at startup and passed into each component's constructor; nothing in
// the module reads ambient global state.
type Config struct {
	Addr string `json:"addr" yaml:"addr" toml:"addr"`

	// DataDir is the per-user application data directory. ModelsDir and
	// CacheDir default to subdirectories of it when left empty.
	DataDir   string `json:"data_dir" yaml:"data_dir" toml:"data_dir"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	CacheDir  string `json:"cache_dir" yaml:"cache_dir" toml:"cache_dir"`

	// Artifact identity. The file is fetched from the repo over HTTPS and
	// stored under ModelsDir with the same name.
	ModelRepo string `json:"model_repo" yaml:"model_repo" toml:"model_repo"`
	ModelFile string `json:"model_file" yaml:"model_file" toml:"model_file"`

	// Generation parameters.
	Threads     int     `json:"threads" yaml:"threads" toml:"threads"`
	ContextSize int     `json:"context_size" yaml:"context_size" toml:"context_size"`
	Temperature float64 `json:"temperature" yaml:"temperature" toml:"temperature"`
	MaxTokens   int     `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`

	// Reflection cache.
	CacheEnabled     bool `json:"cache_enabled" yaml:"cache_enabled" toml:"cache_enabled"`
	CacheExpiryHours int  `json:"cache_expiry_hours" yaml:"cache_expiry_hours" toml:"cache_expiry_hours"`

	// Load the model automatically when the service starts.
	AutoLoadModel bool `json:"auto_load_model" yaml:"auto_load_model" toml:"auto_load_model"`

	// Retry budgets. ServiceLoadRetries is deliberately higher than
	// LoadRetries: packaged deployments need extra attempts while the
	// filesystem settles after install.
	LoadRetries        int `json:"load_retries" yaml:"load_retries" toml:"load_retries"`
	ServiceLoadRetries int `json:"service_load_retries" yaml:"service_load_retries" toml:"service_load_retries"`

	LogLevel string `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Default returns the documented defaults. Load unmarshals a file over this
// value, so explicit zero/false settings in a file are honored.
func Default() Config {
	return Config{
		Addr:               ":8090",
		ModelRepo:          "Qwen/Qwen2.5-3B-Instruct-GGUF",
		ModelFile:          "qwen2.5-3b-instruct-q4_k_m.gguf",
		Threads:            4,
		ContextSize:        2048,
		Temperature:        0.7,
		MaxTokens:          512,
		CacheEnabled:       true,
		CacheExpiryHours:   168,
		AutoLoadModel:      true,
		LoadRetries:        3,
		ServiceLoadRetries: 5,
		LogLevel:           "info",
	}
}

// CacheExpiry returns the cache expiry window as a duration.
func (c Config) CacheExpiry() time.Duration {
	return time.Duration(c.CacheExpiryHours) * time.Hour
}

// Load reads a configuration file based on its extension and overlays it on
// the defaults. Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

// Normalize expands home-relative paths and fills derived directories.
func (c *Config) Normalize() error {
	if c.DataDir == "" {
		c.DataDir = "~/.reflectd"
	}
	d, err := fsutil.ExpandHome(c.DataDir)
	if err != nil {
		return err
	}
	c.DataDir = d
	if c.ModelsDir == "" {
		c.ModelsDir = filepath.Join(c.DataDir, "models")
	} else if c.ModelsDir, err = fsutil.ExpandHome(c.ModelsDir); err != nil {
		return err
	}
	if c.CacheDir == "" {
		c.CacheDir = filepath.Join(c.DataDir, "ai_cache")
	} else if c.CacheDir, err = fsutil.ExpandHome(c.CacheDir); err != nil {
		return err
	}
	return nil
}
