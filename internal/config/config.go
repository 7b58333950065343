package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Provider   ProviderConfig `yaml:"provider" validate:"required"`
	Limits     Limits         `yaml:"limits" validate:"required"`
	Thresholds Thresholds     `yaml:"thresholds" validate:"required"`
	OutputDir  string         `yaml:"output_dir"`
}

type ProviderConfig struct {
	Backend string `yaml:"backend" validate:"required,oneof=anthropic openai mock"`
	APIKey  string `yaml:"api_key" validate:"required_unless=Backend mock"`
	Model   string `yaml:"model" validate:"required"`
	BaseURL string `yaml:"base_url" validate:"omitempty,url"`

	RequestsPerMinute int `yaml:"requests_per_minute" validate:"min=0,max=1000"`
	BurstSize         int `yaml:"burst_size" validate:"min=0,max=100"`
}

// Load reads the config file (yaml), layering .env and environment
// variables over it, then validates the result. A missing file yields a
// default config so the mock backend works out of the box.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()

	path := configPath()
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// fall through to env + defaults
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config usable without any file: mock backend, default
// limits and thresholds.
func Default() *Config {
	return &Config{
		Provider: ProviderConfig{
			Backend:           "mock",
			Model:             "claude-3-5-sonnet-20241022",
			RequestsPerMinute: 30,
			BurstSize:         10,
		},
		Limits:     DefaultLimits(),
		Thresholds: DefaultThresholds(),
	}
}

func configPath() string {
	if path := os.Getenv("LOREFORGE_CONFIG"); path != "" {
		return path
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "loreforge", "config.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "loreforge", "config.yaml")
}

func applyEnv(cfg *Config) {
	if key := os.Getenv("LOREFORGE_API_KEY"); key != "" {
		cfg.Provider.APIKey = key
	}
	if cfg.Provider.APIKey == "" || cfg.Provider.APIKey == "${ANTHROPIC_API_KEY}" {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			cfg.Provider.APIKey = key
		}
	}
	if cfg.Provider.APIKey == "" || cfg.Provider.APIKey == "${OPENAI_API_KEY}" {
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			cfg.Provider.APIKey = key
		}
	}
	if backend := os.Getenv("LOREFORGE_BACKEND"); backend != "" {
		cfg.Provider.Backend = backend
	}
	if model := os.Getenv("LOREFORGE_MODEL"); model != "" {
		cfg.Provider.Model = model
	}
}

func (c *Config) applyDefaults() {
	if c.Limits.PhaseTimeout == 0 {
		c.Limits = DefaultLimits()
	}
	if c.Thresholds.MinEntities == 0 && c.Thresholds.MinStoryChars == 0 {
		c.Thresholds = DefaultThresholds()
	}
	if c.OutputDir == "" {
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			c.OutputDir = filepath.Join(xdg, "loreforge", "output")
		} else {
			home, _ := os.UserHomeDir()
			c.OutputDir = filepath.Join(home, ".local", "share", "loreforge", "output")
		}
	}
	if c.Provider.RequestsPerMinute == 0 {
		c.Provider.RequestsPerMinute = 30
	}
	if c.Provider.BurstSize == 0 {
		c.Provider.BurstSize = 10
	}
}

// Validate runs structural validation over the whole config.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if err := c.Limits.validate(); err != nil {
		return err
	}
	return c.Thresholds.validate()
}
