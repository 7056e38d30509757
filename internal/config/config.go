package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Exchanges Exchanges `yaml:"exchanges"`
	Scraper   Scraper   `yaml:"scraper"`
	Enrich    Enrich    `yaml:"enrich"`
	Output    Output    `yaml:"output"`
	Server    Server    `yaml:"server"`
}

type Exchanges struct {
	// Primary exchanges get the full cascade with the fallback floor.
	Primary []string `yaml:"primary"`
	// Others are scraped best-effort and dropped on total failure.
	Others []string `yaml:"others"`
}

type Scraper struct {
	MaxRetries     int                 `yaml:"max_retries"`
	TimeoutSeconds int                 `yaml:"timeout_seconds"`
	Pages          map[string][]string `yaml:"pages"`
}

type Enrich struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Server struct {
	Port int `yaml:"port"`
}

// ConfigDir returns the XDG config directory for cexwatch.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "cexwatch")
}

// DataDir returns the XDG data directory for cexwatch.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "cexwatch")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/cexwatch/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'cexwatch init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Exchanges: Exchanges{
			Primary: []string{"binance", "okx"},
			Others:  []string{"bybit", "htx"},
		},
		Scraper: Scraper{
			MaxRetries:     3,
			TimeoutSeconds: 30,
		},
		Enrich: Enrich{Enabled: false, Limit: 20},
		Server: Server{Port: 8000},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
