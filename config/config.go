// Package config loads and validates the plutusbot runtime configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"plutusbot/chain"
)

// Duration wraps time.Duration to support human readable YAML values.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses duration strings like "10s" or "2m".
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string")
	}
	if value.Value == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime settings for the bot process.
type Config struct {
	Telegram TelegramConfig `yaml:"telegram"`
	Plutus   PlutusConfig   `yaml:"plutus"`
	Chain    ChainConfig    `yaml:"chain"`
	Sessions SessionsConfig `yaml:"sessions"`
	Ops      OpsConfig      `yaml:"ops"`
}

// TelegramConfig resolves the bot token. The token itself never lives in the
// config file outside development setups.
type TelegramConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	TokenEnv  string `yaml:"token_env"`
}

// PlutusConfig points at the Plutus REST API.
type PlutusConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// ChainConfig configures the RPC endpoint and the custodial signer.
type ChainConfig struct {
	Endpoint      string             `yaml:"endpoint"`
	ChainID       int64              `yaml:"chain_id"`
	Signer        chain.SignerConfig `yaml:"signer"`
	Confirmations uint64             `yaml:"confirmations"`
	PollInterval  Duration           `yaml:"poll_interval"`
	SubmitTimeout Duration           `yaml:"submit_timeout"`
}

// SessionsConfig controls in-memory session retention. A zero TTL disables
// eviction entirely.
type SessionsConfig struct {
	TTL             Duration `yaml:"ttl"`
	JanitorInterval Duration `yaml:"janitor_interval"`
}

// OpsConfig configures the operational HTTP listener.
type OpsConfig struct {
	Listen string `yaml:"listen"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	var cfg Config
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	cfg.Telegram.TokenFile = strings.TrimSpace(cfg.Telegram.TokenFile)
	cfg.Telegram.TokenEnv = strings.TrimSpace(cfg.Telegram.TokenEnv)
	cfg.Plutus.BaseURL = strings.TrimSpace(cfg.Plutus.BaseURL)
	if cfg.Plutus.Timeout.Duration <= 0 {
		cfg.Plutus.Timeout.Duration = 10 * time.Second
	}
	cfg.Chain.Endpoint = strings.TrimSpace(cfg.Chain.Endpoint)
	if cfg.Chain.PollInterval.Duration <= 0 {
		cfg.Chain.PollInterval.Duration = 2 * time.Second
	}
	if cfg.Chain.SubmitTimeout.Duration <= 0 {
		cfg.Chain.SubmitTimeout.Duration = 2 * time.Minute
	}
	if cfg.Sessions.JanitorInterval.Duration <= 0 {
		cfg.Sessions.JanitorInterval.Duration = time.Minute
	}
	cfg.Ops.Listen = strings.TrimSpace(cfg.Ops.Listen)
	if cfg.Ops.Listen == "" {
		cfg.Ops.Listen = ":9090"
	}
}

func (cfg *Config) validate() error {
	if err := cfg.Telegram.validate(); err != nil {
		return fmt.Errorf("telegram: %w", err)
	}
	if cfg.Plutus.BaseURL == "" {
		return fmt.Errorf("plutus: base_url required")
	}
	if cfg.Chain.Endpoint == "" {
		return fmt.Errorf("chain: endpoint required")
	}
	if cfg.Chain.ChainID <= 0 {
		return fmt.Errorf("chain: chain_id required")
	}
	return nil
}

func (cfg TelegramConfig) validate() error {
	sources := 0
	if cfg.Token != "" {
		sources++
	}
	if cfg.TokenFile != "" {
		sources++
	}
	if cfg.TokenEnv != "" {
		sources++
	}
	if sources == 0 {
		return fmt.Errorf("token not configured")
	}
	if sources > 1 {
		return fmt.Errorf("token configured from multiple sources")
	}
	return nil
}

// ResolveToken returns the bot token from the configured source.
func (cfg TelegramConfig) ResolveToken() (string, error) {
	switch {
	case cfg.TokenEnv != "":
		token := strings.TrimSpace(os.Getenv(cfg.TokenEnv))
		if token == "" {
			return "", fmt.Errorf("environment variable %s is empty", cfg.TokenEnv)
		}
		return token, nil
	case cfg.TokenFile != "":
		data, err := os.ReadFile(cfg.TokenFile)
		if err != nil {
			return "", fmt.Errorf("read token file: %w", err)
		}
		token := strings.TrimSpace(string(data))
		if token == "" {
			return "", fmt.Errorf("token file %s is empty", cfg.TokenFile)
		}
		return token, nil
	default:
		return cfg.Token, nil
	}
}
