package chain

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
)

// SignerConfig resolves the custodial signing key. Exactly one of the sources
// should be set; inline keys are supported for development only and the env or
// file indirections are preferred.
type SignerConfig struct {
	Key     string `yaml:"key"`
	KeyFile string `yaml:"key_file"`
	KeyEnv  string `yaml:"key_env"`
}

// LoadSigner materialises the ECDSA key from the configured source.
func LoadSigner(cfg SignerConfig) (*ecdsa.PrivateKey, error) {
	raw, err := resolveKeyMaterial(cfg)
	if err != nil {
		return nil, err
	}
	raw = strings.TrimSpace(strings.TrimPrefix(raw, "0x"))
	if raw == "" {
		return nil, fmt.Errorf("chain: signer key is empty")
	}
	key, err := crypto.HexToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("chain: parse signer key: %w", err)
	}
	return key, nil
}

func resolveKeyMaterial(cfg SignerConfig) (string, error) {
	sources := 0
	if strings.TrimSpace(cfg.Key) != "" {
		sources++
	}
	if strings.TrimSpace(cfg.KeyFile) != "" {
		sources++
	}
	if strings.TrimSpace(cfg.KeyEnv) != "" {
		sources++
	}
	if sources == 0 {
		return "", fmt.Errorf("chain: signer key not configured")
	}
	if sources > 1 {
		return "", fmt.Errorf("chain: signer key configured from multiple sources")
	}
	switch {
	case strings.TrimSpace(cfg.KeyEnv) != "":
		value := os.Getenv(strings.TrimSpace(cfg.KeyEnv))
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("chain: environment variable %s is empty", strings.TrimSpace(cfg.KeyEnv))
		}
		return value, nil
	case strings.TrimSpace(cfg.KeyFile) != "":
		data, err := os.ReadFile(strings.TrimSpace(cfg.KeyFile))
		if err != nil {
			return "", fmt.Errorf("chain: read signer key file: %w", err)
		}
		return string(data), nil
	default:
		return cfg.Key, nil
	}
}
