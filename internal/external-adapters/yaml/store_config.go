// Package yaml provides YAML-based configuration parsing for the symbol
// locator.
package yaml

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/spyglass/internal/domain/entities"
)

// yamlStoreConfig represents the raw YAML structure
type yamlStoreConfig struct {
	CacheDir   string     `yaml:"cache_dir"`
	SearchDirs []string   `yaml:"search_dirs"`
	Servers    []string   `yaml:"servers"`
	Verify     yamlVerify `yaml:"verify"`
}

type yamlVerify struct {
	Checksums   bool     `yaml:"checksums"`
	GPG         bool     `yaml:"gpg"`
	GPGKeyFiles []string `yaml:"gpg_key_files"`
}

// ParseStoreConfig loads and validates a locator configuration file.
func ParseStoreConfig(path string) (*entities.StoreConfig, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: config path is user-provided
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return ParseStoreConfigBytes(data)
}

// ParseStoreConfigBytes parses a locator configuration from raw YAML.
func ParseStoreConfigBytes(data []byte) (*entities.StoreConfig, error) {
	var raw yamlStoreConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	cfg := &entities.StoreConfig{
		CacheDir:        raw.CacheDir,
		SearchDirs:      raw.SearchDirs,
		Servers:         raw.Servers,
		VerifyChecksums: raw.Verify.Checksums,
		VerifyGPG:       raw.Verify.GPG,
		GPGKeyFiles:     raw.Verify.GPGKeyFiles,
	}
	if len(cfg.Servers) > 0 && cfg.CacheDir == "" {
		return nil, fmt.Errorf("cache_dir is required when servers are configured")
	}
	return cfg, nil
}
