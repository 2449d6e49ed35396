package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

type Config struct {
	DataDir string              `toml:"DataDir"`
	Vault   Vault               `toml:"Vault"`
	Storage Storage             `toml:"Storage"`
	Genesis []GenesisAllocation `toml:"Genesis"`
	Pauses  Pauses              `toml:"Pauses"`
	Quota   Quota               `toml:"Quota"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./vault-data"
	}
	if strings.TrimSpace(c.Storage.Backend) == "" {
		c.Storage.Backend = BackendLevelDB
	}
	c.Storage.Backend = strings.ToLower(strings.TrimSpace(c.Storage.Backend))
	if c.Storage.Backend != BackendMemory && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = filepath.Join(c.DataDir, c.Storage.Backend)
	}
	if strings.TrimSpace(c.Vault.DefaultBorrowAmount) == "" {
		c.Vault.DefaultBorrowAmount = DefaultBorrowAmount
	}
	if c.Vault.Accounts == nil {
		c.Vault.Accounts = []string{}
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir: "./vault-data",
		Vault: Vault{
			Owner:               "owner.near",
			Account:             "vault.near",
			Asset:               "usdc.near",
			AssetDecimals:       6,
			ExtraDecimals:       3,
			DefaultBorrowAmount: DefaultBorrowAmount,
			MaxQueueSteps:       64,
			Accounts:            []string{},
		},
		Storage: Storage{Backend: BackendLevelDB},
		Genesis: []GenesisAllocation{},
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
