package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Vault.Account != "vault.near" || cfg.Storage.Backend != BackendLevelDB {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected default file written: %v", err)
	}
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Vault.DefaultBorrowAmount != DefaultBorrowAmount {
		t.Fatalf("default borrow amount not persisted: %q", reloaded.Vault.DefaultBorrowAmount)
	}
}

func TestLoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	contents := `DataDir = "/var/lib/vault"

[Vault]
Owner = "dao.near"
Account = "vault.near"
Asset = "usdc.near"
BridgeAccount = "bridge.near"
AssetDecimals = 6
ExtraDecimals = 3
DefaultBorrowAmount = "250"
MaxQueueSteps = 10
Accounts = ["solver-deposit.near"]

[Storage]
Backend = "Bolt"

[[Genesis]]
Account = "alice.near"
Amount = "1000"

[[Genesis]]
Account = "bob.near"
Amount = "0"

[Pauses]
Vault = true

[Quota]
MaxIntentsPerEpoch = 3
MaxBorrowPerEpoch = "5000"
EpochSeconds = 3600
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.Backend != BackendBolt || cfg.Storage.Path != filepath.Join("/var/lib/vault", "bolt") {
		t.Fatalf("unexpected storage %+v", cfg.Storage)
	}
	hostCfg, err := cfg.HostConfig()
	if err != nil {
		t.Fatalf("host config: %v", err)
	}
	if hostCfg.Vault.DefaultBorrowAmount.Int64() != 250 || hostCfg.Vault.BridgeAccount != "bridge.near" {
		t.Fatalf("unexpected params %+v", hostCfg.Vault)
	}
	if len(hostCfg.Genesis) != 1 || hostCfg.Genesis[0].Amount.Int64() != 1000 {
		t.Fatalf("expected zero allocation skipped, got %+v", hostCfg.Genesis)
	}
	if hostCfg.IntentQuota.MaxRequestsPerEpoch != 3 || hostCfg.IntentQuota.MaxAmountPerEpoch.Int64() != 5000 {
		t.Fatalf("unexpected quota %+v", hostCfg.IntentQuota)
	}
	if !hostCfg.Pauses.IsPaused("vault") {
		t.Fatalf("expected vault paused")
	}
	if hostCfg.MaxQueueSteps != 10 || len(hostCfg.Accounts) != 1 {
		t.Fatalf("unexpected host config %+v", hostCfg)
	}
}

func TestValidateRejects(t *testing.T) {
	base := func() *Config {
		cfg := &Config{Vault: Vault{Owner: "o", Account: "v", Asset: "a"}}
		cfg.applyDefaults()
		return cfg
	}
	cases := map[string]func(*Config){
		"owner":    func(c *Config) { c.Vault.Owner = " " },
		"decimals": func(c *Config) { c.Vault.ExtraDecimals = MaxExtraDecimals + 1 },
		"borrow":   func(c *Config) { c.Vault.DefaultBorrowAmount = "0" },
		"backend":  func(c *Config) { c.Storage.Backend = "redis" },
		"genesis":  func(c *Config) { c.Genesis = []GenesisAllocation{{Account: "x", Amount: "-1"}} },
		"quota":    func(c *Config) { c.Quota.MaxIntentsPerEpoch = 1 },
		"overflow": func(c *Config) { c.Vault.DefaultBorrowAmount = strings.Repeat("9", 40) },
	}
	for name, mutate := range cases {
		cfg := base()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}
}

func TestOpenDatabaseMemory(t *testing.T) {
	cfg := &Config{Storage: Storage{Backend: BackendMemory}}
	db, err := cfg.OpenDatabase()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatalf("put: %v", err)
	}
}
