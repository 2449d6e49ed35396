package config

import (
	"fmt"
	"math/big"
	"strings"

	"intentvault/core/host"
	nativecommon "intentvault/native/common"
	"intentvault/native/vault"
	"intentvault/storage"
)

func parseUintAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return new(big.Int), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", value)
	}
	if amount.Cmp(vault.MaxU128()) > 0 {
		return nil, fmt.Errorf("amount %q exceeds u128", value)
	}
	return amount, nil
}

// VaultParams converts the [Vault] section into engine parameters.
func (c *Config) VaultParams() (vault.Params, error) {
	amount, err := parseUintAmount(c.Vault.DefaultBorrowAmount)
	if err != nil {
		return vault.Params{}, err
	}
	return vault.Params{
		Owner:               c.Vault.Owner,
		Account:             c.Vault.Account,
		Asset:               c.Vault.Asset,
		BridgeAccount:       c.Vault.BridgeAccount,
		ExtraDecimals:       c.Vault.ExtraDecimals,
		AssetDecimals:       c.Vault.AssetDecimals,
		DefaultBorrowAmount: amount,
	}, nil
}

// GenesisAllocations parses the [[Genesis]] balances.
func (c *Config) GenesisAllocations() ([]host.Allocation, error) {
	out := make([]host.Allocation, 0, len(c.Genesis))
	for _, alloc := range c.Genesis {
		amount, err := parseUintAmount(alloc.Amount)
		if err != nil {
			return nil, fmt.Errorf("genesis %s: %w", alloc.Account, err)
		}
		if amount.Sign() == 0 {
			continue
		}
		out = append(out, host.Allocation{Account: strings.TrimSpace(alloc.Account), Amount: amount})
	}
	return out, nil
}

// IntentQuota parses the [Quota] section.
func (c *Config) IntentQuota() (nativecommon.Quota, error) {
	maxBorrow, err := parseUintAmount(c.Quota.MaxBorrowPerEpoch)
	if err != nil {
		return nativecommon.Quota{}, err
	}
	return nativecommon.Quota{
		MaxRequestsPerEpoch: c.Quota.MaxIntentsPerEpoch,
		MaxAmountPerEpoch:   maxBorrow,
		EpochSeconds:        c.Quota.EpochSeconds,
	}, nil
}

// PauseSet seeds the runtime pause switches from [Pauses].
func (c *Config) PauseSet() *nativecommon.PauseSet {
	pauses := nativecommon.NewPauseSet()
	pauses.Set("vault", c.Pauses.Vault)
	return pauses
}

// HostConfig assembles everything host.New needs from the file.
func (c *Config) HostConfig() (host.Config, error) {
	params, err := c.VaultParams()
	if err != nil {
		return host.Config{}, err
	}
	genesis, err := c.GenesisAllocations()
	if err != nil {
		return host.Config{}, err
	}
	quota, err := c.IntentQuota()
	if err != nil {
		return host.Config{}, err
	}
	return host.Config{
		Vault:         params,
		MaxQueueSteps: c.Vault.MaxQueueSteps,
		IntentQuota:   quota,
		Pauses:        c.PauseSet(),
		Genesis:       genesis,
		Accounts:      append([]string(nil), c.Vault.Accounts...),
	}, nil
}

// OpenDatabase opens the configured storage backend.
func (c *Config) OpenDatabase() (storage.Database, error) {
	switch c.Storage.Backend {
	case BackendMemory:
		return storage.NewMemDB(), nil
	case BackendLevelDB:
		return storage.NewLevelDB(c.Storage.Path)
	case BackendBolt:
		return storage.NewBoltDB(c.Storage.Path, nil)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
}
