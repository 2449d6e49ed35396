package config

import (
	"fmt"
	"strings"
)

// Validate checks the loaded configuration before any state is opened.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Vault.Owner) == "" {
		return fmt.Errorf("vault: owner required")
	}
	if strings.TrimSpace(c.Vault.Account) == "" {
		return fmt.Errorf("vault: account required")
	}
	if strings.TrimSpace(c.Vault.Asset) == "" {
		return fmt.Errorf("vault: asset required")
	}
	if c.Vault.ExtraDecimals > MaxExtraDecimals {
		return fmt.Errorf("vault: extra_decimals %d exceeds %d", c.Vault.ExtraDecimals, MaxExtraDecimals)
	}
	if c.Vault.MaxQueueSteps < 0 {
		return fmt.Errorf("vault: max_queue_steps must not be negative")
	}
	amount, err := parseUintAmount(c.Vault.DefaultBorrowAmount)
	if err != nil {
		return fmt.Errorf("vault: default_borrow_amount: %w", err)
	}
	if amount.Sign() == 0 {
		return fmt.Errorf("vault: default_borrow_amount must be positive")
	}
	switch c.Storage.Backend {
	case BackendMemory, BackendLevelDB, BackendBolt:
	default:
		return fmt.Errorf("storage: unknown backend %q", c.Storage.Backend)
	}
	for i, alloc := range c.Genesis {
		if strings.TrimSpace(alloc.Account) == "" {
			return fmt.Errorf("genesis[%d]: account required", i)
		}
		if _, err := parseUintAmount(alloc.Amount); err != nil {
			return fmt.Errorf("genesis[%d]: %w", i, err)
		}
	}
	if _, err := parseUintAmount(c.Quota.MaxBorrowPerEpoch); err != nil {
		return fmt.Errorf("quota: max_borrow_per_epoch: %w", err)
	}
	if (c.Quota.MaxIntentsPerEpoch > 0 || strings.TrimSpace(c.Quota.MaxBorrowPerEpoch) != "") && c.Quota.EpochSeconds == 0 {
		return fmt.Errorf("quota: epoch_seconds required when limits are set")
	}
	return nil
}
