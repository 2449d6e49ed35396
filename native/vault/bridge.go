package vault

import (
	"math/big"
	"strings"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

const base58Alphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

// ValidateEVMAddress accepts 0x followed by 40 hex characters.
func ValidateEVMAddress(address string) error {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") || !common.IsHexAddress(address) {
		return ErrInvalidAddress
	}
	return nil
}

// ValidateSolanaAddress accepts 32 to 64 base58 characters.
func ValidateSolanaAddress(address string) error {
	if len(address) < 32 || len(address) > 64 {
		return ErrInvalidAddress
	}
	for _, r := range address {
		if !strings.ContainsRune(base58Alphabet, r) {
			return ErrInvalidAddress
		}
	}
	if len(base58.Decode(address)) == 0 {
		return ErrInvalidAddress
	}
	return nil
}

// RedeemToEVM burns the owner's shares and pays their value to the bridge
// account tagged with the EVM destination.
func (e *Engine) RedeemToEVM(shares *big.Int, address string) (*RedeemResult, error) {
	address = strings.TrimSpace(address)
	if err := ValidateEVMAddress(address); err != nil {
		return nil, err
	}
	return e.redeemToBridge(shares, "evm:"+address)
}

// RedeemToSolana is RedeemToEVM for Solana destinations.
func (e *Engine) RedeemToSolana(shares *big.Int, address string) (*RedeemResult, error) {
	address = strings.TrimSpace(address)
	if err := ValidateSolanaAddress(address); err != nil {
		return nil, err
	}
	return e.redeemToBridge(shares, "sol:"+address)
}

// redeemToBridge never queues: bridge withdrawals must be payable now and may
// not overtake queued lenders.
func (e *Engine) redeemToBridge(shares *big.Int, destination string) (*RedeemResult, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(v); err != nil {
		return nil, err
	}
	if err := e.guard(v); err != nil {
		return nil, err
	}
	if v.BridgeAccount == "" {
		return nil, ErrBridgeNotConfigured
	}
	if shares == nil || shares.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if err := checkU128(shares); err != nil {
		return nil, err
	}
	if e.queueLen(v) > 0 {
		return nil, ErrRedemptionsPending
	}
	assets, err := e.assetsForShares(v, shares, RoundDown)
	if err != nil {
		return nil, err
	}
	entitlement, err := e.lenderEntitlement(v, shares)
	if err != nil {
		return nil, err
	}
	if !coversRedemption(v, assets, entitlement) {
		return nil, ErrInsufficientLiquidity
	}
	v.TotalDeposits = saturatingSub(v.TotalDeposits, entitlement.DepositValue)
	opID, err := e.executeWithdrawal(v, OpBridge, v.Owner, v.BridgeAccount, shares, entitlement, destination)
	if err != nil {
		return nil, err
	}
	if err := e.storeVault(v); err != nil {
		return nil, err
	}
	return &RedeemResult{OperationID: opID, Shares: clone(shares), Assets: clone(entitlement.TotalValue)}, nil
}
