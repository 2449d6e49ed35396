package vault

import (
	"encoding/hex"
	"sort"
	"strings"

	"lukechampine.com/blake3"
)

// ParseCodehash decodes a hex encoded 32-byte code hash.
func ParseCodehash(value string) ([]byte, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	hash, err := hex.DecodeString(value)
	if err != nil || len(hash) != 32 {
		return nil, ErrInvalidParams
	}
	return hash, nil
}

// CodeHash returns the blake3 digest used to identify agent code.
func CodeHash(code []byte) []byte {
	sum := blake3.Sum256(code)
	return sum[:]
}

// ApproveCodehash allow-lists agent code so solvers running it can register.
func (e *Engine) ApproveCodehash(codehash string) error {
	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.requireOwner(v); err != nil {
		return err
	}
	hash, err := ParseCodehash(codehash)
	if err != nil {
		return err
	}
	if err := e.state.KVPut(codehashKey(hash), true); err != nil {
		return err
	}
	e.emit(newCodehashApprovedEvent(hash))
	return nil
}

// IsCodehashApproved reports whether the hex code hash is allow-listed.
func (e *Engine) IsCodehashApproved(codehash string) (bool, error) {
	hash, err := ParseCodehash(codehash)
	if err != nil {
		return false, err
	}
	var approved bool
	if _, err := e.state.KVGet(codehashKey(hash), &approved); err != nil {
		return false, err
	}
	return approved, nil
}

// RegisterAgent admits account as a solver running approved code.
func (e *Engine) RegisterAgent(account, codehash string) (*Agent, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(v); err != nil {
		return nil, err
	}
	account = strings.TrimSpace(account)
	if account == "" {
		return nil, ErrInvalidAccount
	}
	approved, err := e.IsCodehashApproved(codehash)
	if err != nil {
		return nil, err
	}
	if !approved {
		return nil, ErrCodehashNotApproved
	}
	hash, _ := ParseCodehash(codehash)
	agent := &Agent{Account: account, CodeHash: hash, RegisteredAt: e.call.Timestamp}
	if err := e.state.KVPut(agentKey(account), agent); err != nil {
		return nil, err
	}
	accounts, err := e.agentAccounts()
	if err != nil {
		return nil, err
	}
	if !containsString(accounts, account) {
		accounts = append(accounts, account)
		sort.Strings(accounts)
		if err := e.state.KVPut(agentIndexKey, accounts); err != nil {
			return nil, err
		}
	}
	e.emit(newAgentEvent(EventTypeAgentRegistered, agent))
	return agent, nil
}

// RemoveAgent revokes a solver. Outstanding intents remain repayable.
func (e *Engine) RemoveAgent(account string) error {
	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.requireOwner(v); err != nil {
		return err
	}
	account = strings.TrimSpace(account)
	agent, ok, err := e.getAgent(account)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidAccount
	}
	if err := e.state.KVDelete(agentKey(account)); err != nil {
		return err
	}
	accounts, err := e.agentAccounts()
	if err != nil {
		return err
	}
	kept := accounts[:0]
	for _, existing := range accounts {
		if existing != account {
			kept = append(kept, existing)
		}
	}
	if err := e.state.KVPut(agentIndexKey, kept); err != nil {
		return err
	}
	e.emit(newAgentEvent(EventTypeAgentRemoved, agent))
	return nil
}

// Agents lists registered solvers sorted by account.
func (e *Engine) Agents() ([]*Agent, error) {
	if e.state == nil {
		return nil, errNilState
	}
	accounts, err := e.agentAccounts()
	if err != nil {
		return nil, err
	}
	out := make([]*Agent, 0, len(accounts))
	for _, account := range accounts {
		agent, ok, err := e.getAgent(account)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, agent)
		}
	}
	return out, nil
}

// UpgradeCode records a new code version identified by its blake3 hash.
func (e *Engine) UpgradeCode(code []byte) ([]byte, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	if err := e.requireOwner(v); err != nil {
		return nil, err
	}
	if len(code) == 0 {
		return nil, ErrInvalidParams
	}
	v.CodeHash = CodeHash(code)
	v.CodeVersion++
	if err := e.storeVault(v); err != nil {
		return nil, err
	}
	e.emit(newUpgradedEvent(v.CodeHash, v.CodeVersion))
	return v.CodeHash, nil
}

// SetOwner hands owner privileges to another account.
func (e *Engine) SetOwner(owner string) error {
	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.requireOwner(v); err != nil {
		return err
	}
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return ErrInvalidAccount
	}
	previous := v.Owner
	v.Owner = owner
	if err := e.storeVault(v); err != nil {
		return err
	}
	e.emit(newOwnerChangedEvent(previous, owner))
	return nil
}

// SetPaused halts or resumes deposits, borrows and redemptions. Repayments
// and transfer callbacks are never paused.
func (e *Engine) SetPaused(paused bool) error {
	v, err := e.loadVault()
	if err != nil {
		return err
	}
	if err := e.requireOwner(v); err != nil {
		return err
	}
	if v.Paused == paused {
		return nil
	}
	v.Paused = paused
	if err := e.storeVault(v); err != nil {
		return err
	}
	e.emit(newPauseChangedEvent(paused))
	return nil
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
