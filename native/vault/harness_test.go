package vault

import (
	"encoding/hex"
	"math/big"
	"testing"

	"intentvault/core/events"
	"intentvault/core/state"
	"intentvault/storage"
)

const (
	testOwner  = "owner.near"
	testVault  = "vault.near"
	testAsset  = "usdc.near"
	testBridge = "bridge.near"
)

var testCodehash = hex.EncodeToString(CodeHash([]byte("solver-agent-v1")))

type harness struct {
	t        *testing.T
	engine   *Engine
	recorder *events.Recorder
	ops      []Operation
	now      uint64
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithDecimals(t, 3)
}

func newHarnessWithDecimals(t *testing.T, extraDecimals uint8) *harness {
	t.Helper()
	h := &harness{t: t, recorder: &events.Recorder{}, now: 1_700_000_000_000_000_000}
	h.engine = NewEngine()
	h.engine.SetState(state.NewManager(storage.NewMemDB()))
	h.engine.SetEmitter(h.recorder)
	h.engine.SetDispatcher(DispatchFunc(func(op Operation) { h.ops = append(h.ops, op) }))
	if _, err := h.engine.Init(Params{
		Owner:               testOwner,
		Account:             testVault,
		Asset:               testAsset,
		BridgeAccount:       testBridge,
		ExtraDecimals:       extraDecimals,
		DefaultBorrowAmount: big.NewInt(100),
	}); err != nil {
		t.Fatalf("init: %v", err)
	}
	return h
}

func (h *harness) as(caller string, attached int64) *Engine {
	h.now++
	h.engine.SetCall(Call{Predecessor: caller, AttachedDeposit: big.NewInt(attached), Timestamp: h.now})
	return h.engine
}

func (h *harness) transfer(sender string, amount int64, msg string) (*big.Int, error) {
	return h.as(testAsset, 0).OnTransfer(sender, big.NewInt(amount), msg)
}

func (h *harness) deposit(sender string, amount int64) {
	h.t.Helper()
	unused, err := h.transfer(sender, amount, "")
	if err != nil {
		h.t.Fatalf("deposit %d from %s: %v", amount, sender, err)
	}
	if unused.Sign() != 0 {
		h.t.Fatalf("deposit left %s unused", unused)
	}
}

func (h *harness) repay(solver string, index uint64, amount int64) error {
	_, err := h.transfer(solver, amount, `{"intent_index":`+indexString(index)+`}`)
	return err
}

func (h *harness) registerSolver(account string) {
	h.t.Helper()
	if err := h.as(testOwner, 1).ApproveCodehash(testCodehash); err != nil {
		h.t.Fatalf("approve codehash: %v", err)
	}
	if _, err := h.as(testOwner, 1).RegisterAgent(account, testCodehash); err != nil {
		h.t.Fatalf("register %s: %v", account, err)
	}
}

// borrow opens an intent and settles the loan transfer successfully.
func (h *harness) borrow(solver, hash string, amount int64) uint64 {
	h.t.Helper()
	if _, err := h.as(solver, 0).NewIntent(NewIntentRequest{
		SolverDepositAddress: solver,
		UserDepositHash:      hash,
		Amount:               big.NewInt(amount),
	}); err != nil {
		h.t.Fatalf("new intent %s: %v", hash, err)
	}
	h.settle(OutcomeSuccess)
	v, err := h.engine.Vault()
	if err != nil {
		h.t.Fatalf("load vault: %v", err)
	}
	return v.NextIntentIndex - 1
}

// settle resolves every dispatched operation with outcome and returns them.
func (h *harness) settle(outcome Outcome) []Operation {
	h.t.Helper()
	var settled []Operation
	for len(h.ops) > 0 {
		op := h.ops[0]
		h.ops = h.ops[1:]
		if err := h.as(testVault, 0).ResolveOperation(op.ID, outcome); err != nil {
			h.t.Fatalf("resolve operation %d: %v", op.ID, err)
		}
		settled = append(settled, op)
	}
	return settled
}

func (h *harness) summary() *Summary {
	h.t.Helper()
	s, err := h.engine.Summary()
	if err != nil {
		h.t.Fatalf("summary: %v", err)
	}
	return s
}

func (h *harness) balance(account string) *big.Int {
	h.t.Helper()
	b, err := h.engine.BalanceOf(account)
	if err != nil {
		h.t.Fatalf("balance %s: %v", account, err)
	}
	return b
}

func requireAmount(t *testing.T, label string, got *big.Int, want int64) {
	t.Helper()
	if got == nil || got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s: got %v want %d", label, got, want)
	}
}

// checkInvariants asserts the share ledger balances and that the pool never
// claims more value than it holds plus what is lent out.
func (h *harness) checkInvariants(accounts ...string) {
	h.t.Helper()
	s := h.summary()
	sum := new(big.Int)
	for _, account := range accounts {
		sum.Add(sum, h.balance(account))
	}
	if sum.Cmp(s.TotalSupply) != 0 {
		h.t.Fatalf("sum of balances %s != total supply %s", sum, s.TotalSupply)
	}
	entitlement, err := h.engine.CalculateLenderEntitlement(s.TotalSupply)
	if err != nil {
		h.t.Fatalf("entitlement: %v", err)
	}
	backing := new(big.Int).Add(s.TotalAssets, s.TotalBorrowed)
	if entitlement.TotalValue.Cmp(backing) > 0 {
		h.t.Fatalf("supply value %s exceeds assets plus borrowed %s", entitlement.TotalValue, backing)
	}
}
