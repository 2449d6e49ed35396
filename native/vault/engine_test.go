package vault

import (
	"errors"
	"math/big"
	"testing"

	nativecommon "intentvault/native/common"
)

func TestBootstrapDepositMintsScaledShares(t *testing.T) {
	h := newHarness(t)
	h.deposit("alice", 100)

	s := h.summary()
	requireAmount(t, "alice shares", h.balance("alice"), 100_000)
	requireAmount(t, "total supply", s.TotalSupply, 100_000)
	requireAmount(t, "total assets", s.TotalAssets, 100)
	requireAmount(t, "total deposits", s.TotalDeposits, 100)

	types := h.recorder.Types()
	if len(types) != 2 || types[0] != EventTypeSharesMint || types[1] != EventTypeDeposit {
		t.Fatalf("unexpected events %v", types)
	}
	h.checkInvariants("alice")
}

func TestBorrowRepayRedeemAll(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)

	index := h.borrow("solver", "hash-1", 500)
	requireAmount(t, "assets after borrow", h.summary().TotalAssets, 500)
	h.checkInvariants("alice")

	if err := h.repay("solver", index, 505); err != nil {
		t.Fatalf("repay: %v", err)
	}
	requireAmount(t, "assets after repay", h.summary().TotalAssets, 1005)
	intent, err := h.engine.GetIntent(index)
	if err != nil {
		t.Fatalf("get intent: %v", err)
	}
	if intent.State != IntentReturned {
		t.Fatalf("expected returned intent, got %s", intent.State)
	}
	requireAmount(t, "repayment amount", intent.RepaymentAmount, 505)
	h.checkInvariants("alice")

	result, err := h.as("alice", 0).Redeem(big.NewInt(1_000_000), "", "")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if result.Queued {
		t.Fatalf("expected immediate redemption")
	}
	requireAmount(t, "payout", result.Assets, 1005)
	ops := h.settle(OutcomeSuccess)
	if len(ops) != 1 || ops[0].Receiver != "alice" || ops[0].Amount.Int64() != 1005 {
		t.Fatalf("unexpected payout operations %+v", ops)
	}

	s := h.summary()
	requireAmount(t, "total supply", s.TotalSupply, 0)
	requireAmount(t, "total assets", s.TotalAssets, 0)
	requireAmount(t, "total deposits", s.TotalDeposits, 0)
	if s.OpenOperations != 0 {
		t.Fatalf("expected no open operations, got %d", s.OpenOperations)
	}
}

func TestFullBorrowQueuesRedemptionUntilRepaid(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)
	index := h.borrow("solver", "hash-1", 1000)

	result, err := h.as("alice", 0).Redeem(big.NewInt(1_000_000), "alice-cold", "exit")
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if !result.Queued || result.QueueIndex != 0 {
		t.Fatalf("expected queued redemption at index 0, got %+v", result)
	}
	if len(h.ops) != 0 {
		t.Fatalf("queued redemption must not dispatch transfers")
	}
	requireAmount(t, "shares stay with owner", h.balance("alice"), 1_000_000)

	if err := h.repay("solver", index, 1010); err != nil {
		t.Fatalf("repay: %v", err)
	}
	ops := h.settle(OutcomeSuccess)
	if len(ops) != 1 || ops[0].Receiver != "alice-cold" {
		t.Fatalf("expected payout to alice-cold, got %+v", ops)
	}
	requireAmount(t, "payout", ops[0].Amount, 1010)

	s := h.summary()
	requireAmount(t, "total supply", s.TotalSupply, 0)
	requireAmount(t, "total assets", s.TotalAssets, 0)
	if s.QueueLength != 0 || s.QueueHead != 1 {
		t.Fatalf("expected drained queue, got head=%d len=%d", s.QueueHead, s.QueueLength)
	}
}

func TestTwoSolversDrainQueueOnlyAfterBothRepay(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver-a")
	h.registerSolver("solver-b")
	h.deposit("alice", 1000)
	first := h.borrow("solver-a", "hash-a", 500)
	second := h.borrow("solver-b", "hash-b", 500)

	if _, err := h.as("alice", 0).Redeem(big.NewInt(1_000_000), "", ""); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if got := h.summary().QueueLength; got != 1 {
		t.Fatalf("expected one queued redemption, got %d", got)
	}

	if err := h.repay("solver-a", first, 505); err != nil {
		t.Fatalf("repay first: %v", err)
	}
	if got := h.summary().QueueLength; got != 1 {
		t.Fatalf("first repayment alone must not drain the queue, got len %d", got)
	}
	if len(h.ops) != 0 {
		t.Fatalf("no payout expected yet")
	}

	if err := h.repay("solver-b", second, 505); err != nil {
		t.Fatalf("repay second: %v", err)
	}
	if got := h.summary().QueueLength; got != 0 {
		t.Fatalf("expected queue drained, got %d", got)
	}
	ops := h.settle(OutcomeSuccess)
	if len(ops) != 1 {
		t.Fatalf("expected single payout, got %d", len(ops))
	}
	requireAmount(t, "payout covers deposit and both yields", ops[0].Amount, 1010)
	requireAmount(t, "total assets", h.summary().TotalAssets, 0)
}

func TestBorrowBlockedWhileQueueNonEmpty(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)
	h.deposit("bob", 1000)
	h.borrow("solver", "hash-1", 1500)

	if _, err := h.as("alice", 0).Redeem(big.NewInt(1_000_000), "", ""); err != nil {
		t.Fatalf("redeem: %v", err)
	}
	before := h.summary().TotalAssets

	_, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "hash-2", Amount: big.NewInt(10)})
	if !errors.Is(err, ErrRedemptionsPending) {
		t.Fatalf("expected ErrRedemptionsPending, got %v", err)
	}
	if after := h.summary().TotalAssets; after.Cmp(before) != 0 {
		t.Fatalf("total assets changed from %s to %s", before, after)
	}
}

func TestBorrowRejections(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 100)

	if _, err := h.as("stranger", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "x", UserDepositHash: "h"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unregistered solver rejection, got %v", err)
	}
	if _, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "h", Amount: big.NewInt(101)}); !errors.Is(err, ErrInsufficientLiquidity) {
		t.Fatalf("expected insufficient liquidity, got %v", err)
	}
	if _, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: " "}); !errors.Is(err, ErrInvalidDepositHash) {
		t.Fatalf("expected deposit hash rejection, got %v", err)
	}

	// The default amount applies when none is given.
	if _, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "h"}); err != nil {
		t.Fatalf("default borrow: %v", err)
	}
	requireAmount(t, "default borrow amount", h.ops[0].Amount, 100)
}

func TestDuplicateDepositHashRejected(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver-a")
	h.registerSolver("solver-b")
	h.deposit("alice", 1000)

	if _, err := h.as("solver-a", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver-a", UserDepositHash: "dup", Amount: big.NewInt(10)}); err != nil {
		t.Fatalf("first intent: %v", err)
	}
	// Reserved while the loan transfer is in flight.
	if _, err := h.as("solver-b", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver-b", UserDepositHash: "dup", Amount: big.NewInt(10)}); !errors.Is(err, ErrDuplicateDepositHash) {
		t.Fatalf("expected duplicate rejection while pending, got %v", err)
	}
	h.settle(OutcomeSuccess)
	if _, err := h.as("solver-b", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver-b", UserDepositHash: "dup", Amount: big.NewInt(10)}); !errors.Is(err, ErrDuplicateDepositHash) {
		t.Fatalf("expected duplicate rejection, got %v", err)
	}
	intents, err := h.engine.Intents(0, 0)
	if err != nil {
		t.Fatalf("list intents: %v", err)
	}
	if len(intents) != 1 || intents[0].Solver != "solver-a" {
		t.Fatalf("registry changed: %+v", intents)
	}
	bySolver, err := h.engine.IntentsBySolver("solver-b")
	if err != nil || len(bySolver) != 0 {
		t.Fatalf("solver-b should own nothing, got %v %v", bySolver, err)
	}
}

func TestFailedBorrowRestoresLiquidity(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)

	if _, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "h", Amount: big.NewInt(400)}); err != nil {
		t.Fatalf("new intent: %v", err)
	}
	requireAmount(t, "reserved", h.summary().TotalAssets, 600)
	h.recorder.Reset()
	h.settle(OutcomeFailure)

	s := h.summary()
	requireAmount(t, "restored", s.TotalAssets, 1000)
	if s.IntentCount != 0 {
		t.Fatalf("failed borrow must leave no intent, got %d", s.IntentCount)
	}
	if types := h.recorder.Types(); len(types) != 1 || types[0] != EventTypeIntentBorrowFailed {
		t.Fatalf("unexpected events %v", types)
	}
	// The hash is released so the solver can retry.
	if _, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "h", Amount: big.NewInt(400)}); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestRepaymentRejections(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver-a")
	h.registerSolver("solver-b")
	h.deposit("alice", 1000)
	index := h.borrow("solver-a", "hash", 500)

	if err := h.repay("solver-a", 99, 505); !errors.Is(err, ErrIntentNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := h.repay("solver-b", index, 505); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected wrong solver rejection, got %v", err)
	}
	if err := h.repay("solver-a", index, 504); !errors.Is(err, ErrRepaymentTooLow) {
		t.Fatalf("expected repayment too low, got %v", err)
	}
	requireAmount(t, "untouched assets", h.summary().TotalAssets, 500)

	if err := h.repay("solver-a", index, 600); err != nil {
		t.Fatalf("repay with extra yield: %v", err)
	}
	if err := h.repay("solver-a", index, 600); !errors.Is(err, ErrIntentNotBorrowed) {
		t.Fatalf("expected second repayment rejection, got %v", err)
	}

	// Only the asset ledger may deliver transfers.
	if _, err := h.as("solver-a", 0).OnTransfer("solver-a", big.NewInt(10), ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ledger-only callback, got %v", err)
	}
}

func TestExpectedYieldAndDepositPricing(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)
	h.borrow("solver", "hash-1", 500)
	h.borrow("solver", "hash-2", 250)

	borrowed, yield, err := h.engine.CalculateExpectedYield()
	if err != nil {
		t.Fatalf("expected yield: %v", err)
	}
	requireAmount(t, "total borrowed", borrowed, 750)
	requireAmount(t, "expected yield", yield, 7)

	// 1_000_000 shares priced against 1000 + 750 + 7.
	shares, err := h.engine.SharesForDeposit(big.NewInt(1757))
	if err != nil {
		t.Fatalf("preview deposit: %v", err)
	}
	requireAmount(t, "shares", shares, 1_000_000)
}

func TestPartialOwnerEarnsProportionalPremium(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 750)
	h.deposit("bob", 250)
	index := h.borrow("solver", "hash", 1000)
	if err := h.repay("solver", index, 1100); err != nil {
		t.Fatalf("repay: %v", err)
	}

	entitlement, err := h.engine.CalculateLenderEntitlement(h.balance("bob"))
	if err != nil {
		t.Fatalf("entitlement: %v", err)
	}
	requireAmount(t, "deposit value", entitlement.DepositValue, 250)
	requireAmount(t, "premium value", entitlement.PremiumValue, 25)
	requireAmount(t, "total value", entitlement.TotalValue, 275)
	h.checkInvariants("alice", "bob")
}

func TestPauseBlocksEntryButNotRepayment(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)
	index := h.borrow("solver", "hash", 500)

	if err := h.as(testOwner, 1).SetPaused(true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, err := h.transfer("bob", 10, ""); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected paused deposit, got %v", err)
	}
	if _, err := h.as("alice", 0).Redeem(big.NewInt(1), "", ""); !errors.Is(err, ErrPaused) {
		t.Fatalf("expected paused redeem, got %v", err)
	}
	if err := h.repay("solver", index, 505); err != nil {
		t.Fatalf("repayment must not be paused: %v", err)
	}

	pauses := nativecommon.NewPauseSet(moduleName)
	h.engine.SetPauses(pauses)
	if err := h.as(testOwner, 1).SetPaused(false); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if _, err := h.transfer("bob", 10, ""); !errors.Is(err, nativecommon.ErrModulePaused) {
		t.Fatalf("expected module pause, got %v", err)
	}
	pauses.Set(moduleName, false)
	h.deposit("bob", 10)
}

func TestIntentQuotaPerSolver(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)
	h.engine.SetIntentQuota(nativecommon.Quota{MaxRequestsPerEpoch: 1, EpochSeconds: 3600})

	h.borrow("solver", "hash-1", 10)
	_, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "hash-2", Amount: big.NewInt(10)})
	if !errors.Is(err, nativecommon.ErrQuotaRequestsExceeded) {
		t.Fatalf("expected quota rejection, got %v", err)
	}
}

func TestResolveOperationIsPrivateAndSingleUse(t *testing.T) {
	h := newHarness(t)
	h.registerSolver("solver")
	h.deposit("alice", 1000)
	opID, err := h.as("solver", 0).NewIntent(NewIntentRequest{SolverDepositAddress: "solver", UserDepositHash: "h", Amount: big.NewInt(10)})
	if err != nil {
		t.Fatalf("new intent: %v", err)
	}
	if err := h.as("solver", 0).ResolveOperation(opID, OutcomeSuccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected private callback, got %v", err)
	}
	open, err := h.engine.OpenOperations()
	if err != nil || len(open) != 1 || open[0].Kind != OpBorrow {
		t.Fatalf("expected one open borrow, got %+v %v", open, err)
	}
	if err := h.as(testVault, 0).ResolveOperation(opID, OutcomeSuccess); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if err := h.as(testVault, 0).ResolveOperation(opID, OutcomeFailure); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected single resolution, got %v", err)
	}
}

func TestShareMetadataAndQueries(t *testing.T) {
	h := newHarness(t)
	meta, err := h.engine.Metadata()
	if err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if meta.Symbol != "ivUSDC" || meta.Decimals != 3 {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if count, err := h.engine.IntentCount(); err != nil || count != 0 {
		t.Fatalf("intent count: %d %v", count, err)
	}
	if head, err := h.engine.QueueHead(); err != nil || head != 0 {
		t.Fatalf("queue head: %d %v", head, err)
	}
	if _, err := h.engine.Init(Params{Owner: "x", Account: "y", Asset: "other.near", DefaultBorrowAmount: big.NewInt(1)}); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("re-init with a different asset must fail, got %v", err)
	}
}
