package host

import (
	"context"
	"encoding/hex"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"intentvault/core/events"
	"intentvault/native/asset"
	"intentvault/native/vault"
	"intentvault/storage"
)

const (
	owner   = "owner.near"
	vaultID = "vault.near"
	assetID = "usdc.near"
	alice   = "alice.near"
	solver  = "solver.near"
	deposit = "solver-deposit.near"
)

func testConfig(recorder *events.Recorder) Config {
	clock := time.Unix(1_700_000_000, 0)
	return Config{
		Vault: vault.Params{
			Owner:               owner,
			Account:             vaultID,
			Asset:               assetID,
			ExtraDecimals:       3,
			DefaultBorrowAmount: big.NewInt(100),
		},
		Genesis:  []Allocation{{Account: alice, Amount: big.NewInt(1_000)}, {Account: solver, Amount: big.NewInt(500)}},
		Accounts: []string{deposit},
		Emitter:  recorder,
		Now: func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		},
	}
}

func newTestHost(t *testing.T, db storage.Database) (*Host, *events.Recorder) {
	t.Helper()
	recorder := &events.Recorder{}
	h, err := New(db, testConfig(recorder))
	require.NoError(t, err)
	return h, recorder
}

func assetBalance(t *testing.T, h *Host, account string) *big.Int {
	t.Helper()
	var out *big.Int
	require.NoError(t, h.View(func(_ *vault.Engine, ledger *asset.Ledger) error {
		var err error
		out, err = ledger.BalanceOf(account)
		return err
	}))
	return out
}

func shareBalance(t *testing.T, h *Host, account string) *big.Int {
	t.Helper()
	var out *big.Int
	require.NoError(t, h.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		out, err = engine.BalanceOf(account)
		return err
	}))
	return out
}

func summary(t *testing.T, h *Host) *vault.Summary {
	t.Helper()
	var out *vault.Summary
	require.NoError(t, h.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		out, err = engine.Summary()
		return err
	}))
	return out
}

func depositAssets(t *testing.T, h *Host, sender string, amount int64) {
	t.Helper()
	result, err := h.TransferCall(context.Background(), sender, vaultID, big.NewInt(amount), "", "")
	require.NoError(t, err)
	require.NoError(t, result.ReceiverErr)
	require.Zero(t, result.Refunded.Sign())
}

func registerSolver(t *testing.T, h *Host) {
	t.Helper()
	codehash := hex.EncodeToString(vault.CodeHash([]byte("solver-agent")))
	ownerCall := vault.Call{Predecessor: owner, AttachedDeposit: big.NewInt(1)}
	require.NoError(t, h.Execute(context.Background(), "approve_codehash", ownerCall, func(e *vault.Engine) error {
		return e.ApproveCodehash(codehash)
	}))
	require.NoError(t, h.Execute(context.Background(), "register_agent", ownerCall, func(e *vault.Engine) error {
		_, err := e.RegisterAgent(solver, codehash)
		return err
	}))
}

func TestGenesisOnlyOnFirstBoot(t *testing.T) {
	db := storage.NewMemDB()
	h, _ := newTestHost(t, db)
	require.Equal(t, int64(1_000), assetBalance(t, h, alice).Int64())

	reopened, _ := newTestHost(t, db)
	require.Equal(t, int64(1_000), assetBalance(t, reopened, alice).Int64())
	require.Equal(t, vaultID, reopened.VaultAccount())
	require.Equal(t, assetID, reopened.AssetID())
}

func TestTransferCallDeposit(t *testing.T) {
	h, recorder := newTestHost(t, storage.NewMemDB())
	depositAssets(t, h, alice, 100)

	require.Equal(t, int64(900), assetBalance(t, h, alice).Int64())
	require.Equal(t, int64(100), assetBalance(t, h, vaultID).Int64())
	require.Equal(t, int64(100_000), shareBalance(t, h, alice).Int64())
	require.Contains(t, recorder.Types(), vault.EventTypeDeposit)
}

func TestTransferCallRejectionRefunds(t *testing.T) {
	h, recorder := newTestHost(t, storage.NewMemDB())
	recorder.Reset()

	result, err := h.TransferCall(context.Background(), alice, vaultID, big.NewInt(100), "", `{"min_shares":"100001"}`)
	require.NoError(t, err)
	require.ErrorIs(t, result.ReceiverErr, vault.ErrSlippage)
	require.Equal(t, int64(100), result.Refunded.Int64())
	require.Zero(t, result.Used.Sign())

	require.Equal(t, int64(1_000), assetBalance(t, h, alice).Int64())
	require.Zero(t, assetBalance(t, h, vaultID).Sign())
	require.Zero(t, shareBalance(t, h, alice).Sign())
	require.Zero(t, summary(t, h).TotalAssets.Sign())
	require.NotContains(t, recorder.Types(), vault.EventTypeDeposit)
	require.Contains(t, recorder.Types(), asset.EventTypeRefund)
}

func TestExecuteRollsBackOnError(t *testing.T) {
	h, recorder := newTestHost(t, storage.NewMemDB())
	depositAssets(t, h, alice, 100)
	recorder.Reset()

	boom := errors.New("boom")
	err := h.Execute(context.Background(), "redeem", vault.Call{Predecessor: alice}, func(e *vault.Engine) error {
		if _, err := e.Redeem(big.NewInt(50_000), "", ""); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, int64(100_000), shareBalance(t, h, alice).Int64())
	require.Equal(t, int64(100), summary(t, h).TotalAssets.Int64())
	require.Zero(t, h.Pending())
	require.Empty(t, recorder.Events())
}

func TestRedeemSettlesThroughOutbox(t *testing.T) {
	h, _ := newTestHost(t, storage.NewMemDB())
	depositAssets(t, h, alice, 100)

	require.NoError(t, h.Execute(context.Background(), "redeem", vault.Call{Predecessor: alice}, func(e *vault.Engine) error {
		_, err := e.Redeem(big.NewInt(100_000), "", "")
		return err
	}))
	require.Equal(t, 1, h.Pending())
	select {
	case <-h.Wake():
	default:
		t.Fatalf("expected wake signal after dispatch")
	}

	processed, err := h.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, int64(1_000), assetBalance(t, h, alice).Int64())
	s := summary(t, h)
	require.Zero(t, s.TotalAssets.Sign())
	require.Zero(t, s.TotalSupply.Sign())
	require.Zero(t, s.OpenOperations)
}

func TestBorrowSettlement(t *testing.T) {
	h, recorder := newTestHost(t, storage.NewMemDB())
	depositAssets(t, h, alice, 1_000)
	registerSolver(t, h)

	require.NoError(t, h.Execute(context.Background(), "new_intent", vault.Call{Predecessor: solver}, func(e *vault.Engine) error {
		_, err := e.NewIntent(vault.NewIntentRequest{SolverDepositAddress: deposit, UserDepositHash: "hash-1"})
		return err
	}))
	_, err := h.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(100), assetBalance(t, h, deposit).Int64())
	require.Contains(t, recorder.Types(), vault.EventTypeIntentBorrowed)

	result, err := h.TransferCall(context.Background(), solver, vaultID, big.NewInt(101), "", `{"intent_index":0}`)
	require.NoError(t, err)
	require.NoError(t, result.ReceiverErr)
	s := summary(t, h)
	require.Equal(t, int64(1_001), s.TotalAssets.Int64())
	require.Zero(t, s.TotalBorrowed.Sign())
}

func TestBorrowToUnregisteredReceiverCompensates(t *testing.T) {
	h, recorder := newTestHost(t, storage.NewMemDB())
	depositAssets(t, h, alice, 1_000)
	registerSolver(t, h)

	require.NoError(t, h.Execute(context.Background(), "new_intent", vault.Call{Predecessor: solver}, func(e *vault.Engine) error {
		_, err := e.NewIntent(vault.NewIntentRequest{SolverDepositAddress: "nobody.near", UserDepositHash: "hash-1"})
		return err
	}))
	require.Equal(t, int64(900), summary(t, h).TotalAssets.Int64())

	_, err := h.Drain(context.Background())
	require.NoError(t, err)
	s := summary(t, h)
	require.Equal(t, int64(1_000), s.TotalAssets.Int64())
	require.Zero(t, s.IntentCount)
	require.Equal(t, int64(1_000), assetBalance(t, h, vaultID).Int64())
	require.Contains(t, recorder.Types(), vault.EventTypeIntentBorrowFailed)

	// the reservation was released with the failed transfer
	require.NoError(t, h.Execute(context.Background(), "new_intent", vault.Call{Predecessor: solver}, func(e *vault.Engine) error {
		_, err := e.NewIntent(vault.NewIntentRequest{SolverDepositAddress: deposit, UserDepositHash: "hash-1"})
		return err
	}))
}

func TestRecoverAfterRestart(t *testing.T) {
	db := storage.NewMemDB()
	h, _ := newTestHost(t, db)
	depositAssets(t, h, alice, 100)
	require.NoError(t, h.Execute(context.Background(), "redeem", vault.Call{Predecessor: alice}, func(e *vault.Engine) error {
		_, err := e.Redeem(big.NewInt(40_000), "", "")
		return err
	}))
	require.Equal(t, 1, h.Pending())

	restarted, _ := newTestHost(t, db)
	require.Equal(t, 1, restarted.Pending())
	added, err := restarted.Recover()
	require.NoError(t, err)
	require.Zero(t, added)

	_, err = restarted.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(940), assetBalance(t, restarted, alice).Int64())

	// the stale copy held by the first host is recognised as settled
	ok, err := h.Step(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(940), assetBalance(t, h, alice).Int64())
}

func TestRunStopsOnCancel(t *testing.T) {
	h, _ := newTestHost(t, storage.NewMemDB())
	depositAssets(t, h, alice, 100)
	require.NoError(t, h.Execute(context.Background(), "redeem", vault.Call{Predecessor: alice}, func(e *vault.Engine) error {
		_, err := e.Redeem(big.NewInt(100_000), "", "")
		return err
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	require.Eventually(t, func() bool { return h.Pending() == 0 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	require.Equal(t, int64(1_000), assetBalance(t, h, alice).Int64())
}

// flakyDB fails batch writes while failing is set.
type flakyDB struct {
	storage.Database
	failing atomic.Bool
}

var errWriteFailed = errors.New("write failed")

func (db *flakyDB) Write(batch *storage.Batch) error {
	if db.failing.Load() {
		return errWriteFailed
	}
	return db.Database.Write(batch)
}

func TestFailedSettlementStaysQueued(t *testing.T) {
	db := &flakyDB{Database: storage.NewMemDB()}
	h, _ := newTestHost(t, db)
	depositAssets(t, h, alice, 100)
	require.NoError(t, h.Execute(context.Background(), "redeem", vault.Call{Predecessor: alice}, func(e *vault.Engine) error {
		_, err := e.Redeem(big.NewInt(100_000), "", "")
		return err
	}))
	require.Equal(t, 1, h.Pending())

	db.failing.Store(true)
	ok, err := h.Step(context.Background())
	require.ErrorIs(t, err, errWriteFailed)
	require.False(t, ok)
	require.Equal(t, 1, h.Pending())
	require.Equal(t, int64(900), assetBalance(t, h, alice).Int64())
	require.Equal(t, 1, summary(t, h).OpenOperations)

	db.failing.Store(false)
	processed, err := h.Drain(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, processed)
	require.Equal(t, int64(1_000), assetBalance(t, h, alice).Int64())
	require.Zero(t, summary(t, h).OpenOperations)
}
