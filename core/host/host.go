// Package host runs the vault engine and the asset ledger as one serialized
// execution environment. Every top-level call executes inside a state overlay
// that is committed only when the call succeeds; events and outbound asset
// transfers are released after the commit. Outbound transfers are settled by
// the outbox, each settlement delivering the vault's completion callback as a
// new top-level call.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"intentvault/core/events"
	"intentvault/core/state"
	"intentvault/native/asset"
	nativecommon "intentvault/native/common"
	"intentvault/native/vault"
	"intentvault/observability/metrics"
	"intentvault/storage"
)

var (
	ErrNilDatabase  = errors.New("host: database required")
	ErrVaultAccount = errors.New("host: vault account required")
)

// Allocation seeds an asset balance on first boot.
type Allocation struct {
	Account string
	Amount  *big.Int
}

// Config wires the host. Zero values fall back to defaults.
type Config struct {
	Vault         vault.Params
	MaxQueueSteps int
	IntentQuota   nativecommon.Quota
	Pauses        nativecommon.PauseView
	Genesis       []Allocation
	// Accounts are registered with the asset ledger on first boot.
	Accounts []string

	Logger  *slog.Logger
	Emitter events.Emitter
	Metrics *metrics.VaultMetrics
	Now     func() time.Time
}

type frame struct {
	overlay  *state.Overlay
	recorder *events.Recorder
	ops      []vault.Operation
}

// Host serializes calls against a single vault and its asset.
type Host struct {
	mu      sync.Mutex
	state   *state.Manager
	engine  *vault.Engine
	ledger  *asset.Ledger
	account string

	emitter events.Emitter
	logger  *slog.Logger
	metrics *metrics.VaultMetrics
	tracer  trace.Tracer
	now     func() time.Time

	frame  *frame
	outbox []vault.Operation
	wake   chan struct{}
}

// New opens the host over db, initialising the vault and genesis balances on
// first boot and reloading unsettled operations otherwise.
func New(db storage.Database, cfg Config) (*Host, error) {
	if db == nil {
		return nil, ErrNilDatabase
	}
	account := strings.TrimSpace(cfg.Vault.Account)
	if account == "" {
		return nil, ErrVaultAccount
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	engine := vault.NewEngine()
	engine.SetPauses(cfg.Pauses)
	engine.SetIntentQuota(cfg.IntentQuota)
	if cfg.MaxQueueSteps > 0 {
		engine.SetMaxQueueSteps(cfg.MaxQueueSteps)
	}
	h := &Host{
		state:   state.NewManager(db),
		engine:  engine,
		ledger:  asset.NewLedger(cfg.Vault.Asset),
		account: account,
		emitter: emitter,
		logger:  logger,
		metrics: cfg.Metrics,
		tracer:  otel.Tracer("intentvault/core/host"),
		now:     now,
		wake:    make(chan struct{}, 1),
	}
	if err := h.bootstrap(cfg); err != nil {
		return nil, err
	}
	if _, err := h.Recover(); err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Host) bootstrap(cfg Config) error {
	return h.run(context.Background(), "init", vault.Call{Predecessor: cfg.Vault.Owner}, func() error {
		initialised, err := h.engine.Initialised()
		if err != nil {
			return err
		}
		if _, err := h.engine.Init(cfg.Vault); err != nil {
			return fmt.Errorf("init vault: %w", err)
		}
		if initialised {
			return nil
		}
		accounts := append([]string{h.account, cfg.Vault.Owner}, cfg.Accounts...)
		if bridge := strings.TrimSpace(cfg.Vault.BridgeAccount); bridge != "" {
			accounts = append(accounts, bridge)
		}
		for _, acct := range accounts {
			if strings.TrimSpace(acct) == "" {
				continue
			}
			if err := h.ledger.Register(acct); err != nil {
				return fmt.Errorf("register %s: %w", acct, err)
			}
		}
		for _, alloc := range cfg.Genesis {
			if err := h.ledger.Mint(alloc.Account, alloc.Amount); err != nil {
				return fmt.Errorf("genesis %s: %w", alloc.Account, err)
			}
		}
		h.logger.Info("vault initialised",
			slog.String("account", h.account),
			slog.String("asset", h.ledger.ID()),
			slog.Int("genesis_allocations", len(cfg.Genesis)))
		return nil
	})
}

// VaultAccount returns the account the vault engine runs under.
func (h *Host) VaultAccount() string { return h.account }

// AssetID returns the account id of the lent asset.
func (h *Host) AssetID() string { return h.ledger.ID() }

// Wake is signalled whenever new operations enter the outbox.
func (h *Host) Wake() <-chan struct{} { return h.wake }

func (h *Host) bind(f *frame) {
	h.frame = f
	h.engine.SetState(f.overlay)
	h.engine.SetEmitter(f.recorder)
	h.engine.SetDispatcher(vault.DispatchFunc(func(op vault.Operation) {
		f.ops = append(f.ops, op)
	}))
	h.ledger.SetState(f.overlay)
	h.ledger.SetEmitter(f.recorder)
}

func (h *Host) stamp(call vault.Call) vault.Call {
	if call.Timestamp == 0 {
		call.Timestamp = uint64(h.now().UnixNano())
	}
	if call.AttachedDeposit == nil {
		call.AttachedDeposit = new(big.Int)
	}
	return call
}

// run executes fn as one top-level call. The caller must not hold h.mu.
func (h *Host) run(ctx context.Context, method string, call vault.Call, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, span := h.tracer.Start(ctx, "vault."+method, trace.WithAttributes(
		attribute.String("vault.caller", call.Predecessor),
	))
	defer span.End()

	h.mu.Lock()
	defer h.mu.Unlock()
	start := time.Now()
	err := h.runLocked(method, call, fn)
	h.metrics.ObserveCall(method, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (h *Host) runLocked(method string, call vault.Call, fn func() error) error {
	f := &frame{overlay: h.state.Begin(), recorder: &events.Recorder{}}
	h.bind(f)
	h.engine.SetCall(h.stamp(call))
	defer func() { h.frame = nil }()
	if err := fn(); err != nil {
		f.overlay.Discard()
		h.logger.Debug("vault call rejected", slog.String("method", method), slog.Any("error", err))
		return err
	}
	if err := f.overlay.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", method, err)
	}
	h.release(f)
	return nil
}

// nested runs fn in a child overlay of the active frame. Its state, events and
// operations join the frame only when fn succeeds.
func (h *Host) nested(fn func() error) error {
	parent := h.frame
	child := &frame{overlay: parent.overlay.Begin(), recorder: &events.Recorder{}}
	h.bind(child)
	err := fn()
	h.bind(parent)
	if err != nil {
		child.overlay.Discard()
		return err
	}
	if err := child.overlay.Commit(); err != nil {
		return err
	}
	for _, evt := range child.recorder.Events() {
		parent.recorder.Emit(evt)
	}
	parent.ops = append(parent.ops, child.ops...)
	return nil
}

func (h *Host) release(f *frame) {
	for _, evt := range f.recorder.Events() {
		h.emitter.Emit(evt)
		h.metrics.ObserveEvent(evt.EventType())
	}
	for _, op := range f.ops {
		h.logger.Info("vault operation dispatched",
			slog.Uint64("op_id", op.ID),
			slog.String("kind", op.Kind.String()),
			slog.String("receiver", op.Receiver),
			slog.String("amount", op.Amount.String()))
		h.outbox = append(h.outbox, op)
	}
	if len(f.ops) > 0 {
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
	h.publishState()
}

func (h *Host) publishState() {
	if h.metrics == nil {
		return
	}
	view := h.state.Begin()
	defer view.Discard()
	h.engine.SetState(view)
	summary, err := h.engine.Summary()
	if err != nil {
		return
	}
	h.metrics.SetState(summary.TotalAssets, summary.TotalSupply, summary.QueueLength, summary.OpenOperations)
}

// Execute runs fn against the vault engine as call. State changes commit only
// when fn returns nil.
func (h *Host) Execute(ctx context.Context, method string, call vault.Call, fn func(*vault.Engine) error) error {
	return h.run(ctx, method, call, func() error { return fn(h.engine) })
}

// View runs fn against a throwaway overlay. Nothing fn writes is kept.
func (h *Host) View(fn func(*vault.Engine, *asset.Ledger) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := &frame{overlay: h.state.Begin(), recorder: &events.Recorder{}}
	h.bind(f)
	h.engine.SetCall(h.stamp(vault.Call{}))
	defer func() {
		f.overlay.Discard()
		h.frame = nil
	}()
	return fn(h.engine, h.ledger)
}

// RegisterAccount opens asset storage for account.
func (h *Host) RegisterAccount(ctx context.Context, account string) error {
	return h.run(ctx, "asset.register", vault.Call{Predecessor: account}, func() error {
		return h.ledger.Register(account)
	})
}

// Transfer moves assets between two accounts without notifying the receiver.
func (h *Host) Transfer(ctx context.Context, sender, receiver string, amount *big.Int, memo string) error {
	return h.run(ctx, "asset.transfer", vault.Call{Predecessor: sender}, func() error {
		return h.ledger.Transfer(sender, receiver, amount, memo)
	})
}

// TransferCall moves assets from sender to receiver and notifies the vault when
// it is the receiver. A rejection by the vault refunds the whole amount and is
// reported through the result rather than as an error.
func (h *Host) TransferCall(ctx context.Context, sender, receiver string, amount *big.Int, memo, msg string) (*asset.TransferCallResult, error) {
	var result *asset.TransferCallResult
	call := vault.Call{Predecessor: sender}
	err := h.run(ctx, "asset.transfer_call", call, func() error {
		var hook asset.Receiver
		if strings.TrimSpace(receiver) == h.account {
			hook = vaultHook{h: h}
		}
		var err error
		result, err = h.ledger.TransferCall(sender, receiver, amount, memo, msg, hook)
		return err
	})
	if err != nil {
		return nil, err
	}
	if result.ReceiverErr != nil {
		h.logger.Info("vault rejected inbound transfer",
			slog.String("sender", sender),
			slog.String("amount", amount.String()),
			slog.Any("error", result.ReceiverErr))
	}
	return result, nil
}

// vaultHook delivers the ledger's transfer notification to the vault engine in
// a child overlay so a rejected notification leaves no vault state behind.
type vaultHook struct {
	h *Host
}

func (k vaultHook) OnTransfer(sender string, amount *big.Int, msg string) (*big.Int, error) {
	h := k.h
	var unused *big.Int
	err := h.nested(func() error {
		h.engine.SetCall(vault.Call{Predecessor: h.ledger.ID(), Timestamp: uint64(h.now().UnixNano())})
		var err error
		unused, err = h.engine.OnTransfer(sender, amount, msg)
		return err
	})
	return unused, err
}

// Pending reports how many operations await settlement.
func (h *Host) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.outbox)
}

// Step settles the oldest outbound operation: the asset transfer and the
// vault's completion callback commit together. It reports whether an
// operation was processed. An operation whose settlement fails is put back at
// the head of the outbox.
func (h *Host) Step(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	h.mu.Lock()
	if len(h.outbox) == 0 {
		h.mu.Unlock()
		return false, nil
	}
	op := h.outbox[0]
	h.outbox = h.outbox[1:]
	h.mu.Unlock()

	outcome := vault.OutcomeFailure
	var transferErr error
	err := h.run(ctx, "resolve", vault.Call{Predecessor: h.account}, func() error {
		transferErr = h.nested(func() error {
			return h.ledger.Transfer(op.From, op.Receiver, op.Amount, op.Memo)
		})
		if transferErr == nil {
			outcome = vault.OutcomeSuccess
		}
		return h.engine.ResolveOperation(op.ID, outcome)
	})
	if errors.Is(err, vault.ErrUnknownOperation) {
		h.logger.Warn("vault operation already resolved", slog.Uint64("op_id", op.ID))
		return true, nil
	}
	if err != nil {
		// Nothing was committed; the operation stays at the head for a retry.
		h.mu.Lock()
		h.outbox = append([]vault.Operation{op}, h.outbox...)
		h.mu.Unlock()
		h.logger.Error("vault operation settlement failed",
			slog.Uint64("op_id", op.ID),
			slog.String("kind", op.Kind.String()),
			slog.Any("error", err))
		return false, fmt.Errorf("settle operation %d: %w", op.ID, err)
	}
	attrs := []any{
		slog.Uint64("op_id", op.ID),
		slog.String("kind", op.Kind.String()),
		slog.String("receiver", op.Receiver),
		slog.String("amount", op.Amount.String()),
		slog.String("outcome", outcome.String()),
	}
	if transferErr != nil {
		attrs = append(attrs, slog.Any("transfer_error", transferErr))
	}
	h.logger.Info("vault operation resolved", attrs...)
	h.metrics.ObserveOperation(op.Kind.String(), outcome.String())
	return true, nil
}

// Drain settles operations until the outbox is empty, including operations
// dispatched by the callbacks themselves.
func (h *Host) Drain(ctx context.Context) (int, error) {
	processed := 0
	for {
		ok, err := h.Step(ctx)
		if err != nil {
			return processed, err
		}
		if !ok {
			return processed, nil
		}
		processed++
	}
}

// Run settles operations in the background until ctx is cancelled.
func (h *Host) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.wake:
		case <-ticker.C:
		}
		if _, err := h.Drain(ctx); err != nil && !errors.Is(err, context.Canceled) {
			h.logger.Error("vault outbox drain failed", slog.Any("error", err))
		}
	}
}

// Recover queues every persisted open operation that is not already in the
// outbox. It returns the number of operations added.
func (h *Host) Recover() (int, error) {
	var open []vault.Operation
	if err := h.View(func(engine *vault.Engine, _ *asset.Ledger) error {
		var err error
		open, err = engine.OpenOperations()
		return err
	}); err != nil {
		return 0, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	queued := make(map[uint64]struct{}, len(h.outbox))
	for _, op := range h.outbox {
		queued[op.ID] = struct{}{}
	}
	added := 0
	for _, op := range open {
		if _, ok := queued[op.ID]; ok {
			continue
		}
		h.outbox = append(h.outbox, op)
		added++
	}
	sort.SliceStable(h.outbox, func(i, j int) bool { return h.outbox[i].ID < h.outbox[j].ID })
	if added > 0 {
		h.logger.Info("vault operations recovered", slog.Int("count", added))
		select {
		case h.wake <- struct{}{}:
		default:
		}
	}
	return added, nil
}
