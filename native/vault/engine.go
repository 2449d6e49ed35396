package vault

import (
	"errors"
	"math/big"
	"strings"

	"intentvault/core/events"
	"intentvault/core/types"
	nativecommon "intentvault/native/common"
)

const moduleName = "vault"

// DefaultMaxQueueSteps bounds how many queue entries one call processes.
const DefaultMaxQueueSteps = 64

// Dispatcher receives outbound asset transfers once the engine has recorded
// them. Delivery happens after the surrounding call commits.
type Dispatcher interface {
	Dispatch(op Operation)
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(op Operation)

func (f DispatchFunc) Dispatch(op Operation) { f(op) }

// Engine implements the vault state transitions. It is not safe for
// concurrent use; the host binds state, emitter and call context before each
// invocation.
type Engine struct {
	state         engineState
	emitter       events.Emitter
	dispatcher    Dispatcher
	pauses        nativecommon.PauseView
	quota         nativecommon.Quota
	maxQueueSteps int
	call          Call
}

// NewEngine constructs an engine with a no-op emitter.
func NewEngine() *Engine {
	return &Engine{emitter: events.NoopEmitter{}, maxQueueSteps: DefaultMaxQueueSteps}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetEmitter configures the event emitter used for vault notifications.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) SetDispatcher(d Dispatcher) { e.dispatcher = d }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetIntentQuota limits how often and how much each solver may borrow per epoch.
func (e *Engine) SetIntentQuota(q nativecommon.Quota) { e.quota = q }

// SetMaxQueueSteps bounds queue processing per call. Zero means unbounded.
func (e *Engine) SetMaxQueueSteps(steps int) {
	if steps < 0 {
		steps = 0
	}
	e.maxQueueSteps = steps
}

// SetCall binds the caller context for the next invocation.
func (e *Engine) SetCall(call Call) {
	if call.AttachedDeposit == nil {
		call.AttachedDeposit = new(big.Int)
	}
	e.call = call
}

// Init creates the vault record when it does not exist yet and returns the
// stored record otherwise.
func (e *Engine) Init(params Params) (*Vault, error) {
	if e.state == nil {
		return nil, errNilState
	}
	existing, err := e.loadVault()
	if err == nil {
		if existing.Asset != strings.TrimSpace(params.Asset) {
			return nil, ErrInvalidParams
		}
		return existing, nil
	}
	if !errors.Is(err, errNotInitialised) {
		return nil, err
	}
	owner := strings.TrimSpace(params.Owner)
	account := strings.TrimSpace(params.Account)
	asset := strings.TrimSpace(params.Asset)
	if owner == "" || account == "" || asset == "" {
		return nil, ErrInvalidParams
	}
	if _, err := pow10(params.ExtraDecimals); err != nil {
		return nil, ErrInvalidParams
	}
	if params.DefaultBorrowAmount == nil || params.DefaultBorrowAmount.Sign() <= 0 {
		return nil, ErrInvalidParams
	}
	if err := checkU128(params.DefaultBorrowAmount); err != nil {
		return nil, ErrInvalidParams
	}
	v := &Vault{
		Owner:               owner,
		Account:             account,
		Asset:               asset,
		BridgeAccount:       strings.TrimSpace(params.BridgeAccount),
		ExtraDecimals:       params.ExtraDecimals,
		AssetDecimals:       params.AssetDecimals,
		DefaultBorrowAmount: clone(params.DefaultBorrowAmount),
		TotalAssets:         zero(),
		TotalDeposits:       zero(),
		NextOperationID:     1,
	}
	if err := e.storeVault(v); err != nil {
		return nil, err
	}
	return v, nil
}

// Initialised reports whether Init has stored the vault record.
func (e *Engine) Initialised() (bool, error) {
	if e.state == nil {
		return false, errNilState
	}
	_, err := e.loadVault()
	if errors.Is(err, errNotInitialised) {
		return false, nil
	}
	return err == nil, err
}

// Vault returns the stored vault record.
func (e *Engine) Vault() (*Vault, error) { return e.loadVault() }

// Summary reports the vault's accounting totals.
func (e *Engine) Summary() (*Summary, error) {
	v, err := e.loadVault()
	if err != nil {
		return nil, err
	}
	supply, err := e.totalSupply()
	if err != nil {
		return nil, err
	}
	borrowed, err := e.totalBorrowed(v)
	if err != nil {
		return nil, err
	}
	yield, err := e.expectedYield(v)
	if err != nil {
		return nil, err
	}
	open, err := e.openOperationIDs()
	if err != nil {
		return nil, err
	}
	return &Summary{
		Owner:          v.Owner,
		Asset:          v.Asset,
		ExtraDecimals:  v.ExtraDecimals,
		TotalAssets:    clone(v.TotalAssets),
		TotalDeposits:  clone(v.TotalDeposits),
		TotalSupply:    supply,
		TotalBorrowed:  borrowed,
		ExpectedYield:  yield,
		IntentCount:    v.NextIntentIndex,
		QueueHead:      v.RedemptionHead,
		QueueLength:    v.RedemptionTail - v.RedemptionHead,
		OpenOperations: len(open),
		Paused:         v.Paused,
		CodeVersion:    v.CodeVersion,
	}, nil
}

func (e *Engine) guard(v *Vault) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if v != nil && v.Paused {
		return ErrPaused
	}
	return nil
}

func (e *Engine) predecessor() (string, error) {
	caller := strings.TrimSpace(e.call.Predecessor)
	if caller == "" {
		return "", ErrInvalidAccount
	}
	return caller, nil
}

// requireOwner enforces owner-only calls carrying exactly one unit of
// attached deposit as an explicit confirmation.
func (e *Engine) requireOwner(v *Vault) error {
	if err := e.requireOneUnit(); err != nil {
		return err
	}
	if e.call.Predecessor != v.Owner {
		return ErrUnauthorized
	}
	return nil
}

func (e *Engine) requireOneUnit() error {
	if e.call.AttachedDeposit == nil || e.call.AttachedDeposit.Cmp(big.NewInt(1)) != 0 {
		return ErrAttachedDeposit
	}
	return nil
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	event.Timestamp = e.call.Timestamp
	e.emitter.Emit(vaultEvent{evt: event})
}

// dispatch assigns an identifier to op, persists it as open and hands it to
// the dispatcher.
func (e *Engine) dispatch(v *Vault, op *Operation) error {
	if e.dispatcher == nil {
		return errNilDispatcher
	}
	if v.NextOperationID == 0 {
		v.NextOperationID = 1
	}
	op.ID = v.NextOperationID
	v.NextOperationID++
	op.From = v.Account
	op.Created = e.call.Timestamp
	if err := e.state.KVPut(operationKey(op.ID), op); err != nil {
		return err
	}
	open, err := e.openOperationIDs()
	if err != nil {
		return err
	}
	if err := e.putOpenOperationIDs(append(open, op.ID)); err != nil {
		return err
	}
	e.dispatcher.Dispatch(*op)
	return nil
}
