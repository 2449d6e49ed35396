package state

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"intentvault/storage"
)

// KV is the keyed, RLP-encoded storage surface consumed by the native engines.
type KV interface {
	KVGet(key []byte, out interface{}) (bool, error)
	KVPut(key []byte, value interface{}) error
	KVDelete(key []byte) error
}

// Manager exposes durable keyed storage on top of a storage.Database. Values are
// RLP encoded so engines can persist plain structs and *big.Int fields.
type Manager struct {
	mu sync.Mutex
	db storage.Database
}

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

// KVPut encodes value and stores it under key.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	return m.db.Put(key, encoded)
}

// KVGet retrieves the value stored under the supplied key and decodes it into
// the provided destination. The boolean return value indicates whether the key
// existed in state.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.db.Get(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return decodeInto(data, out)
}

// KVDelete removes key. Missing keys are ignored.
func (m *Manager) KVDelete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	return m.db.Delete(key)
}

// Begin opens an overlay that buffers writes until Commit. Only one overlay may
// commit at a time; callers are expected to serialise top-level calls.
func (m *Manager) Begin() *Overlay { return newOverlay(m) }

func (m *Manager) raw(key []byte) ([]byte, error) {
	return m.db.Get(key)
}

func (m *Manager) apply(batch *storage.Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.db.Write(batch)
}

type layer interface {
	raw(key []byte) ([]byte, error)
	apply(batch *storage.Batch) error
}

// Overlay buffers the effects of a single call. Reads observe the overlay's own
// writes first and fall back to the parent. Discarding the overlay leaves the
// parent untouched, giving calls all-or-nothing semantics. Overlays nest: a
// child commits into its parent overlay rather than into the database.
type Overlay struct {
	parent  layer
	writes  map[string][]byte
	deleted map[string]struct{}
	order   []string
	closed  bool
}

func newOverlay(parent layer) *Overlay {
	return &Overlay{
		parent:  parent,
		writes:  make(map[string][]byte),
		deleted: make(map[string]struct{}),
	}
}

// Begin opens a child overlay on top of o.
func (o *Overlay) Begin() *Overlay { return newOverlay(o) }

// ErrOverlayClosed is returned when an overlay is used after Commit or Discard.
var ErrOverlayClosed = errors.New("kv: overlay already closed")

func (o *Overlay) KVGet(key []byte, out interface{}) (bool, error) {
	if o.closed {
		return false, ErrOverlayClosed
	}
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	k := string(key)
	if data, ok := o.writes[k]; ok {
		return decodeInto(data, out)
	}
	if _, ok := o.deleted[k]; ok {
		return false, nil
	}
	data, err := o.parent.raw(key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return decodeInto(data, out)
}

func (o *Overlay) KVPut(key []byte, value interface{}) error {
	if o.closed {
		return ErrOverlayClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	k := string(key)
	o.touch(k)
	delete(o.deleted, k)
	o.writes[k] = encoded
	return nil
}

func (o *Overlay) KVDelete(key []byte) error {
	if o.closed {
		return ErrOverlayClosed
	}
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	k := string(key)
	o.touch(k)
	delete(o.writes, k)
	o.deleted[k] = struct{}{}
	return nil
}

func (o *Overlay) raw(key []byte) ([]byte, error) {
	if o.closed {
		return nil, ErrOverlayClosed
	}
	k := string(key)
	if data, ok := o.writes[k]; ok {
		return append([]byte(nil), data...), nil
	}
	if _, ok := o.deleted[k]; ok {
		return nil, storage.ErrNotFound
	}
	return o.parent.raw(key)
}

func (o *Overlay) apply(batch *storage.Batch) error {
	if o.closed {
		return ErrOverlayClosed
	}
	return batch.Replay(
		func(key, value []byte) error {
			k := string(key)
			o.touch(k)
			delete(o.deleted, k)
			o.writes[k] = value
			return nil
		},
		func(key []byte) error {
			k := string(key)
			o.touch(k)
			delete(o.writes, k)
			o.deleted[k] = struct{}{}
			return nil
		},
	)
}

// Dirty reports how many distinct keys the overlay has touched.
func (o *Overlay) Dirty() int { return len(o.order) }

// Commit flushes the buffered writes to the parent in one batch.
func (o *Overlay) Commit() error {
	if o.closed {
		return ErrOverlayClosed
	}
	o.closed = true
	if len(o.order) == 0 {
		return nil
	}
	batch := storage.NewBatch()
	for _, k := range o.order {
		if data, ok := o.writes[k]; ok {
			batch.Put([]byte(k), data)
			continue
		}
		batch.Delete([]byte(k))
	}
	return o.parent.apply(batch)
}

// Discard drops every buffered write.
func (o *Overlay) Discard() {
	o.closed = true
	o.writes = nil
	o.deleted = nil
	o.order = nil
}

func (o *Overlay) touch(k string) {
	if _, ok := o.writes[k]; ok {
		return
	}
	if _, ok := o.deleted[k]; ok {
		return
	}
	o.order = append(o.order, k)
}

func decodeInto(data []byte, out interface{}) (bool, error) {
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}
