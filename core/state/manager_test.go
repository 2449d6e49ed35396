package state

import (
	"errors"
	"math/big"
	"testing"

	"intentvault/storage"
)

type record struct {
	Name   string
	Amount *big.Int
	Flag   bool
}

func TestManagerRoundTrip(t *testing.T) {
	m := NewManager(storage.NewMemDB())

	if ok, err := m.KVGet([]byte("missing"), &record{}); err != nil || ok {
		t.Fatalf("expected missing key, got ok=%v err=%v", ok, err)
	}
	if err := m.KVPut([]byte("r"), record{Name: "alice", Amount: big.NewInt(42), Flag: true}); err != nil {
		t.Fatalf("put: %v", err)
	}
	var out record
	ok, err := m.KVGet([]byte("r"), &out)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if out.Name != "alice" || out.Amount.Int64() != 42 || !out.Flag {
		t.Fatalf("unexpected record %+v", out)
	}
	if err := m.KVDelete([]byte("r")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if ok, _ := m.KVGet([]byte("r"), &out); ok {
		t.Fatalf("expected record removed")
	}
	if err := m.KVPut(nil, record{}); err == nil {
		t.Fatalf("expected empty key rejection")
	}
}

func TestOverlayCommitAndDiscard(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	if err := m.KVPut([]byte("count"), uint64(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}

	discarded := m.Begin()
	if err := discarded.KVPut([]byte("count"), uint64(7)); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	var count uint64
	if ok, _ := discarded.KVGet([]byte("count"), &count); !ok || count != 7 {
		t.Fatalf("overlay should observe its own write, got %d", count)
	}
	discarded.Discard()
	if _, err := m.KVGet([]byte("count"), &count); err != nil || count != 1 {
		t.Fatalf("discard leaked state: count=%d err=%v", count, err)
	}
	if _, err := discarded.KVGet([]byte("count"), &count); !errors.Is(err, ErrOverlayClosed) {
		t.Fatalf("expected closed overlay error, got %v", err)
	}

	committed := m.Begin()
	if err := committed.KVPut([]byte("count"), uint64(2)); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := committed.KVPut([]byte("other"), "x"); err != nil {
		t.Fatalf("overlay put: %v", err)
	}
	if err := committed.KVDelete([]byte("other")); err != nil {
		t.Fatalf("overlay delete: %v", err)
	}
	if committed.Dirty() != 2 {
		t.Fatalf("expected 2 dirty keys, got %d", committed.Dirty())
	}
	if err := committed.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if _, err := m.KVGet([]byte("count"), &count); err != nil || count != 2 {
		t.Fatalf("commit not visible: count=%d err=%v", count, err)
	}
	var other string
	if ok, _ := m.KVGet([]byte("other"), &other); ok {
		t.Fatalf("deleted key should not be committed")
	}
}

func TestNestedOverlay(t *testing.T) {
	m := NewManager(storage.NewMemDB())
	if err := m.KVPut([]byte("a"), uint64(1)); err != nil {
		t.Fatalf("seed: %v", err)
	}
	outer := m.Begin()
	if err := outer.KVPut([]byte("b"), uint64(2)); err != nil {
		t.Fatalf("outer put: %v", err)
	}

	rejected := outer.Begin()
	if err := rejected.KVDelete([]byte("a")); err != nil {
		t.Fatalf("child delete: %v", err)
	}
	var v uint64
	if ok, _ := rejected.KVGet([]byte("a"), &v); ok {
		t.Fatalf("child should observe its delete")
	}
	rejected.Discard()
	if ok, _ := outer.KVGet([]byte("a"), &v); !ok || v != 1 {
		t.Fatalf("discarded child leaked into parent")
	}

	accepted := outer.Begin()
	if ok, _ := accepted.KVGet([]byte("b"), &v); !ok || v != 2 {
		t.Fatalf("child should read parent writes")
	}
	if err := accepted.KVPut([]byte("c"), uint64(3)); err != nil {
		t.Fatalf("child put: %v", err)
	}
	if err := accepted.KVDelete([]byte("a")); err != nil {
		t.Fatalf("child delete: %v", err)
	}
	if err := accepted.Commit(); err != nil {
		t.Fatalf("child commit: %v", err)
	}
	if ok, _ := m.KVGet([]byte("c"), &v); ok {
		t.Fatalf("child commit must stay inside the parent overlay")
	}
	if err := outer.Commit(); err != nil {
		t.Fatalf("outer commit: %v", err)
	}
	if ok, _ := m.KVGet([]byte("c"), &v); !ok || v != 3 {
		t.Fatalf("expected c committed, got ok=%v v=%d", ok, v)
	}
	if ok, _ := m.KVGet([]byte("a"), &v); ok {
		t.Fatalf("expected a deleted")
	}
}
