package store

import (
	"encoding/json"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	log := logrus.New()
	log.SetOutput(logrusDiscard{t})
	s := New(dir, log)
	if err := s.Register(TypeConfig{Name: "hosts", Scope: "lan", UpdateInterval: 1, BleachTTL: 60}); err != nil {
		t.Fatalf("register: %v", err)
	}
	return s
}

type logrusDiscard struct{ t *testing.T }

func (logrusDiscard) Write(p []byte) (int, error) { return len(p), nil }

func remoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("203.0.113.9"), Port: 3490}
}

func loopbackAddr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 3490}
}

func TestMergeIdempotence(t *testing.T) {
	s := testStore(t)
	incoming := TypeState{"k1": {Author: "peerA", TTL: 40, Data: json.RawMessage(`{"ip":"10.0.0.1"}`)}}

	n1, err := s.Merge("hosts", incoming, remoteAddr())
	if err != nil {
		t.Fatalf("merge 1: %v", err)
	}
	if n1 != 1 {
		t.Fatalf("expected 1 significant change on first merge, got %d", n1)
	}

	n2, err := s.Merge("hosts", incoming, remoteAddr())
	if err != nil {
		t.Fatalf("merge 2: %v", err)
	}
	if n2 != 0 {
		t.Fatalf("expected 0 significant changes on repeat merge, got %d", n2)
	}
}

func TestMergeMonotonicityInTTL(t *testing.T) {
	s := testStore(t)
	if err := s.Insert("hosts", "k1", json.RawMessage(`{"ip":"10.0.0.1"}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	e, _, _ := s.Get("hosts", "k1")
	prevTTL := e.TTL

	lowerTTL := TypeState{"k1": {Author: "peerA", TTL: prevTTL - 10, Data: e.Data}}
	if _, err := s.Merge("hosts", lowerTTL, remoteAddr()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	after, _, _ := s.Get("hosts", "k1")
	if after.TTL < prevTTL {
		t.Fatalf("ttl decreased from %d to %d on a lower-ttl remote merge", prevTTL, after.TTL)
	}
}

func TestOwnAuthorshipGuard(t *testing.T) {
	s := testStore(t)
	if err := s.Insert("hosts", "k1", json.RawMessage(`{"ip":"10.0.0.1"}`)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	e, _, _ := s.Get("hosts", "k1")

	higherTTL := TypeState{"k1": {Author: "someone-else", TTL: e.TTL + 1000, Data: json.RawMessage(`{"ip":"9.9.9.9"}`)}}
	if _, err := s.Merge("hosts", higherTTL, remoteAddr()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	after, _, _ := s.Get("hosts", "k1")
	if after.TTL != e.TTL {
		t.Fatalf("own-authorship guard failed: ttl changed from %d to %d", e.TTL, after.TTL)
	}
	if string(after.Data) != string(e.Data) {
		t.Fatalf("own-authorship guard failed: data was overwritten")
	}

	// The same entry from loopback (i.e. our own other process) is accepted.
	if _, err := s.Merge("hosts", higherTTL, loopbackAddr()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	after2, _, _ := s.Get("hosts", "k1")
	if after2.TTL != e.TTL+1000 {
		t.Fatalf("expected loopback merge to replace entry, ttl=%d", after2.TTL)
	}
}

func TestMergeTieGoesToIncoming(t *testing.T) {
	s := testStore(t)
	incoming := TypeState{"k1": {Author: "peerA", TTL: 40, Data: json.RawMessage(`"X"`)}}
	if _, err := s.Merge("hosts", incoming, remoteAddr()); err != nil {
		t.Fatalf("merge: %v", err)
	}
	tie := TypeState{"k1": {Author: "peerB", TTL: 40, Data: json.RawMessage(`"Y"`)}}
	n, err := s.Merge("hosts", tie, remoteAddr())
	if err != nil {
		t.Fatalf("merge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected tie to count as a significant change, got %d", n)
	}
	after, _, _ := s.Get("hosts", "k1")
	if string(after.Data) != `"Y"` {
		t.Fatalf("expected incoming value to win the tie, got %s", after.Data)
	}
}

func TestBleachErasesIffTTLLessOrEqualTimes(t *testing.T) {
	s := testStore(t)
	s.mu.Lock()
	s.states["hosts"]["k1"] = StateEntry{Author: AuthorPlaceholder, TTL: 3, Data: json.RawMessage(`1`)}
	s.states["hosts"]["k2"] = StateEntry{Author: AuthorPlaceholder, TTL: 10, Data: json.RawMessage(`2`)}
	s.mu.Unlock()

	for i := 0; i < 2; i++ {
		if _, err := s.Bleach("hosts", 1); err != nil {
			t.Fatalf("bleach: %v", err)
		}
	}
	if _, ok, _ := s.Get("hosts", "k1"); !ok {
		t.Fatalf("k1 should still be present after ttl 3 - 2 = 1")
	}
	if _, err := s.Bleach("hosts", 1); err != nil {
		t.Fatalf("bleach: %v", err)
	}
	if _, ok, _ := s.Get("hosts", "k1"); ok {
		t.Fatalf("k1 should have been removed once ttl reached 0")
	}
	k2, ok, _ := s.Get("hosts", "k2")
	if !ok {
		t.Fatalf("k2 should survive")
	}
	if k2.TTL != 7 {
		t.Fatalf("expected k2 ttl 10-3=7, got %d", k2.TTL)
	}
}

func TestUnknownDataType(t *testing.T) {
	s := testStore(t)
	if _, err := s.Merge("ghosts", TypeState{}, remoteAddr()); err != ErrUnknownDataType {
		t.Fatalf("expected ErrUnknownDataType, got %v", err)
	}
	if err := s.Insert("ghosts", "k", nil); err != ErrUnknownDataType {
		t.Fatalf("expected ErrUnknownDataType, got %v", err)
	}
}
