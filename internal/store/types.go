// Package store implements the shared-state replicated key-value model:
// per-type record maps, authorship/TTL bookkeeping, and the merge/bleach
// algorithm that converges peers to the same state.
package store

import (
	"encoding/json"
	"time"
)

// AuthorPlaceholder marks an entry authored locally via the CLI, as
// opposed to a remote author string carried in from a peer.
const AuthorPlaceholder = "author_placeholder"

// DataTypeNameMax is the maximum byte length of a registered type name.
const DataTypeNameMax = 255

// DataMaxLength bounds a single wire payload in principle; in practice the
// peer's send buffer is the real limit.
const DataMaxLength = 1 << 30

// StateEntry is one replicated record: who authored it, how many seconds
// of life it has left, and its opaque JSON payload.
type StateEntry struct {
	Author string          `json:"author"`
	TTL    int64           `json:"ttl"`
	Data   json.RawMessage `json:"data"`
}

// TypeState maps a record key to its current entry. Key order never
// matters to the protocol.
type TypeState map[string]StateEntry

// Clone returns a deep copy safe to hand to a caller that may mutate it.
func (ts TypeState) Clone() TypeState {
	out := make(TypeState, len(ts))
	for k, v := range ts {
		cp := make(json.RawMessage, len(v.Data))
		copy(cp, v.Data)
		out[k] = StateEntry{Author: v.Author, TTL: v.TTL, Data: cp}
	}
	return out
}

// TypeConfig is the per-type registration record persisted to the
// config file and reloaded on every sync/bleach tick.
type TypeConfig struct {
	Name           string `json:"name"`
	Scope          string `json:"scope"`
	UpdateInterval int64  `json:"updateInterval"` // seconds, > 0
	BleachTTL      int64  `json:"bleachTTL"`       // seconds, > 0
}

// InsertTTL is the TTL stamped on a freshly inserted entry: generous
// enough to survive at least one full propagation cycle.
func (c TypeConfig) InsertTTL() int64 {
	return c.BleachTTL + c.UpdateInterval + 1
}

// NetworkMessage is the wire envelope exchanged during a sync round: one
// type's name plus the JSON encoding of its TypeState.
type NetworkMessage struct {
	TypeName  string
	DataBytes []byte
}

// NetworkStats is one completed-sync record appended to a peer's bounded
// history in the stats file.
type NetworkStats struct {
	Peer      string        `json:"peer"`
	Timestamp time.Time     `json:"timestamp"`
	RTT       time.Duration `json:"rtt"`
	UpMbps    float64       `json:"upMbps"`
	DownMbps  float64       `json:"downMbps"`

	// Instance disambiguates stats recorded by different shared-state
	// processes on the same host when a peer's address repeats across
	// them (spec.md §6 "Statistics file"; see stats.go).
	Instance string `json:"instance,omitempty"`
}
