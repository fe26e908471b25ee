package store

import (
	"bytes"
	"net"

	"github.com/sirupsen/logrus"
)

// Merge folds an incoming TypeState (received from peerAddr) into the
// local state for typeName, following the deterministic conflict rule
// in spec.md §4.8, and returns the count of significant changes
// (insertions, or replacements whose data actually differs) — used by
// the orchestrator to decide whether to notify hooks.
func (s *Store) Merge(typeName string, incoming TypeState, peerAddr net.Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.typeConf[typeName]; !ok {
		return 0, ErrUnknownDataType
	}
	local := s.states[typeName]
	if local == nil {
		local = make(TypeState)
		s.states[typeName] = local
	}

	isRemote := !isLoopback(peerAddr)
	changes := 0

	for key, in := range incoming {
		known, exists := local[key]
		if !exists {
			local[key] = in
			changes++
			continue
		}

		ownAuthorship := known.Author == AuthorPlaceholder
		if isRemote && ownAuthorship && in.TTL > known.TTL {
			s.log.WithFields(logrus.Fields{
				"type": typeName, "key": key, "peer": addrString(peerAddr),
				"knownTTL": known.TTL, "incomingTTL": in.TTL,
			}).Warn("store: rejecting remote claim to know our own entry fresher than we do")
			continue
		}

		if in.TTL >= known.TTL {
			if !bytes.Equal(known.Data, in.Data) {
				changes++
			}
			local[key] = in
			continue
		}
		// in.TTL < known.TTL: discard the incoming value.
	}

	return changes, nil
}

// Bleach deletes every entry of typeName with ttl <= times and
// decrements the remaining entries' ttl by times. Called
// once per type per tick by the orchestrator's bleach loop.
func (s *Store) Bleach(typeName string, times int64) (removed int, err error) {
	if times <= 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.typeConf[typeName]; !ok {
		return 0, ErrUnknownDataType
	}
	ts := s.states[typeName]
	for key, e := range ts {
		if e.TTL <= times {
			delete(ts, key)
			removed++
			continue
		}
		e.TTL -= times
		ts[key] = e
	}
	return removed, nil
}

func isLoopback(addr net.Addr) bool {
	if addr == nil {
		return true
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		host = addr.String()
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	return ip.IsLoopback()
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return "<nil>"
	}
	return addr.String()
}
