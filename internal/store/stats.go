package store

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// processInstanceID disambiguates this process's stats records from
// another shared-state process's records for the same peer address,
// e.g. two instances running on the same host during a migration
// (spec.md §6, SPEC_FULL.md §4.9).
var processInstanceID = uuid.NewString()

// MaxRecords and MaxAge bound the stats file: at most MaxRecords entries
// are kept per peer, and entries older than MaxAge are dropped
// regardless of count (spec.md §3, §6).
const (
	MaxRecords = 50
	MaxAge     = 24 * time.Hour
)

// StatsFile persists NetworkStats history, one bounded array per peer,
// guarded by an advisory exclusive flock since multiple shared-state
// process instances (peer mode + one-shot CLI invocations) may write it
// concurrently (spec.md §5).
type StatsFile struct {
	path string
}

// NewStatsFile targets path for reads and writes.
func NewStatsFile(path string) *StatsFile {
	return &StatsFile{path: path}
}

// Append adds one stats record for peer, trimming the peer's history to
// MaxRecords and dropping anything older than MaxAge, under an
// exclusive advisory lock for the whole read-modify-write.
func (s *StatsFile) Append(rec NetworkStats) error {
	f, err := os.OpenFile(s.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("store: open stats file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		return fmt.Errorf("store: flock stats file: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	all, err := readStatsLocked(f)
	if err != nil {
		// Malformed file: treated as empty and replaced.
		all = make(map[string][]NetworkStats)
	}

	if rec.Instance == "" {
		rec.Instance = processInstanceID
	}
	history := append(all[rec.Peer], rec)
	history = trimStats(history, rec.Timestamp)
	all[rec.Peer] = history

	return writeStatsLocked(f, all)
}

// All returns a snapshot of the full stats file contents.
func (s *StatsFile) All() (map[string][]NetworkStats, error) {
	f, err := os.OpenFile(s.path, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: open stats file: %w", err)
	}
	defer f.Close()

	if err := unix.Flock(int(f.Fd()), unix.LOCK_SH); err != nil {
		return nil, fmt.Errorf("store: flock stats file: %w", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)

	all, err := readStatsLocked(f)
	if err != nil {
		return map[string][]NetworkStats{}, nil
	}
	return all, nil
}

func trimStats(history []NetworkStats, now time.Time) []NetworkStats {
	out := history[:0:0]
	for _, h := range history {
		if now.Sub(h.Timestamp) > MaxAge {
			continue
		}
		out = append(out, h)
	}
	if len(out) > MaxRecords {
		out = out[len(out)-MaxRecords:]
	}
	return out
}

func readStatsLocked(f *os.File) (map[string][]NetworkStats, error) {
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	var all map[string][]NetworkStats
	dec := json.NewDecoder(f)
	if err := dec.Decode(&all); err != nil {
		return nil, err
	}
	return all, nil
}

func writeStatsLocked(f *os.File, all map[string][]NetworkStats) error {
	raw, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	_, err = f.Write(raw)
	return err
}
