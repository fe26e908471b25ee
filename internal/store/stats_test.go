package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeRaw(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func TestStatsFileAppendAndAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	sf := NewStatsFile(path)

	now := time.Now()
	if err := sf.Append(NetworkStats{Peer: "10.0.0.2", Timestamp: now, RTT: 5 * time.Millisecond, UpMbps: 1.5, DownMbps: 2.5}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := sf.Append(NetworkStats{Peer: "10.0.0.2", Timestamp: now.Add(time.Second), RTT: 6 * time.Millisecond}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	all, err := sf.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	history := all["10.0.0.2"]
	if len(history) != 2 {
		t.Fatalf("expected 2 records, got %d", len(history))
	}
}

func TestStatsFileTrimsOldAndExcessRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	sf := NewStatsFile(path)

	now := time.Now()
	if err := sf.Append(NetworkStats{Peer: "p", Timestamp: now.Add(-2 * MaxAge)}); err != nil {
		t.Fatalf("Append old: %v", err)
	}
	for i := 0; i < MaxRecords+5; i++ {
		if err := sf.Append(NetworkStats{Peer: "p", Timestamp: now}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	all, err := sf.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all["p"]) != MaxRecords {
		t.Fatalf("expected history trimmed to %d, got %d", MaxRecords, len(all["p"]))
	}
}

func TestStatsFileMalformedFileTreatedAsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	if err := writeRaw(path, "not json"); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}
	sf := NewStatsFile(path)
	if err := sf.Append(NetworkStats{Peer: "p", Timestamp: time.Now()}); err != nil {
		t.Fatalf("Append after malformed file: %v", err)
	}
	all, err := sf.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(all["p"]) != 1 {
		t.Fatalf("expected 1 record after recovering from malformed file, got %d", len(all["p"]))
	}
}
