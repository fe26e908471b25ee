package orchestrator

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"shared-state/internal/reactor"
	"shared-state/internal/store"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestOrchestrator(t *testing.T, clk clock.Clock) (*Orchestrator, *store.Store, context.Context) {
	t.Helper()
	dir := t.TempDir()

	r, err := reactor.New(testLogger())
	if err != nil {
		t.Fatalf("New reactor: %v", err)
	}
	t.Cleanup(func() { r.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go r.Run(ctx)

	st := store.New(dir, testLogger())
	if err := st.Register(store.TypeConfig{Name: "hosts", Scope: "lan", UpdateInterval: 1, BleachTTL: 60}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	o, err := New(r, st, testLogger(), clk, Config{
		HooksDir:      filepath.Join(dir, "hooks"),
		StatsFilePath: filepath.Join(dir, "stats.json"),
	})
	if err != nil {
		t.Fatalf("New orchestrator: %v", err)
	}
	return o, st, ctx
}

func TestDueTypesDivideWallClockSecond(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Unix(100, 0)) // 100 % 1 == 0, % 4 == 0
	o, st, _ := newTestOrchestrator(t, mock)

	if err := st.Register(store.TypeConfig{Name: "quarterly", Scope: "", UpdateInterval: 4, BleachTTL: 60}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := st.Register(store.TypeConfig{Name: "odd", Scope: "", UpdateInterval: 3, BleachTTL: 60}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	due := o.dueTypes()
	names := make(map[string]bool)
	for _, cfg := range due {
		names[cfg.Name] = true
	}
	if !names["hosts"] || !names["quarterly"] {
		t.Fatalf("expected hosts and quarterly to be due, got %v", names)
	}
	if names["odd"] {
		t.Fatalf("did not expect odd (updateInterval=3) to be due at t=100")
	}
}

func TestRunHooksWritesCleanStatePayload(t *testing.T) {
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("no /bin/sh available")
	}

	mock := clock.NewMock()
	o, st, ctx := newTestOrchestrator(t, mock)

	if err := st.Insert("hosts", "k1", json.RawMessage(`{"ip":"10.0.0.1"}`)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hookDir := filepath.Join(o.cfg.HooksDir, "hosts")
	if err := os.MkdirAll(hookDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	outPath := filepath.Join(hookDir, "out.json")
	script := "#!/bin/sh\ncat > " + outPath + "\n"
	hookPath := filepath.Join(hookDir, "record.sh")
	if err := os.WriteFile(hookPath, []byte(script), 0o755); err != nil {
		t.Fatalf("WriteFile hook: %v", err)
	}

	o.runHooks(ctx, "hosts")

	deadline := time.Now().Add(2 * time.Second)
	var raw []byte
	var err error
	for time.Now().Before(deadline) {
		raw, err = os.ReadFile(outPath)
		if err == nil && len(raw) > 0 {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("hook did not write output: %v", err)
	}

	var got store.TypeState
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("unmarshal hook output: %v", err)
	}
	entry, ok := got["k1"]
	if !ok {
		t.Fatalf("hook output missing k1: %s", raw)
	}
	if string(entry.Data) != `{"ip":"10.0.0.1"}` {
		t.Fatalf("got data %s", entry.Data)
	}
}

func TestRunHooksSkipsNonExecutableEntries(t *testing.T) {
	mock := clock.NewMock()
	o, st, ctx := newTestOrchestrator(t, mock)

	if err := st.Insert("hosts", "k1", json.RawMessage(`{"ip":"10.0.0.2"}`)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	hookDir := filepath.Join(o.cfg.HooksDir, "hosts")
	if err := os.MkdirAll(hookDir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(hookDir, "readme.txt"), []byte("not a hook"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// Must not panic or block on the non-executable entry.
	o.runHooks(ctx, "hosts")
}

func TestDiscoverCandidatesEmptyCommandYieldsNoCandidates(t *testing.T) {
	mock := clock.NewMock()
	o, _, ctx := newTestOrchestrator(t, mock)
	peers, err := o.discoverCandidates(ctx)
	if err != nil {
		t.Fatalf("discoverCandidates: %v", err)
	}
	if len(peers) != 0 {
		t.Fatalf("expected no candidates, got %v", peers)
	}
}
