package cli

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"shared-state/internal/reactor"
	"shared-state/internal/store"
	"shared-state/pkg/config"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newTestApp(t *testing.T) *App {
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
	cfg := &config.Config{StatsFilePath: dir + "/stats.json"}

	return &App{Store: st, Reactor: r, Cfg: cfg, Log: testLogger()}
}

func execCmd(app *App, args ...string) (string, error) {
	root := NewRootCommand(app)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRegisterThenInsertThenGet(t *testing.T) {
	app := newTestApp(t)

	if _, err := execCmd(app, "register", "hosts", "lan", "1", "60"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := execCmd(app, "insert", "hosts", "k1", `{"ip":"10.0.0.1"}`); err != nil {
		t.Fatalf("insert: %v", err)
	}

	out, err := execCmd(app, "get", "hosts", "k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if out != `{"ip":"10.0.0.1"}`+"\n" {
		t.Fatalf("got %q", out)
	}
}

func TestGetUnknownTypeIsUsageError(t *testing.T) {
	app := newTestApp(t)
	_, err := execCmd(app, "get", "nosuchtype", "k1")
	if err == nil {
		t.Fatalf("expected error for unregistered type")
	}
	var exitErr *ExitError
	if !asExitError(err, &exitErr) {
		t.Fatalf("expected *ExitError, got %T: %v", err, err)
	}
}

func asExitError(err error, target **ExitError) bool {
	e, ok := err.(*ExitError)
	if ok {
		*target = e
	}
	return ok
}

func TestRegisterRejectsNonIntegerDurations(t *testing.T) {
	app := newTestApp(t)
	_, err := execCmd(app, "register", "hosts", "lan", "not-a-number", "60")
	if err == nil {
		t.Fatalf("expected usage error")
	}
}

func TestDumpPrintsRegisteredTypeState(t *testing.T) {
	app := newTestApp(t)
	if _, err := execCmd(app, "register", "hosts", "lan", "1", "60"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := execCmd(app, "insert", "hosts", "k1", `{"ip":"10.0.0.1"}`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	out, err := execCmd(app, "dump")
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if !bytes.Contains([]byte(out), []byte("10.0.0.1")) {
		t.Fatalf("dump output missing inserted value: %s", out)
	}
}
