package orchestrator

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"shared-state/internal/reactor"
)

// runHooks invokes every executable entry under
// SHARED_STATE_HOOKS_DIR/typeName/ as a child process, writing the
// type's current clean JSON state to its stdin and then closing stdin
// (spec.md §6 "Hook directory"). Entries that are not executable are
// skipped with a diagnostic. A hook's own exit status is not checked;
// the contract only specifies the stdin payload, not a response.
func (o *Orchestrator) runHooks(ctx context.Context, typeName string) {
	dir := filepath.Join(o.cfg.HooksDir, typeName)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !os.IsNotExist(err) {
			o.log.WithError(err).WithField("dir", dir).Warn("orchestrator: read hooks dir failed")
		}
		return
	}

	state, err := o.store.Snapshot(typeName)
	if err != nil {
		o.log.WithError(err).WithField("type", typeName).Warn("orchestrator: snapshot for hooks failed")
		return
	}
	payload, err := json.Marshal(state)
	if err != nil {
		o.log.WithError(err).Warn("orchestrator: marshal hook payload failed")
		return
	}

	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		info, err := ent.Info()
		if err != nil {
			continue
		}
		if info.Mode()&0o111 == 0 {
			o.log.WithField("path", filepath.Join(dir, ent.Name())).Debug("orchestrator: skipping non-executable hook entry")
			continue
		}
		o.runOneHook(ctx, filepath.Join(dir, ent.Name()), payload)
	}
}

func (o *Orchestrator) runOneHook(ctx context.Context, path string, payload []byte) {
	child, err := reactor.StartCommand(o.r, path)
	if err != nil {
		o.log.WithError(err).WithField("hook", path).Warn("orchestrator: start hook failed")
		return
	}
	defer child.Close()

	if _, err := child.WriteStdIn(ctx, payload); err != nil {
		o.log.WithError(err).WithField("hook", path).Warn("orchestrator: write hook stdin failed")
	}
	if err := child.CloseStdIn(); err != nil {
		o.log.WithError(err).WithField("hook", path).Warn("orchestrator: close hook stdin failed")
	}
	if err := child.WaitForProcessTermination(ctx); err != nil {
		o.log.WithError(err).WithField("hook", path).Warn("orchestrator: wait for hook failed")
	}
}
