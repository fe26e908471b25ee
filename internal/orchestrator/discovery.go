package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net"

	"shared-state/internal/reactor"
)

// DiscoverCandidates invokes discoveryCmd as a child process via r and
// parses its stdout as one IP address per line (spec.md §6 "Discovery
// collaborator"). An empty discoveryCmd yields no candidates rather
// than an error, since discovery is optional when a sync round names
// explicit peers. Exported so the CLI's one-shot "discover"/"sync"
// commands can share this with the orchestrator's sync loop.
func DiscoverCandidates(ctx context.Context, r *reactor.Reactor, discoveryCmd string) ([]string, error) {
	if discoveryCmd == "" {
		return nil, nil
	}

	child, err := reactor.StartCommand(r, discoveryCmd)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: start discovery command: %w", err)
	}
	defer child.Close()
	if err := child.CloseStdIn(); err != nil {
		return nil, fmt.Errorf("orchestrator: close discovery stdin: %w", err)
	}

	var candidates []string
	buf := make([]byte, 0, 4096)
	chunk := make([]byte, 4096)
	for {
		n, err := child.ReadStdOut(ctx, chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
		}
		if err != nil {
			return nil, fmt.Errorf("orchestrator: read discovery output: %w", err)
		}
		if n == 0 {
			break // EOF
		}
	}

	if err := child.WaitForProcessTermination(ctx); err != nil {
		return nil, fmt.Errorf("orchestrator: discovery command did not exit: %w", err)
	}

	sc := bufio.NewScanner(bytes.NewReader(buf))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		if net.ParseIP(line) == nil {
			return nil, fmt.Errorf("orchestrator: invalid discovery candidate %q", line)
		}
		candidates = append(candidates, line)
	}
	return candidates, nil
}

// discoverCandidates is the orchestrator's own sync loop entry point,
// using its configured discovery command.
func (o *Orchestrator) discoverCandidates(ctx context.Context) ([]string, error) {
	return DiscoverCandidates(ctx, o.r, o.cfg.DiscoveryCmd)
}
