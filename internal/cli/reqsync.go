package cli

import (
	"bytes"
	"os/exec"
)

// pipeThroughReqsync implements the CLI side of spec.md §6's per-type
// "reqsync" collaborator contract: data is written to the collaborator's
// stdin and the merged result read back from its stdout. The
// collaborator's own merge logic is explicitly out of scope (spec.md
// §1 Non-goals); if no "shared-state" executable implementing
// "reqsync" is reachable on PATH, insert/get fall back to the
// unmodified payload rather than failing the whole operation.
func pipeThroughReqsync(typeName string, payload []byte) ([]byte, error) {
	binPath, err := exec.LookPath("shared-state")
	if err != nil {
		return payload, nil
	}

	cmd := exec.Command(binPath, "reqsync", typeName)
	cmd.Stdin = bytes.NewReader(payload)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return payload, nil
	}
	return out.Bytes(), nil
}
