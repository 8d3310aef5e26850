package optimizer

import (
	"context"
	"fmt"
	"os/exec"
)

// ExecRunner runs commands via os/exec. The context carries the per-command
// timeout; a stuck transcoder is killed when it expires.
type ExecRunner struct{}

// Run executes the named command and returns its combined output
func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w (output: %s)", name, err, truncate(output, 512))
	}
	return output, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
