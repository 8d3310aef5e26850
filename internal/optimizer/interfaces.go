package optimizer

import (
	"context"
)

// CommandRunner abstracts external transcoding process invocation (ffmpeg,
// ffprobe) so tests can substitute an in-memory fake
//
//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks
type CommandRunner interface {
	// Run executes the named command and returns its combined output
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}
