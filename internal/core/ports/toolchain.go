// Package ports defines the core interfaces the engine depends on.
package ports

import "context"

// Invocation describes one external process the toolchain adapter
// should run on behalf of a package stage.
type Invocation struct {
	// Dir is the working directory the process runs in.
	Dir string
	// Argv is the command and its arguments; Argv[0] is resolved
	// against the environment's PATH if not already absolute.
	Argv []string
	// Env, when non-empty, is the complete "KEY=VALUE" environment the
	// process runs with; the driver builds it once per run by
	// deny-listing the system environment and layering the hermetic
	// PATH/sandbox overlay on top. An empty Env leaves the adapter free
	// to fall back to its own process environment.
	Env []string
	// LogPath, if non-empty, is the stage log file combined stdout and
	// stderr are teed to, lazily opened on first write.
	LogPath string
}

// Toolchain drives the external compiler/package-manager tooling.
//
//go:generate go run go.uber.org/mock/mockgen -source=toolchain.go -destination=mocks/mock_toolchain.go -package=mocks
type Toolchain interface {
	// Run executes inv and returns once the process exits. Context
	// cancellation terminates the child process before Run returns. A
	// non-zero exit is reported as an error carrying the argv and exit
	// code.
	Run(ctx context.Context, inv Invocation) error
}
