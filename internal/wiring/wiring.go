// Package wiring registers all Graft nodes for the application.
package wiring

import (
	// Register adapter nodes.
	_ "go.keelbuild.dev/keel/internal/adapters/config"
	_ "go.keelbuild.dev/keel/internal/adapters/haddock"
	_ "go.keelbuild.dev/keel/internal/adapters/logger"
	_ "go.keelbuild.dev/keel/internal/adapters/telemetry/progrock"
	_ "go.keelbuild.dev/keel/internal/adapters/toolchain"
	// Register the app node.
	_ "go.keelbuild.dev/keel/internal/app"
)
