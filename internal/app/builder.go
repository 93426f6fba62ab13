package app

import "go.keelbuild.dev/keel/internal/core/ports"

// Components bundles the top-level objects `cmd/keel` needs once the
// graft dependency graph has been resolved.
type Components struct {
	App    *App
	Logger ports.Logger
}

// NewComponents assembles Components from its resolved dependencies.
func NewComponents(a *App, logger ports.Logger) *Components {
	return &Components{App: a, Logger: logger}
}
