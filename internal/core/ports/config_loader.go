package ports

import "go.keelbuild.dev/keel/internal/core/domain"

// ConfigLoader defines the interface for loading a resolved build plan.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load reads the plan file at path and returns the validated plan.
	Load(path string) (*domain.Plan, error)
}
