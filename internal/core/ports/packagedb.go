package ports

import "context"

// PackageDB manages the installed binary package database.
//
//go:generate go run go.uber.org/mock/mockgen -source=packagedb.go -destination=mocks/mock_packagedb.go -package=mocks
type PackageDB interface {
	// Ensure initialises the database if it does not already exist.
	Ensure(ctx context.Context) error
	// Registered enumerates the names of already-registered packages.
	Registered(ctx context.Context) (map[string]bool, error)
}
