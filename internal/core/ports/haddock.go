package ports

import "go.keelbuild.dev/keel/internal/core/domain"

// HaddockStore tracks per-package documentation interface files and
// computes transitive dependency closures for cross-linking.
//
//go:generate go run go.uber.org/mock/mockgen -source=haddock.go -destination=mocks/mock_haddock.go -package=mocks
type HaddockStore interface {
	// RecordInterface records the absolute path of id's .haddock file.
	RecordInterface(id domain.PackageID, path string)
	// Interfaces returns a snapshot of every recorded name-version to
	// .haddock path mapping.
	Interfaces() map[string]string
	// Closure returns the transitive set of library-or-executable
	// dependency names reachable from pkg in plan, including pkg
	// itself when it depends on itself.
	Closure(plan *domain.Plan, pkg string) map[string]bool
}
