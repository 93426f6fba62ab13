package ports

import "go.keelbuild.dev/keel/internal/core/domain"

// Ledger persists per-(stage,package) success/failure across runs.
//
//go:generate go run go.uber.org/mock/mockgen -source=ledger.go -destination=mocks/mock_ledger.go -package=mocks
type Ledger interface {
	// Get returns the recorded result of stage for id. Any I/O error is
	// reported as domain.NoResult, never as an error return.
	Get(stage domain.Stage, id domain.PackageID) domain.StageResult
	// Put atomically records whether stage succeeded for id.
	Put(stage domain.Stage, id domain.PackageID, success bool) error
	// ClearAll deletes every stage's entry for id; missing entries are
	// not an error.
	ClearAll(id domain.PackageID) error
}
