package domain

import "fmt"

// PackageID identifies a single pinned package within a build plan.
type PackageID struct {
	Name    string
	Version string
}

// String renders the canonical "name-version" form used as the ledger
// and haddock interface key.
func (id PackageID) String() string {
	return fmt.Sprintf("%s-%s", id.Name, id.Version)
}
