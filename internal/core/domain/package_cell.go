package domain

// PackageCell is the per-package mutable cell allocated before any
// task starts. LibReady is written exactly once: true once the
// package's library has been built, copied, and registered; false on
// any fatal task exit (including one that never reaches BUILD).
type PackageCell struct {
	Spec     *PackageSpec
	LibReady *Latch[bool]
}

// NewPackageCell allocates a cell with an unset LibReady latch.
func NewPackageCell(spec *PackageSpec) *PackageCell {
	return &PackageCell{
		Spec:     spec,
		LibReady: NewLatch[bool](),
	}
}
