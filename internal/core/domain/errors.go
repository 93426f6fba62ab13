package domain

import "go.trai.ch/zerr"

var (
	// ErrPackageAlreadyExists is returned when a plan already names a
	// package being added again.
	ErrPackageAlreadyExists = zerr.New("package already exists in plan")

	// ErrMissingDependency is returned when a package's dependency is
	// neither a core package nor present in the plan.
	ErrMissingDependency = zerr.New("missing dependency")

	// ErrCycleDetected is returned when the library/executable
	// dependency graph contains a cycle.
	ErrCycleDetected = zerr.New("cycle detected")

	// ErrDependencyMissing is raised by the dependency gate when a
	// required, non-core dependency is absent from the plan.
	ErrDependencyMissing = zerr.New("dependency missing from plan")

	// ErrDependencyFailed is raised by the dependency gate when a
	// required dependency's library latch resolved to false.
	ErrDependencyFailed = zerr.New("dependency failed")

	// ErrToolMissing is raised when a declared tool dependency has no
	// providing package and the active ToolMissingPolicy is set to fail.
	ErrToolMissing = zerr.New("tool missing")

	// ErrNoTargetsSpecified is returned when a build run is asked to
	// build zero packages.
	ErrNoTargetsSpecified = zerr.New("no targets specified")

	// ErrBuildExecutionFailed is the sentinel the driver wraps its
	// aggregated per-package failures in.
	ErrBuildExecutionFailed = zerr.New("build execution failed")
)
