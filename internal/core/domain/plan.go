// Package domain contains the core types of a build plan and the
// package-level state a build run threads through them.
package domain

import (
	"slices"

	"go.trai.ch/zerr"
)

// CabalPackageName is the name of the build-system library that every
// other package implicitly depends on, regardless of its declared
// dependency list.
const CabalPackageName = "Cabal"

// Dependency is one package dependency of a PackageSpec, annotated with
// the set of components that consume it. A dependency only gates a
// component's stages if that component is in Consuming.
type Dependency struct {
	Package  string
	Consuming ComponentSet
}

// ToolDependency is a build-time tool dependency (as opposed to a
// library/executable dependency), resolved through the plan's tool
// override map rather than through the package graph directly.
type ToolDependency struct {
	Name      string
	Consuming ComponentSet
}

// PackageSpec is one package's frozen description within a Plan.
type PackageSpec struct {
	ID         PackageID
	Modules    []string
	Components ComponentSet
	Deps       []Dependency
	ToolDeps   []ToolDependency
	Constraints Constraints
	SourceURL  string

	// TestSuites and Benchmarks name the individual test-suite and
	// benchmark stanzas declared by the package, each built to
	// dist/build/<name>/<name>. A declared TestSuite/Benchmark
	// component with no named stanza falls back to the package's own
	// name, the common single-stanza convention.
	TestSuites []string
	Benchmarks []string
}

// HasModules reports whether the package declares any library modules,
// which gates whether haddock has anything to document.
func (p *PackageSpec) HasModules() bool {
	return len(p.Modules) > 0
}

// HasLibrary reports whether the package declares a library component.
func (p *PackageSpec) HasLibrary() bool {
	return p.Components[Library]
}

// Plan is the immutable, resolved set of packages a build run operates
// on, frozen before any task starts.
type Plan struct {
	Packages        map[string]*PackageSpec
	CorePackages    map[string]bool
	CoreExecutables map[string]bool
	ToolOverrides   map[string]string

	order []string
}

// NewPlan creates an empty, mutable Plan. Call Validate once all
// packages have been added to freeze the execution order.
func NewPlan() *Plan {
	return &Plan{
		Packages:        make(map[string]*PackageSpec),
		CorePackages:    make(map[string]bool),
		CoreExecutables: make(map[string]bool),
		ToolOverrides:   make(map[string]string),
	}
}

// AddPackage adds a package to the plan. It is an error to add the
// same name twice.
func (p *Plan) AddPackage(spec *PackageSpec) error {
	if _, exists := p.Packages[spec.ID.Name]; exists {
		return zerr.With(ErrPackageAlreadyExists, "package", spec.ID.Name)
	}
	p.Packages[spec.ID.Name] = spec
	return nil
}

// Validate checks the plan's dependency graph for cycles among
// library/executable dependencies and records a deterministic
// execution order (library/executable edges only — test and
// benchmark edges may legitimately widen a component's dependency set
// without being part of the package-level topological order).
func (p *Plan) Validate() error {
	p.order = make([]string, 0, len(p.Packages))
	visited := make(map[string]int) // 0 unvisited, 1 visiting, 2 visited
	var path []string

	libExec := NewComponentSet(Library, Executable)

	var visit func(name string) error
	visit = func(name string) error {
		visited[name] = 1
		path = append(path, name)

		spec, exists := p.Packages[name]
		if !exists {
			if p.CorePackages[name] {
				visited[name] = 2
				path = path[:len(path)-1]
				return nil
			}
			return zerr.With(ErrMissingDependency, "dependency", name)
		}

		for _, dep := range spec.Deps {
			if !dep.Consuming.Intersects(libExec) {
				continue
			}
			if p.CorePackages[dep.Package] {
				continue
			}
			if dep.Package == name {
				// A package depending on itself is legal in this
				// ecosystem; it is not a cycle since there is no other
				// package on the path back to it.
				continue
			}
			switch visited[dep.Package] {
			case 1:
				return p.buildCycleError(path, dep.Package)
			case 0:
				if err := visit(dep.Package); err != nil {
					return err
				}
			}
		}

		visited[name] = 2
		path = path[:len(path)-1]
		p.order = append(p.order, name)
		return nil
	}

	names := make([]string, 0, len(p.Packages))
	for name := range p.Packages {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Plan) buildCycleError(path []string, dep string) error {
	cycle := ""
	start := -1
	for i, node := range path {
		if node == dep {
			start = i
			break
		}
	}
	for i := start; i < len(path); i++ {
		cycle += path[i] + " -> "
	}
	cycle += dep
	return zerr.With(ErrCycleDetected, "cycle", cycle)
}

// Order returns the plan's deterministic library/executable topological
// order, computed by the most recent call to Validate.
func (p *Plan) Order() []string {
	return p.order
}

// Closure returns a new, unvalidated Plan containing only the named
// targets and everything they transitively depend on, sharing the
// receiver's CorePackages/CoreExecutables/ToolOverrides. A nil targets
// slice means "build everything" and returns the receiver itself,
// unchanged; an explicitly empty, non-nil slice is treated as a caller
// error, since restricting a build to zero targets is never the
// caller's actual intent.
func (p *Plan) Closure(targets []string) (*Plan, error) {
	if targets == nil {
		return p, nil
	}
	if len(targets) == 0 {
		return nil, ErrNoTargetsSpecified
	}

	sub := &Plan{
		Packages:        make(map[string]*PackageSpec, len(targets)),
		CorePackages:    p.CorePackages,
		CoreExecutables: p.CoreExecutables,
		ToolOverrides:   p.ToolOverrides,
	}

	visited := make(map[string]bool)
	var visit func(name string) error
	visit = func(name string) error {
		if visited[name] || p.CorePackages[name] {
			return nil
		}
		spec, exists := p.Packages[name]
		if !exists {
			return zerr.With(ErrMissingDependency, "dependency", name)
		}
		visited[name] = true
		sub.Packages[name] = spec
		for _, dep := range spec.Deps {
			if err := visit(dep.Package); err != nil {
				return err
			}
		}
		return nil
	}

	for _, target := range targets {
		if _, exists := p.Packages[target]; !exists {
			return nil, zerr.With(ErrMissingDependency, "target", target)
		}
		if err := visit(target); err != nil {
			return nil, err
		}
	}

	return sub, nil
}
