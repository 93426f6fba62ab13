// Package gate implements the dependency gate that blocks a package's
// stages until its required dependencies have reached the required
// stage.
package gate

import (
	"context"

	"go.keelbuild.dev/keel/internal/core/domain"
	"go.trai.ch/zerr"
)

// ToolMissingPolicy controls how a missing, non-core tool dependency is
// treated. The upstream ecosystem historically suppresses this failure
// (a workaround for a long-standing bug); this is exposed as a policy
// knob rather than hard-coded.
type ToolMissingPolicy int

const (
	// PolicySilence tolerates a missing tool dependency silently.
	PolicySilence ToolMissingPolicy = iota
	// PolicyFail raises domain.ErrToolMissing for a missing, non-core
	// tool dependency.
	PolicyFail
)

// Gate implements the dependency-wait algorithm against a frozen plan
// and the per-package cells allocated for the current run.
type Gate struct {
	plan          *domain.Plan
	cells         map[string]*domain.PackageCell
	toolProviders map[string][]string
	policy        ToolMissingPolicy
}

// New creates a Gate. toolProviders maps a declared tool name to the
// set of plan packages that provide it.
func New(plan *domain.Plan, cells map[string]*domain.PackageCell, toolProviders map[string][]string, policy ToolMissingPolicy) *Gate {
	return &Gate{plan: plan, cells: cells, toolProviders: toolProviders, policy: policy}
}

// Wait blocks pkgName's caller until every dependency (library or tool)
// whose consuming-component set intersects required has either reached
// libReady=true or is a core package/executable. It fails fast against
// an already-resolved-false dependency before blocking on any other.
func (g *Gate) Wait(ctx context.Context, pkgName string, required domain.ComponentSet) error {
	spec, ok := g.plan.Packages[pkgName]
	if !ok {
		return zerr.With(domain.ErrMissingDependency, "package", pkgName)
	}

	pending, err := g.checkPackageDeps(pkgName, spec, required)
	if err != nil {
		return err
	}
	toolPending, err := g.checkToolDeps(pkgName, spec, required)
	if err != nil {
		return err
	}
	if cabalWait, ok := g.implicitCabalDep(pkgName); ok {
		if cabalWait.cell.LibReady.IsSet() {
			if ready, _ := cabalWait.cell.LibReady.Wait(context.Background()); !ready {
				return zerr.With(zerr.With(domain.ErrDependencyFailed, "package", pkgName), "dependency", cabalWait.name)
			}
		} else {
			pending = append(pending, cabalWait)
		}
	}
	return g.waitAll(ctx, pkgName, append(pending, toolPending...))
}

// checkPackageDeps makes the non-blocking fail-fast pass against every
// already-resolved dependency and returns the cells still pending a
// blocking wait.
func (g *Gate) checkPackageDeps(pkgName string, spec *domain.PackageSpec, required domain.ComponentSet) ([]depWait, error) {
	var pending []depWait
	for _, dep := range spec.Deps {
		if !dep.Consuming.Intersects(required) {
			continue
		}
		if g.plan.CorePackages[dep.Package] {
			continue
		}
		if dep.Package == pkgName {
			// A package depending on itself is legal; it has nothing to
			// wait on since its own LibReady latch is what this very
			// build is working towards.
			continue
		}
		cell, ok := g.cells[dep.Package]
		if !ok {
			return nil, zerr.With(zerr.With(domain.ErrDependencyMissing, "package", pkgName), "dependency", dep.Package)
		}
		if cell.LibReady.IsSet() {
			ready, _ := cell.LibReady.Wait(context.Background())
			if !ready {
				return nil, zerr.With(zerr.With(domain.ErrDependencyFailed, "package", pkgName), "dependency", dep.Package)
			}
			continue
		}
		pending = append(pending, depWait{name: dep.Package, cell: cell})
	}
	return pending, nil
}

func (g *Gate) checkToolDeps(pkgName string, spec *domain.PackageSpec, required domain.ComponentSet) ([]depWait, error) {
	var pending []depWait
	for _, td := range spec.ToolDeps {
		if !td.Consuming.Intersects(required) {
			continue
		}

		providers := g.resolveProviders(td.Name)
		if len(providers) == 0 {
			if g.plan.CoreExecutables[td.Name] {
				continue
			}
			if g.policy == PolicyFail {
				return nil, zerr.With(zerr.With(domain.ErrToolMissing, "package", pkgName), "tool", td.Name)
			}
			continue
		}

		for _, provider := range providers {
			if g.plan.CorePackages[provider] {
				continue
			}
			if provider == pkgName {
				continue
			}
			cell, ok := g.cells[provider]
			if !ok {
				continue
			}
			if cell.LibReady.IsSet() {
				ready, _ := cell.LibReady.Wait(context.Background())
				if !ready {
					return nil, zerr.With(zerr.With(domain.ErrDependencyFailed, "package", pkgName), "dependency", provider)
				}
				continue
			}
			pending = append(pending, depWait{name: provider, cell: cell})
		}
	}
	return pending, nil
}

func (g *Gate) waitAll(ctx context.Context, pkgName string, pending []depWait) error {
	for _, p := range pending {
		ready, err := p.cell.LibReady.Wait(ctx)
		if err != nil {
			return err
		}
		if !ready {
			return zerr.With(zerr.With(domain.ErrDependencyFailed, "package", pkgName), "dependency", p.name)
		}
	}
	return nil
}

// implicitCabalDep reports the wait needed for the Cabal library, which
// every non-Cabal package depends on regardless of its declared
// dependency list. Cabal itself and a plan lacking a Cabal entry (core
// install, not built by this run) have nothing to wait on.
func (g *Gate) implicitCabalDep(pkgName string) (depWait, bool) {
	if pkgName == domain.CabalPackageName || g.plan.CorePackages[domain.CabalPackageName] {
		return depWait{}, false
	}
	cell, ok := g.cells[domain.CabalPackageName]
	if !ok {
		return depWait{}, false
	}
	return depWait{name: domain.CabalPackageName, cell: cell}, true
}

// resolveProviders returns the packages that satisfy a tool name,
// consulting the plan's override map first.
func (g *Gate) resolveProviders(tool string) []string {
	if override, ok := g.plan.ToolOverrides[tool]; ok {
		return []string{override}
	}
	return g.toolProviders[tool]
}

type depWait struct {
	name string
	cell *domain.PackageCell
}
