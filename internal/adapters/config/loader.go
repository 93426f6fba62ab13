// Package config provides the plan-file loader for keel.
package config

import (
	"os"
	"slices"

	"go.keelbuild.dev/keel/internal/core/domain"
	"go.keelbuild.dev/keel/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// Loader implements ports.ConfigLoader using a YAML plan file.
type Loader struct {
	log ports.Logger
}

// NewLoader creates a plan-file Loader.
func NewLoader(log ports.Logger) *Loader {
	return &Loader{log: log}
}

// Load reads the plan file at path and returns the validated plan.
func (l *Loader) Load(path string) (*domain.Plan, error) {
	return Load(path)
}

// Load reads a plan file from the given path and returns a validated
// domain.Plan.
func Load(path string) (*domain.Plan, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is provided by caller
	if err != nil {
		return nil, zerr.Wrap(err, "failed to read plan file")
	}

	var dto PlanDTO
	if err := yaml.Unmarshal(data, &dto); err != nil {
		return nil, zerr.Wrap(err, "failed to parse plan file")
	}

	plan := domain.NewPlan()
	for _, name := range dto.CorePackages {
		plan.CorePackages[name] = true
	}
	for _, name := range dto.CoreExecutables {
		plan.CoreExecutables[name] = true
	}
	for k, v := range dto.ToolOverrides {
		plan.ToolOverrides[k] = v
	}

	for name, pkg := range dto.Packages {
		spec, err := translatePackage(name, pkg)
		if err != nil {
			return nil, err
		}
		if err := plan.AddPackage(spec); err != nil {
			return nil, err
		}
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}

	return plan, nil
}

func translatePackage(name string, dto PackageDTO) (*domain.PackageSpec, error) {
	components, err := componentSetFromStrings(dto.Components)
	if err != nil {
		return nil, zerr.With(err, "package", name)
	}

	deps := make([]domain.Dependency, len(dto.Deps))
	for i, d := range dto.Deps {
		consuming, err := componentSetFromStrings(d.Consuming)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "package", name), "dep", d.Package)
		}
		deps[i] = domain.Dependency{Package: d.Package, Consuming: consuming}
	}

	toolDeps := make([]domain.ToolDependency, len(dto.ToolDeps))
	for i, d := range dto.ToolDeps {
		consuming, err := componentSetFromStrings(d.Consuming)
		if err != nil {
			return nil, zerr.With(zerr.With(err, "package", name), "tool", d.Name)
		}
		toolDeps[i] = domain.ToolDependency{Name: d.Name, Consuming: consuming}
	}

	constraints, err := translateConstraints(dto.Constraints)
	if err != nil {
		return nil, zerr.With(err, "package", name)
	}

	return &domain.PackageSpec{
		ID:          domain.PackageID{Name: name, Version: dto.Version},
		Modules:     canonicalizeModules(dto.Modules),
		Components:  components,
		Deps:        deps,
		ToolDeps:    toolDeps,
		Constraints: constraints,
		SourceURL:   dto.SourceURL,
		TestSuites:  dto.TestSuites,
		Benchmarks:  dto.Benchmarks,
	}, nil
}

func translateConstraints(dto ConstraintsDTO) (domain.Constraints, error) {
	haddocks, err := testStateFromString(dto.Haddocks)
	if err != nil {
		return domain.Constraints{}, err
	}
	tests, err := testStateFromString(dto.Tests)
	if err != nil {
		return domain.Constraints{}, err
	}
	benches, err := testStateFromString(dto.Benches)
	if err != nil {
		return domain.Constraints{}, err
	}

	return domain.Constraints{
		FlagOverrides:    dto.FlagOverrides,
		ConfigureArgs:    dto.ConfigureArgs,
		SkipBuild:        dto.SkipBuild,
		Haddocks:         haddocks,
		Tests:            tests,
		Benches:          benches,
		EnableLibProfile: dto.EnableLibProfile,
	}, nil
}

func componentSetFromStrings(names []string) (domain.ComponentSet, error) {
	set := make(domain.ComponentSet, len(names))
	for _, n := range names {
		c, err := componentFromString(n)
		if err != nil {
			return nil, err
		}
		set[c] = true
	}
	return set, nil
}

func componentFromString(s string) (domain.Component, error) {
	switch s {
	case "library":
		return domain.Library, nil
	case "executable":
		return domain.Executable, nil
	case "test-suite":
		return domain.TestSuite, nil
	case "benchmark":
		return domain.Benchmark, nil
	default:
		return 0, zerr.With(zerr.New("unknown component"), "component", s)
	}
}

func testStateFromString(s string) (domain.TestState, error) {
	switch s {
	case "", "dont-build":
		return domain.DontBuild, nil
	case "expect-success":
		return domain.ExpectSuccess, nil
	case "expect-failure":
		return domain.ExpectFailure, nil
	default:
		return 0, zerr.With(zerr.New("unknown test state"), "test_state", s)
	}
}

func canonicalizeModules(modules []string) []string {
	if len(modules) == 0 {
		return nil
	}
	sorted := make([]string, len(modules))
	copy(sorted, modules)
	slices.Sort(sorted)
	return slices.Compact(sorted)
}
