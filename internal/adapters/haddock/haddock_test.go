package haddock_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keelbuild.dev/keel/internal/adapters/haddock"
	"go.keelbuild.dev/keel/internal/core/domain"
)

func libDep(pkg string) domain.Dependency {
	return domain.Dependency{Package: pkg, Consuming: domain.NewComponentSet(domain.Library)}
}

func buildPlan(t *testing.T, specs ...*domain.PackageSpec) *domain.Plan {
	t.Helper()
	p := domain.NewPlan()
	for _, s := range specs {
		require.NoError(t, p.AddPackage(s))
	}
	return p
}

func TestStore_RecordAndInterfaces(t *testing.T) {
	s := haddock.New()
	id := domain.PackageID{Name: "base", Version: "4.18.0"}
	s.RecordInterface(id, "/install/doc/base-4.18.0/base.haddock")

	snap := s.Interfaces()
	assert.Equal(t, "/install/doc/base-4.18.0/base.haddock", snap["base-4.18.0"])
}

func TestStore_Closure_TransitiveLibraryDeps(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}, Deps: nil},
		&domain.PackageSpec{ID: domain.PackageID{Name: "b"}, Deps: []domain.Dependency{libDep("a")}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "c"}, Deps: []domain.Dependency{libDep("b")}},
	)

	s := haddock.New()
	closure := s.Closure(p, "c")

	assert.True(t, closure["a"])
	assert.True(t, closure["b"])
	assert.False(t, closure["c"])
}

func TestStore_Closure_SelfDependencyTerminates(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}, Deps: []domain.Dependency{libDep("a"), libDep("base")}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "base"}},
	)

	s := haddock.New()
	closure := s.Closure(p, "a")

	assert.True(t, closure["a"])
	assert.True(t, closure["base"])
	assert.Len(t, closure, 2)
}

func TestStore_Closure_IsMemoised(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "b"}, Deps: []domain.Dependency{libDep("a")}},
	)

	s := haddock.New()
	first := s.Closure(p, "b")
	second := s.Closure(p, "b")

	assert.Equal(t, first, second)
}

func TestStore_Closure_IgnoresNonLibExecDeps(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}},
		&domain.PackageSpec{
			ID: domain.PackageID{Name: "b"},
			Deps: []domain.Dependency{
				{Package: "a", Consuming: domain.NewComponentSet(domain.TestSuite)},
			},
		},
	)

	s := haddock.New()
	closure := s.Closure(p, "b")
	assert.False(t, closure["a"])
}
