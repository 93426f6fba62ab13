package gate_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.keelbuild.dev/keel/internal/core/domain"
	"go.keelbuild.dev/keel/internal/engine/gate"
)

func libDep(pkg string) domain.Dependency {
	return domain.Dependency{Package: pkg, Consuming: domain.NewComponentSet(domain.Library)}
}

func newCells(names ...string) map[string]*domain.PackageCell {
	cells := make(map[string]*domain.PackageCell, len(names))
	for _, n := range names {
		cells[n] = domain.NewPackageCell(&domain.PackageSpec{ID: domain.PackageID{Name: n}})
	}
	return cells
}

func buildPlan(t *testing.T, specs ...*domain.PackageSpec) *domain.Plan {
	t.Helper()
	p := domain.NewPlan()
	for _, s := range specs {
		require.NoError(t, p.AddPackage(s))
	}
	return p
}

func TestGate_Wait_ReturnsImmediatelyWhenDepAlreadyReady(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "b"}, Deps: []domain.Dependency{libDep("a")}},
	)
	cells := newCells("a", "b")
	cells["a"].LibReady.Set(true)

	g := gate.New(p, cells, nil, gate.PolicySilence)
	err := g.Wait(context.Background(), "b", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_FailsFastOnAlreadyFailedDependency(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "b"}, Deps: []domain.Dependency{libDep("a")}},
	)
	cells := newCells("a", "b")
	cells["a"].LibReady.Set(false)

	g := gate.New(p, cells, nil, gate.PolicySilence)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, "b", domain.NewComponentSet(domain.Library))
	assert.Error(t, err)
}

func TestGate_Wait_BlocksUntilDependencyResolves(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "b"}, Deps: []domain.Dependency{libDep("a")}},
	)
	cells := newCells("a", "b")

	g := gate.New(p, cells, nil, gate.PolicySilence)
	done := make(chan error, 1)
	go func() {
		done <- g.Wait(context.Background(), "b", domain.NewComponentSet(domain.Library))
	}()

	select {
	case <-done:
		t.Fatal("Wait returned before dependency was set")
	case <-time.After(20 * time.Millisecond):
	}

	cells["a"].LibReady.Set(true)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Wait did not return after dependency was set")
	}
}

func TestGate_Wait_IgnoresDependencyNotConsumedByRequiredComponents(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}},
		&domain.PackageSpec{
			ID: domain.PackageID{Name: "b"},
			Deps: []domain.Dependency{
				{Package: "a", Consuming: domain.NewComponentSet(domain.TestSuite)},
			},
		},
	)
	cells := newCells("a", "b")

	g := gate.New(p, cells, nil, gate.PolicySilence)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, "b", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_SkipsCorePackageDependency(t *testing.T) {
	p := domain.NewPlan()
	p.CorePackages["base"] = true
	require.NoError(t, p.AddPackage(&domain.PackageSpec{
		ID:   domain.PackageID{Name: "b"},
		Deps: []domain.Dependency{libDep("base")},
	}))
	cells := newCells("b")

	g := gate.New(p, cells, nil, gate.PolicySilence)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, "b", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_ToolDependencyResolvesThroughProvider(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "happy"}},
		&domain.PackageSpec{
			ID: domain.PackageID{Name: "b"},
			ToolDeps: []domain.ToolDependency{
				{Name: "happy", Consuming: domain.NewComponentSet(domain.Library)},
			},
		},
	)
	cells := newCells("happy", "b")
	cells["happy"].LibReady.Set(true)

	g := gate.New(p, cells, map[string][]string{"happy": {"happy"}}, gate.PolicySilence)
	err := g.Wait(context.Background(), "b", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_MissingToolWithPolicyFailIsError(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{
			ID: domain.PackageID{Name: "b"},
			ToolDeps: []domain.ToolDependency{
				{Name: "ghost", Consuming: domain.NewComponentSet(domain.Library)},
			},
		},
	)
	cells := newCells("b")

	g := gate.New(p, cells, nil, gate.PolicyFail)
	err := g.Wait(context.Background(), "b", domain.NewComponentSet(domain.Library))
	assert.Error(t, err)
}

func TestGate_Wait_MissingToolWithPolicySilenceIsTolerated(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{
			ID: domain.PackageID{Name: "b"},
			ToolDeps: []domain.ToolDependency{
				{Name: "ghost", Consuming: domain.NewComponentSet(domain.Library)},
			},
		},
	)
	cells := newCells("b")

	g := gate.New(p, cells, nil, gate.PolicySilence)
	err := g.Wait(context.Background(), "b", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_ToolOverrideTakesPrecedence(t *testing.T) {
	p := domain.NewPlan()
	p.ToolOverrides["happy"] = "custom-happy"
	require.NoError(t, p.AddPackage(&domain.PackageSpec{ID: domain.PackageID{Name: "custom-happy"}}))
	require.NoError(t, p.AddPackage(&domain.PackageSpec{
		ID: domain.PackageID{Name: "b"},
		ToolDeps: []domain.ToolDependency{
			{Name: "happy", Consuming: domain.NewComponentSet(domain.Library)},
		},
	}))
	cells := newCells("custom-happy", "b")
	cells["custom-happy"].LibReady.Set(true)

	g := gate.New(p, cells, map[string][]string{"happy": {"happy"}}, gate.PolicySilence)
	err := g.Wait(context.Background(), "b", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_ImplicitCabalDependencyIsWaitedOn(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: domain.CabalPackageName}},
		&domain.PackageSpec{ID: domain.PackageID{Name: "b"}},
	)
	cells := newCells(domain.CabalPackageName, "b")
	cells[domain.CabalPackageName].LibReady.Set(false)

	g := gate.New(p, cells, nil, gate.PolicySilence)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, "b", domain.NewComponentSet(domain.Library))
	assert.Error(t, err)
}

func TestGate_Wait_CabalItselfHasNoImplicitSelfDependency(t *testing.T) {
	p := buildPlan(t, &domain.PackageSpec{ID: domain.PackageID{Name: domain.CabalPackageName}})
	cells := newCells(domain.CabalPackageName)

	g := gate.New(p, cells, nil, gate.PolicySilence)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, domain.CabalPackageName, domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_SelfDependencyDoesNotBlock(t *testing.T) {
	p := buildPlan(t,
		&domain.PackageSpec{ID: domain.PackageID{Name: "a"}, Deps: []domain.Dependency{libDep("a")}},
	)
	cells := newCells("a")

	g := gate.New(p, cells, nil, gate.PolicySilence)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := g.Wait(ctx, "a", domain.NewComponentSet(domain.Library))
	assert.NoError(t, err)
}

func TestGate_Wait_UnknownPackageIsError(t *testing.T) {
	p := domain.NewPlan()
	g := gate.New(p, newCells(), nil, gate.PolicySilence)
	err := g.Wait(context.Background(), "ghost", domain.NewComponentSet(domain.Library))
	assert.Error(t, err)
}
