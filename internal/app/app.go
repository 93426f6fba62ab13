// Package app wires the plan loader, toolchain, and build driver into
// the operations the CLI exposes: running a plan to completion and
// printing its resolved execution order.
package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.keelbuild.dev/keel/internal/adapters/ledger"
	"go.keelbuild.dev/keel/internal/adapters/packagedb"
	"go.keelbuild.dev/keel/internal/core/domain"
	"go.keelbuild.dev/keel/internal/core/ports"
	"go.keelbuild.dev/keel/internal/engine/driver"
	"go.keelbuild.dev/keel/internal/engine/gate"
	"go.trai.ch/zerr"
)

// defaultEnvDenyList names environment variables never forwarded to
// child processes unless the caller overrides it.
var defaultEnvDenyList = []string{"HACKAGE_API_KEY", "GITHUB_TOKEN"}

// App is the application-layer entry point the CLI drives: it turns a
// plan file path and a set of run options into a completed build.
type App struct {
	loader    ports.ConfigLoader
	toolchain ports.Toolchain
	telemetry ports.Telemetry
	logger    ports.Logger
	haddock   ports.HaddockStore
}

// New creates an App from its ambient, zero-run-parameter collaborators.
func New(loader ports.ConfigLoader, toolchain ports.Toolchain, telemetry ports.Telemetry, logger ports.Logger, haddock ports.HaddockStore) *App {
	return &App{
		loader:    loader,
		toolchain: toolchain,
		telemetry: telemetry,
		logger:    logger,
		haddock:   haddock,
	}
}

// RunOptions carries the per-invocation configuration a `keel run`
// maps onto driver.PerformBuildConfig.
type RunOptions struct {
	InstallDest string
	LogDir      string
	Jobs        int
	LocalDB     bool

	NoHaddock      bool
	NoTests        bool
	NoBenches      bool
	AllowNewer     bool
	BuildHoogle    bool
	NoRebuildCabal bool
	CabalFromHead  bool
	Verbose        bool
	NoCache        bool

	BundledDocsDir string
	EnvDenyList    []string
	ToolMissing    gate.ToolMissingPolicy

	// Targets restricts the build to these packages and everything
	// they transitively depend on. Nil builds the entire plan; a
	// non-nil, empty slice is rejected as a caller error.
	Targets []string
}

// Run loads the plan at planPath and drives it to completion,
// returning the aggregated warnings or the driver's BuildException.
func (a *App) Run(ctx context.Context, planPath string, opts RunOptions) ([]string, error) {
	plan, err := a.loader.Load(planPath)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to load plan")
	}

	if opts.Targets != nil {
		sub, err := plan.Closure(opts.Targets)
		if err != nil {
			return nil, zerr.Wrap(err, "failed to resolve target closure")
		}
		if err := sub.Validate(); err != nil {
			return nil, zerr.Wrap(err, "failed to validate target closure")
		}
		plan = sub
	}

	installDest, err := filepath.Abs(opts.InstallDest)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve install destination")
	}
	logDir := opts.LogDir
	if logDir == "" {
		logDir = filepath.Join(installDest, "logs")
	}

	dbDir := filepath.Join(installDest, "pkgdb")
	db := packagedb.New(dbDir, a.toolchain)
	ldgr := ledger.New(filepath.Join(installDest, "prevres"))

	denyList := opts.EnvDenyList
	if denyList == nil {
		denyList = defaultEnvDenyList
	}

	cfg := driver.PerformBuildConfig{
		InstallDest:       installDest,
		LogDir:            logDir,
		Jobs:              opts.Jobs,
		LocalDB:           opts.LocalDB,
		BundledDocsDir:    opts.BundledDocsDir,
		EnableHaddock:     !opts.NoHaddock,
		EnableTests:       !opts.NoTests,
		EnableBenches:     !opts.NoBenches,
		AllowNewer:        opts.AllowNewer,
		BuildHoogle:       opts.BuildHoogle,
		NoRebuildCabal:    opts.NoRebuildCabal,
		CabalFromHead:     opts.CabalFromHead,
		Verbose:           opts.Verbose,
		NoCache:           opts.NoCache,
		ToolMissingPolicy: opts.ToolMissing,
		EnvDenyList:       denyList,
		Toolchain:         a.toolchain,
		PackageDB:         db,
		Ledger:            ldgr,
		Haddock:           a.haddock,
		Telemetry:         a.telemetry,
		Logger:            a.logger,
	}

	if opts.Jobs <= 0 {
		cfg.Jobs = 1
	}

	warnings, err := driver.New(plan, cfg).Run(ctx)
	if err != nil {
		return warnings, err
	}
	return warnings, nil
}

// Plan loads planPath and renders its resolved library/executable
// execution order without running anything, for `keel plan`.
func (a *App) Plan(_ context.Context, planPath string) (string, error) {
	plan, err := a.loader.Load(planPath)
	if err != nil {
		return "", zerr.Wrap(err, "failed to load plan")
	}

	var b strings.Builder
	for i, name := range plan.Order() {
		spec := plan.Packages[name]
		fmt.Fprintf(&b, "%3d. %s\n", i+1, domain.PackageID{Name: name, Version: spec.ID.Version}.String())
		for _, dep := range spec.Deps {
			if plan.CorePackages[dep.Package] {
				continue
			}
			fmt.Fprintf(&b, "       depends on %s\n", dep.Package)
		}
	}
	return b.String(), nil
}
