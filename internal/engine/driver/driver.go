// Package driver implements the top-level build orchestration: it
// canonicalises a run's paths, allocates the shared per-run state, fans
// out one worker per package, and aggregates the result.
package driver

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.keelbuild.dev/keel/internal/core/domain"
	"go.keelbuild.dev/keel/internal/core/ports"
	"go.keelbuild.dev/keel/internal/engine/gate"
	"go.keelbuild.dev/keel/internal/engine/governor"
	"go.keelbuild.dev/keel/internal/engine/worker"
	"go.trai.ch/zerr"
)

// PerformBuildConfig carries the inputs a single build run needs beyond
// the resolved plan itself.
type PerformBuildConfig struct {
	// InstallDest is the root of the installed tree (bin/, lib/,
	// share/, libexec/, etc/, doc/, pkgdb/, prevres/).
	InstallDest string
	// LogDir holds per-(package,stage) combined stdout/stderr logs.
	LogDir string
	// Jobs bounds the number of concurrently running external
	// processes.
	Jobs int
	// LocalDB selects a sandbox-local package database under
	// InstallDest/pkgdb rather than the compiler's global one.
	LocalDB bool
	// BundledDocsDir, if set, is copied into InstallDest/doc before any
	// worker starts (the compiler's own bundled documentation).
	BundledDocsDir string

	EnableHaddock  bool
	EnableTests    bool
	EnableBenches  bool
	AllowNewer     bool
	BuildHoogle    bool
	NoRebuildCabal bool
	CabalFromHead  bool
	Verbose        bool

	// NoCache forces every package's ledger entries to be cleared
	// before the run starts, so every stage re-executes regardless of
	// prior success.
	NoCache bool

	ToolMissingPolicy gate.ToolMissingPolicy

	// EnvDenyList names environment variables never forwarded to child
	// processes (case-insensitive), e.g. auth tokens.
	EnvDenyList []string

	// LogSink is carried in the configuration but Run does not read it:
	// stage output goes only to the toolchain's per-stage log files and
	// telemetry vertices, and nothing is written to LogSink.
	LogSink io.Writer

	Toolchain ports.Toolchain
	PackageDB ports.PackageDB
	Ledger    ports.Ledger
	Haddock   ports.HaddockStore
	Telemetry ports.Telemetry
	Logger    ports.Logger
}

// Driver runs a resolved plan to completion.
type Driver struct {
	plan *domain.Plan
	cfg  PerformBuildConfig
}

// New creates a Driver for plan under cfg.
func New(plan *domain.Plan, cfg PerformBuildConfig) *Driver {
	return &Driver{plan: plan, cfg: cfg}
}

// Run executes spec step 1-8: canonicalise paths, reset the log tree,
// initialise the package DB, spawn one worker per package, wait for
// quiescence, and aggregate errors and warnings.
func (d *Driver) Run(ctx context.Context) ([]string, error) {
	installDest, err := filepath.Abs(d.cfg.InstallDest)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to canonicalise install destination")
	}
	logDir, err := filepath.Abs(d.cfg.LogDir)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to canonicalise log directory")
	}

	if err := os.RemoveAll(logDir); err != nil {
		return nil, zerr.Wrap(err, "failed to delete log tree")
	}
	if err := os.MkdirAll(logDir, 0o750); err != nil {
		return nil, zerr.Wrap(err, "failed to recreate log tree")
	}

	if err := d.cfg.PackageDB.Ensure(ctx); err != nil {
		return nil, zerr.Wrap(err, "failed to initialise package database")
	}
	docDir := filepath.Join(installDest, "doc")
	if d.cfg.BundledDocsDir != "" {
		if err := copyTree(d.cfg.BundledDocsDir, docDir); err != nil {
			return nil, zerr.Wrap(err, "failed to copy bundled documentation")
		}
	}

	registered, err := d.cfg.PackageDB.Registered(ctx)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to enumerate registered packages")
	}

	cells := make(map[string]*domain.PackageCell, len(d.plan.Packages))
	for name, spec := range d.plan.Packages {
		cells[name] = domain.NewPackageCell(spec)
	}

	if d.cfg.NoCache {
		for _, spec := range d.plan.Packages {
			if err := d.cfg.Ledger.ClearAll(spec.ID); err != nil {
				return nil, zerr.Wrap(err, "failed to clear ledger before forced rebuild")
			}
		}
	}

	toolProviders := buildToolProviders(d.plan)
	g := gate.New(d.plan, cells, toolProviders, d.cfg.ToolMissingPolicy)
	gov := governor.New(int64(d.cfg.Jobs))

	haddockFlag := worker.ProbeHaddockFlag(ctx, d.cfg.Toolchain)

	workerCfg := worker.Config{
		BuildDir:       filepath.Join(installDest, "build"),
		InstallDir:     installDest,
		LogDir:         logDir,
		EnableHaddock:  d.cfg.EnableHaddock,
		EnableTests:    d.cfg.EnableTests,
		EnableBenches:  d.cfg.EnableBenches,
		BuildHoogle:    d.cfg.BuildHoogle,
		AllowNewer:     d.cfg.AllowNewer,
		CabalFromHead:  d.cfg.CabalFromHead,
		NoRebuildCabal: d.cfg.NoRebuildCabal,
		HaddockFlag:    haddockFlag,
		Env:            buildChildEnv(installDest, d.cfg.LocalDB, d.cfg.EnvDenyList),
	}

	var (
		mu       sync.Mutex
		failures = make(map[string]*domain.BuildFailure)
		warnings []string
		wg       sync.WaitGroup
	)

	for name, spec := range d.plan.Packages {
		wg.Add(1)
		go func(spec *domain.PackageSpec) {
			defer wg.Done()

			w := worker.New(spec, cells[spec.ID.Name], d.plan, g, gov,
				d.cfg.Toolchain, d.cfg.Ledger, d.cfg.Haddock, d.cfg.Telemetry,
				registered, workerCfg)

			taskWarnings, err := w.Run(ctx)

			mu.Lock()
			warnings = append(warnings, taskWarnings...)
			if err != nil {
				failures[spec.ID.Name] = domain.NewBuildFailure(spec.ID.Name, err)
			}
			mu.Unlock()
		}(spec)
		_ = name
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-gov.Done():
		wg.Wait()
	}

	if len(failures) > 0 {
		return warnings, zerr.With(domain.ErrBuildExecutionFailed, "failures", failureDisplay(failures))
	}
	return warnings, nil
}

func failureDisplay(failures map[string]*domain.BuildFailure) map[string]string {
	out := make(map[string]string, len(failures))
	for name, f := range failures {
		out[name] = f.Display()
	}
	return out
}

// buildToolProviders maps every declared tool name to the packages in
// the plan that provide it: a package provides the tool named after
// its own executable component, the ecosystem's standard convention
// for build-time tools like alex, happy, and hscolour.
func buildToolProviders(plan *domain.Plan) map[string][]string {
	providers := make(map[string][]string)
	for name, spec := range plan.Packages {
		if spec.Components[domain.Executable] {
			providers[name] = append(providers[name], name)
		}
	}
	return providers
}

// buildChildEnv computes the complete environment every worker's
// toolchain invocations receive: the deny-listed system environment
// with the install bin/ directory prepended onto PATH and, for a
// local-db run, HASKELL_PACKAGE_SANDBOX set. Computed once per run and
// threaded unchanged into every worker's Config.
func buildChildEnv(installDest string, localDB bool, denyList []string) []string {
	deny := make(map[string]bool, len(denyList))
	for _, name := range denyList {
		deny[strings.ToLower(name)] = true
	}

	var sysEnv []string
	for _, entry := range os.Environ() {
		key, _, ok := strings.Cut(entry, "=")
		if !ok || deny[strings.ToLower(key)] {
			continue
		}
		sysEnv = append(sysEnv, entry)
	}

	overlay := []string{"PATH=" + filepath.Join(installDest, "bin")}
	if localDB {
		overlay = append(overlay, "HASKELL_PACKAGE_SANDBOX="+filepath.Join(installDest, "pkgdb"))
	}

	return resolveEnvironment(sysEnv, overlay)
}

// resolveEnvironment layers overlay onto sysEnv. PATH entries from
// overlay are prepended to the system PATH rather than replacing it;
// the match on the PATH key is case-insensitive to mirror Windows
// environment semantics.
func resolveEnvironment(sysEnv, overlay []string) []string {
	envMap := make(map[string]string)
	keys := make(map[string]string) // lower(key) -> original-case key

	set := func(k, v string) {
		lk := strings.ToLower(k)
		if orig, ok := keys[lk]; ok {
			k = orig
		} else {
			keys[lk] = k
		}
		envMap[k] = v
	}

	for _, entry := range sysEnv {
		if k, v, ok := strings.Cut(entry, "="); ok {
			set(k, v)
		}
	}

	for _, entry := range overlay {
		k, v, ok := strings.Cut(entry, "=")
		if !ok {
			continue
		}
		if strings.EqualFold(k, "PATH") {
			if existing, ok := envMap[keys[strings.ToLower(k)]]; ok && existing != "" {
				v = v + string(os.PathListSeparator) + existing
			}
		}
		set(k, v)
	}

	result := make([]string, 0, len(envMap))
	for k, v := range envMap {
		result = append(result, k+"="+v)
	}
	return result
}

func copyTree(src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0o750)
		}
		data, err := os.ReadFile(path) //nolint:gosec // copying a trusted, driver-configured doc tree
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644) //nolint:gosec // installed documentation, not a secret
	})
}
