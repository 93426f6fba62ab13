package commands

import (
	"github.com/spf13/cobra"
	"go.keelbuild.dev/keel/internal/app"
	"go.keelbuild.dev/keel/internal/engine/gate"
)

func (c *CLI) newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <plan-file> [targets...]",
		Short: "Build a plan, or just the named targets and their dependencies",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := runOptionsFromFlags(cmd)
			if err != nil {
				return err
			}
			if len(args) > 1 {
				opts.Targets = args[1:]
			}
			warnings, err := c.app.Run(cmd.Context(), args[0], opts)
			for _, w := range warnings {
				cmd.PrintErrln("warning:", w)
			}
			return err
		},
	}

	cmd.Flags().String("install-dest", "_keel-install", "Root of the installed tree")
	cmd.Flags().String("log-dir", "", "Per-stage log directory (defaults under install-dest)")
	cmd.Flags().IntP("jobs", "j", 1, "Maximum number of concurrently running external processes")
	cmd.Flags().Bool("local-db", false, "Use a sandbox-local package database instead of the global one")
	cmd.Flags().Bool("no-haddock", false, "Skip the haddock documentation stage")
	cmd.Flags().Bool("no-tests", false, "Skip the test-suite stage")
	cmd.Flags().Bool("no-benches", false, "Skip the benchmark stage")
	cmd.Flags().Bool("allow-newer", false, "Relax every dependency version bound during unpack")
	cmd.Flags().Bool("build-hoogle", false, "Generate a Hoogle text index alongside haddock output")
	cmd.Flags().Bool("no-rebuild-cabal", false, "Never rebuild the Cabal library itself")
	cmd.Flags().Bool("cabal-from-head", false, "Build Cabal from a git clone of its upstream HEAD")
	cmd.Flags().BoolP("no-cache", "n", false, "Bypass the result ledger and force every stage to re-execute")
	cmd.Flags().BoolP("verbose", "v", false, "Verbose toolchain output")
	cmd.Flags().Bool("fail-on-missing-tool", false, "Fail a package whose declared tool dependency has no provider")

	return cmd
}

func runOptionsFromFlags(cmd *cobra.Command) (app.RunOptions, error) {
	installDest, err := cmd.Flags().GetString("install-dest")
	if err != nil {
		return app.RunOptions{}, err
	}
	logDir, err := cmd.Flags().GetString("log-dir")
	if err != nil {
		return app.RunOptions{}, err
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return app.RunOptions{}, err
	}
	localDB, err := cmd.Flags().GetBool("local-db")
	if err != nil {
		return app.RunOptions{}, err
	}
	noHaddock, err := cmd.Flags().GetBool("no-haddock")
	if err != nil {
		return app.RunOptions{}, err
	}
	noTests, err := cmd.Flags().GetBool("no-tests")
	if err != nil {
		return app.RunOptions{}, err
	}
	noBenches, err := cmd.Flags().GetBool("no-benches")
	if err != nil {
		return app.RunOptions{}, err
	}
	allowNewer, err := cmd.Flags().GetBool("allow-newer")
	if err != nil {
		return app.RunOptions{}, err
	}
	buildHoogle, err := cmd.Flags().GetBool("build-hoogle")
	if err != nil {
		return app.RunOptions{}, err
	}
	noRebuildCabal, err := cmd.Flags().GetBool("no-rebuild-cabal")
	if err != nil {
		return app.RunOptions{}, err
	}
	cabalFromHead, err := cmd.Flags().GetBool("cabal-from-head")
	if err != nil {
		return app.RunOptions{}, err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return app.RunOptions{}, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return app.RunOptions{}, err
	}
	failOnMissingTool, err := cmd.Flags().GetBool("fail-on-missing-tool")
	if err != nil {
		return app.RunOptions{}, err
	}

	policy := gate.PolicySilence
	if failOnMissingTool {
		policy = gate.PolicyFail
	}

	return app.RunOptions{
		InstallDest:    installDest,
		LogDir:         logDir,
		Jobs:           jobs,
		LocalDB:        localDB,
		NoHaddock:      noHaddock,
		NoTests:        noTests,
		NoBenches:      noBenches,
		AllowNewer:     allowNewer,
		BuildHoogle:    buildHoogle,
		NoRebuildCabal: noRebuildCabal,
		CabalFromHead:  cabalFromHead,
		Verbose:        verbose,
		NoCache:        noCache,
		ToolMissing:    policy,
	}, nil
}
