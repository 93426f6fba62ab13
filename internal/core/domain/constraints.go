package domain

// Constraints carries the per-package overrides a build plan may
// declare on top of a package's own description.
type Constraints struct {
	FlagOverrides    map[string]bool
	ConfigureArgs    []string
	SkipBuild        bool
	Haddocks         TestState
	Tests            TestState
	Benches          TestState
	EnableLibProfile bool
}
