package main

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func withArgs(t *testing.T, args []string, fn func()) {
	t.Helper()
	original := os.Args
	os.Args = args
	defer func() { os.Args = original }()
	fn()
}

func TestRun_NoSubcommandPrintsHelp(t *testing.T) {
	withArgs(t, []string{"keel"}, func() {
		exitCode := run()
		assert.Equal(t, 0, exitCode)
	})
}

func TestRun_MissingPlanFileFails(t *testing.T) {
	tmpDir := t.TempDir()
	withArgs(t, []string{"keel", "run", tmpDir + "/does-not-exist.yaml"}, func() {
		exitCode := run()
		assert.Equal(t, 1, exitCode)
	})
}

func TestRun_PlanCommandMissingFileFails(t *testing.T) {
	tmpDir := t.TempDir()
	withArgs(t, []string{"keel", "plan", tmpDir + "/does-not-exist.yaml"}, func() {
		exitCode := run()
		assert.Equal(t, 1, exitCode)
	})
}
