// Package toolchain drives the external compiler/package-manager tooling.
package toolchain

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"go.keelbuild.dev/keel/internal/core/ports"
	"go.trai.ch/zerr"
)

// Toolchain implements ports.Toolchain using os/exec.
type Toolchain struct {
	log ports.Logger
}

// New creates a new Toolchain.
func New(log ports.Logger) *Toolchain {
	return &Toolchain{log: log}
}

// Run executes the invocation and tees combined stdout/stderr to
// inv.LogPath and the invocation's progrock vertex, if any. inv.Env,
// when set, is used as the process's complete environment as-is (the
// driver builds it once per run, already deny-listed and layered with
// the hermetic PATH/sandbox overlay); an empty inv.Env falls back to
// this process's own environment, for invocations with nothing to
// isolate.
func (t *Toolchain) Run(ctx context.Context, inv ports.Invocation) error {
	if len(inv.Argv) == 0 {
		return nil
	}

	name := inv.Argv[0]
	args := inv.Argv[1:]

	cmdEnv := inv.Env
	if len(cmdEnv) == 0 {
		cmdEnv = os.Environ()
	}

	executable := name
	if !filepath.IsAbs(name) {
		if lp, err := lookPath(name, cmdEnv); err == nil {
			executable = lp
		}
	}

	cmd := exec.CommandContext(ctx, executable, args...) //nolint:gosec // argv is builder-constructed, not user shell input
	if len(cmd.Args) > 0 {
		cmd.Args[0] = name
	}
	cmd.Dir = inv.Dir
	cmd.Env = cmdEnv

	w, closeLog, err := newTeeWriter(ctx, inv.LogPath, t.log)
	if err != nil {
		return err
	}
	defer closeLog()

	fmt.Fprintf(w, "+ %s\n", quoteArgv(inv.Argv))
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Run(); err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		wrapped := zerr.Wrap(err, "process failed")
		wrapped = zerr.With(wrapped, "argv", inv.Argv)
		return zerr.With(wrapped, "exit_code", exitCode)
	}

	return nil
}

// teeWriter fans a process's combined output out to a lazily-opened log
// file and the current progrock vertex's stdout, line-splitting so the
// logger (when used as a fallback) receives whole lines.
type teeWriter struct {
	mu      sync.Mutex
	logPath string
	file    *os.File
	vertex  ports.Vertex
	log     ports.Logger
}

func newTeeWriter(ctx context.Context, logPath string, log ports.Logger) (io.Writer, func(), error) {
	vertex, _ := ports.VertexFromContext(ctx)
	tw := &teeWriter{logPath: logPath, vertex: vertex, log: log}
	return tw, tw.close, nil
}

func (w *teeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.logPath != "" && w.file == nil {
		if err := os.MkdirAll(filepath.Dir(w.logPath), 0o750); err != nil {
			return 0, err
		}
		f, err := os.OpenFile(w.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // log path is driver-controlled
		if err != nil {
			return 0, err
		}
		w.file = f
	}

	if w.file != nil {
		if _, err := w.file.Write(p); err != nil {
			return 0, err
		}
	}

	if w.vertex != nil {
		_, _ = w.vertex.Stdout().Write(p)
	} else if w.log != nil {
		for _, line := range strings.Split(strings.TrimSuffix(string(p), "\n"), "\n") {
			if line != "" {
				w.log.Info(line)
			}
		}
	}

	return len(p), nil
}

func (w *teeWriter) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file != nil {
		_ = w.file.Close()
	}
}

func quoteArgv(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if strings.ContainsAny(a, " \t\"'") {
			parts[i] = fmt.Sprintf("%q", a)
		} else {
			parts[i] = a
		}
	}
	return strings.Join(parts, " ")
}

func lookPath(file string, env []string) (string, error) {
	var path string
	for _, e := range env {
		if strings.HasPrefix(strings.ToUpper(e), "PATH=") {
			path = e[len("PATH="):]
			break
		}
	}
	if path == "" {
		return "", exec.ErrNotFound
	}

	for _, dir := range filepath.SplitList(path) {
		if dir == "" {
			dir = "."
		}
		candidate := filepath.Join(dir, file)
		if err := findExecutable(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", exec.ErrNotFound
}

func findExecutable(file string) error {
	d, err := os.Stat(file)
	if err != nil {
		return err
	}
	if m := d.Mode(); !m.IsDir() && m&0o111 != 0 {
		return nil
	}
	return os.ErrPermission
}
