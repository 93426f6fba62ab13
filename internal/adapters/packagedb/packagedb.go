// Package packagedb manages the installed binary package database.
package packagedb

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.keelbuild.dev/keel/internal/core/ports"
	"go.trai.ch/zerr"
)

const dbTool = "ghc-pkg"

// DB implements ports.PackageDB by shelling out to the package-DB CLI
// tool and caching the enumeration result by a fingerprint of the
// database file's mtime and size.
type DB struct {
	dbPath      string
	toolchain   ports.Toolchain
	workDir     string
	mu          sync.Mutex
	fingerprint uint64
	cached      map[string]bool
}

// New creates a DB rooted at dbPath (the directory containing
// package.cache), driving the toolchain's package-DB tool through tc.
func New(dbPath string, tc ports.Toolchain) *DB {
	return &DB{dbPath: dbPath, toolchain: tc, workDir: filepath.Dir(dbPath)}
}

// Ensure initialises the database if package.cache does not exist.
func (d *DB) Ensure(ctx context.Context) error {
	cachePath := filepath.Join(d.dbPath, "package.cache")
	if _, err := os.Stat(cachePath); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return zerr.Wrap(err, "failed to stat package db")
	}

	if err := os.MkdirAll(d.dbPath, 0o750); err != nil {
		return zerr.Wrap(err, "failed to create package db directory")
	}

	return d.toolchain.Run(ctx, ports.Invocation{
		Dir:  d.workDir,
		Argv: []string{dbTool, "init", d.dbPath},
	})
}

// Registered enumerates the names of already-registered packages,
// skipping the subprocess when the database file is unchanged since
// the last call.
func (d *DB) Registered(ctx context.Context) (map[string]bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	fp, err := d.fileFingerprint()
	if err == nil && d.cached != nil && fp == d.fingerprint {
		return d.cached, nil
	}

	// Output must be captured for parsing, so this goes straight through
	// os/exec rather than ports.Toolchain, which is built to stream
	// output to a log file and a progrock vertex rather than return it.
	//nolint:gosec // argv is fixed plus a driver-controlled path, not user input
	cmd := exec.CommandContext(ctx, dbTool, "--package-db="+d.dbPath, "list", "--simple-output")
	cmd.Dir = d.workDir
	out, err := cmd.Output()
	if err != nil {
		return nil, zerr.Wrap(err, "failed to enumerate registered packages")
	}

	names := make(map[string]bool)
	for _, field := range strings.Fields(string(out)) {
		names[stripVersion(field)] = true
	}

	d.cached = names
	d.fingerprint = fp
	return names, nil
}

func (d *DB) fileFingerprint() (uint64, error) {
	info, err := os.Stat(filepath.Join(d.dbPath, "package.cache"))
	if err != nil {
		return 0, err
	}
	h := xxhash.New()
	_, _ = h.WriteString(info.Name())
	_, _ = h.Write([]byte(info.ModTime().String()))
	var sizeBuf [8]byte
	size := info.Size()
	for i := range sizeBuf {
		sizeBuf[i] = byte(size >> (8 * i))
	}
	_, _ = h.Write(sizeBuf[:])
	return h.Sum64(), nil
}

// stripVersion trims a "name-version" package identifier down to its
// name, matching the simple-output format of the package-DB listing.
func stripVersion(nameVersion string) string {
	idx := strings.LastIndex(nameVersion, "-")
	if idx < 0 {
		return nameVersion
	}
	return nameVersion[:idx]
}
