// Package ledger implements the crash-resumable per-(stage,package)
// result store.
package ledger

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"go.keelbuild.dev/keel/internal/core/domain"
	"go.trai.ch/zerr"
)

// Ledger implements ports.Ledger using one file per (stage, package)
// under root, body literally "success" or "failure".
type Ledger struct {
	root string
	mu   sync.RWMutex
}

// New creates a Ledger rooted at root (typically <installDest>/prevres).
func New(root string) *Ledger {
	return &Ledger{root: filepath.Clean(root)}
}

func (l *Ledger) path(stage domain.Stage, id domain.PackageID) string {
	return filepath.Join(l.root, string(stage), id.String())
}

// Get returns the recorded result of stage for id. Any I/O error maps
// to domain.NoResult.
func (l *Ledger) Get(stage domain.Stage, id domain.PackageID) domain.StageResult {
	l.mu.RLock()
	defer l.mu.RUnlock()

	//nolint:gosec // path is built from canonicalized root and a PackageID, not raw user input
	data, err := os.ReadFile(l.path(stage, id))
	if err != nil {
		return domain.NoResult
	}

	switch string(data) {
	case "success":
		return domain.Success
	case "failure":
		return domain.Failure
	default:
		return domain.NoResult
	}
}

// Put atomically records whether stage succeeded for id.
func (l *Ledger) Put(stage domain.Stage, id domain.PackageID, success bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	p := l.path(stage, id)
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return zerr.Wrap(err, "failed to create ledger directory")
	}

	body := "failure"
	if success {
		body = "success"
	}

	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, []byte(body), 0o644); err != nil { //nolint:gosec // ledger entries are not secrets
		return zerr.Wrap(err, "failed to write ledger entry")
	}
	if err := os.Rename(tmp, p); err != nil {
		return zerr.Wrap(err, "failed to commit ledger entry")
	}
	return nil
}

// ClearAll deletes every stage's entry for id; missing entries are not
// an error.
func (l *Ledger) ClearAll(id domain.PackageID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, stage := range []domain.Stage{domain.Build, domain.Haddock, domain.Test, domain.Bench} {
		err := os.Remove(l.path(stage, id))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return zerr.Wrap(err, "failed to clear ledger entry")
		}
	}
	return nil
}
