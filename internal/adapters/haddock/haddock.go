// Package haddock tracks per-package documentation interface files and
// computes transitive dependency closures for cross-linking.
package haddock

import (
	"sync"

	"go.keelbuild.dev/keel/internal/core/domain"
)

const (
	unvisited = iota
	visiting
	visited
)

// Store implements ports.HaddockStore. Closure computation is
// serialised under mu for the entire call, so the placeholder-before-
// recurse protocol required for self-cycles never exposes a partial
// result to a concurrent caller.
type Store struct {
	mu    sync.Mutex
	files map[string]string
	memo  map[string]map[string]bool
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		files: make(map[string]string),
		memo:  make(map[string]map[string]bool),
	}
}

// RecordInterface records the absolute path of id's .haddock file.
func (s *Store) RecordInterface(id domain.PackageID, path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[id.String()] = path
}

// Interfaces returns a snapshot of every recorded name-version to
// .haddock path mapping.
func (s *Store) Interfaces() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := make(map[string]string, len(s.files))
	for k, v := range s.files {
		snapshot[k] = v
	}
	return snapshot
}

// Closure returns the transitive set of library-or-executable
// dependency names reachable from pkg in plan, memoised across calls.
// A package that depends on itself (legal in this ecosystem) is
// handled by inserting an empty placeholder before recursing, so the
// self-edge terminates rather than looping.
func (s *Store) Closure(plan *domain.Plan, pkg string) map[string]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := make(map[string]int)
	return s.closure(plan, pkg, state)
}

func (s *Store) closure(plan *domain.Plan, pkg string, state map[string]int) map[string]bool {
	if memoised, ok := s.memo[pkg]; ok {
		return memoised
	}
	if state[pkg] == visiting {
		// Self-cycle: the placeholder already inserted below will be
		// filled in once the outer call returns.
		return map[string]bool{}
	}

	state[pkg] = visiting
	placeholder := make(map[string]bool)
	s.memo[pkg] = placeholder

	spec, ok := plan.Packages[pkg]
	if !ok {
		state[pkg] = visited
		return placeholder
	}

	libExec := domain.NewComponentSet(domain.Library, domain.Executable)
	result := make(map[string]bool)
	for _, dep := range spec.Deps {
		if !dep.Consuming.Intersects(libExec) {
			continue
		}
		if plan.CorePackages[dep.Package] {
			continue
		}
		result[dep.Package] = true
		for name := range s.closure(plan, dep.Package, state) {
			result[name] = true
		}
	}

	state[pkg] = visited
	for k := range result {
		placeholder[k] = true
	}
	s.memo[pkg] = placeholder
	return placeholder
}
