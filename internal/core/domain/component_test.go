package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.keelbuild.dev/keel/internal/core/domain"
)

func TestComponent_String(t *testing.T) {
	tests := []struct {
		c        domain.Component
		expected string
	}{
		{domain.Library, "library"},
		{domain.Executable, "executable"},
		{domain.TestSuite, "test-suite"},
		{domain.Benchmark, "benchmark"},
		{domain.Component(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.c.String())
		})
	}
}

func TestComponentSet_Intersects(t *testing.T) {
	libExec := domain.NewComponentSet(domain.Library, domain.Executable)

	tests := []struct {
		name     string
		other    domain.ComponentSet
		expected bool
	}{
		{"overlapping", domain.NewComponentSet(domain.Executable, domain.TestSuite), true},
		{"disjoint", domain.NewComponentSet(domain.TestSuite, domain.Benchmark), false},
		{"empty", domain.ComponentSet{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, libExec.Intersects(tt.other))
		})
	}
}

func TestNewComponentSet(t *testing.T) {
	set := domain.NewComponentSet(domain.Library)
	assert.True(t, set[domain.Library])
	assert.False(t, set[domain.Executable])
}
