package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.keelbuild.dev/keel/internal/core/domain"
)

func TestTestState_ShouldRerun(t *testing.T) {
	tests := []struct {
		name     string
		state    domain.TestState
		prev     domain.StageResult
		expected bool
	}{
		{"dont-build never reruns", domain.DontBuild, domain.NoResult, false},
		{"dont-build ignores prior success", domain.DontBuild, domain.Success, false},
		{"no prior result always reruns", domain.ExpectSuccess, domain.NoResult, true},
		{"no prior result reruns for expect-failure too", domain.ExpectFailure, domain.NoResult, true},
		{"prior success never reruns", domain.ExpectSuccess, domain.Success, false},
		{"prior success never reruns even for expect-failure", domain.ExpectFailure, domain.Success, false},
		{"prior failure reruns when success is expected", domain.ExpectSuccess, domain.Failure, true},
		{"prior failure stays failed when failure is expected", domain.ExpectFailure, domain.Failure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.state.ShouldRerun(tt.prev))
		})
	}
}

func TestTestState_String(t *testing.T) {
	tests := []struct {
		s        domain.TestState
		expected string
	}{
		{domain.DontBuild, "dont-build"},
		{domain.ExpectSuccess, "expect-success"},
		{domain.ExpectFailure, "expect-failure"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.s.String())
		})
	}
}
