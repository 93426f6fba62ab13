package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.keelbuild.dev/keel/internal/core/domain"
)

func TestStageResult_String(t *testing.T) {
	tests := []struct {
		r        domain.StageResult
		expected string
	}{
		{domain.NoResult, "no-result"},
		{domain.Success, "success"},
		{domain.Failure, "failure"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.r.String())
		})
	}
}
