package domain_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.keelbuild.dev/keel/internal/core/domain"
)

func TestBuildFailure_DisplayTruncatesTo500Runes(t *testing.T) {
	long := strings.Repeat("x", 1000)
	f := domain.NewBuildFailure("base", errors.New(long))

	assert.Len(t, f.Display(), 500)
	assert.Equal(t, f.Display(), f.Error())
}

func TestBuildFailure_DisplayShortErrorUntouched(t *testing.T) {
	f := domain.NewBuildFailure("base", errors.New("boom"))
	assert.Equal(t, "boom", f.Display())
}

func TestBuildFailure_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	f := domain.NewBuildFailure("base", cause)
	assert.Same(t, cause, errors.Unwrap(f))
}
