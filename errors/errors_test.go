package errors_test

import (
	"fmt"
	"testing"

	"github.com/go-fatfs/fatfs/errors"
	"github.com/stretchr/testify/assert"
)

func TestNew_DefaultMessage(t *testing.T) {
	err := errors.New(errors.ENOSPC)
	assert.Equal(t, errors.ENOSPC, err.Errno())
	assert.Contains(t, err.Error(), "no space")
}

func TestWithMessage_PreservesErrno(t *testing.T) {
	base := errors.New(errors.EIO)
	wrapped := base.WithMessage("reading sector 4")

	assert.Equal(t, errors.EIO, wrapped.Errno())
	assert.Contains(t, wrapped.Error(), "reading sector 4")
}

func TestWrapError_PreservesErrno(t *testing.T) {
	inner := fmt.Errorf("short read")
	wrapped := errors.ErrIOFailed.WrapError(inner)

	assert.Equal(t, errors.EIO, wrapped.Errno())
	assert.ErrorIs(t, wrapped, inner)
}

func TestIsSameError(t *testing.T) {
	a := errors.NewWithMessage(errors.ENOENT, "no HELLO.TXT")
	b := errors.NewWithMessage(errors.ENOENT, "no GOODBYE.TXT")
	c := errors.New(errors.EEXIST)

	assert.True(t, a.IsSameError(b))
	assert.False(t, a.IsSameError(c))
}
