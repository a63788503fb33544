package storage

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	t.Parallel()
	cause := fmt.Errorf("read: %w", os.ErrDeadlineExceeded)
	err := NewError(ErrTimeout, "list", "ftp://host/dir", cause)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
	assert.NotErrorIs(t, err, ErrTransportFailure)
	assert.Equal(t, "list ftp://host/dir: timeout: read: i/o timeout", err.Error())
}

func TestErrorWithoutCause(t *testing.T) {
	t.Parallel()
	err := NewError(ErrInvalidArgument, "delete", "", nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, "delete: invalid argument", err.Error())
}

func TestKindOf(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "storage error", err: NewError(ErrNotFound, "lookup", "a", nil), want: ErrNotFound},
		{name: "wrapped storage error", err: fmt.Errorf("cli: %w", NewError(ErrUnauthorized, "list", "", nil)), want: ErrUnauthorized},
		{name: "bare sentinel", err: fmt.Errorf("x: %w", ErrAlreadyExists), want: ErrAlreadyExists},
		{name: "unrelated", err: errors.New("boom"), want: nil},
		{name: "nil", err: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
