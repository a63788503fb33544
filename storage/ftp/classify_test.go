package ftp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonzalop/ftpstore/internal/ftpconn"
	"github.com/gonzalop/ftpstore/storage"
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "read tcp: i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "nil", err: nil, want: nil},
		{name: "530 reply", err: &ftpconn.ProtocolError{Command: "PASS", Response: "Login incorrect.", Code: 530}, want: storage.ErrUnauthorized},
		{name: "530 in plain text", err: errors.New("530 Not logged in."), want: storage.ErrUnauthorized},
		{name: "wrapped 530", err: fmt.Errorf("list: %w", errors.New("server said 530")), want: storage.ErrUnauthorized},
		{name: "deadline", err: fmt.Errorf("read: %w", os.ErrDeadlineExceeded), want: storage.ErrTimeout},
		{name: "context deadline", err: context.DeadlineExceeded, want: storage.ErrTimeout},
		{name: "net timeout", err: timeoutError{}, want: storage.ErrTimeout},
		{name: "other reply", err: &ftpconn.ProtocolError{Command: "RETR", Response: "No such file.", Code: 550}, want: storage.ErrTransportFailure},
		{name: "eof", err: io.EOF, want: storage.ErrTransportFailure},
		{name: "canceled", err: context.Canceled, want: storage.ErrTransportFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestClassifyTimeoutWinsOverText(t *testing.T) {
	t.Parallel()
	err := fmt.Errorf("dial tcp 10.0.0.1:2530: %w", os.ErrDeadlineExceeded)
	assert.Equal(t, storage.ErrTimeout, Classify(err))
}

func TestClassifyWrapsCause(t *testing.T) {
	t.Parallel()
	cause := &ftpconn.ProtocolError{Command: "DELE", Response: "Permission denied.", Code: 550}
	err := classify(opDelete, "ftp://h/a.txt", cause)

	require.ErrorIs(t, err, storage.ErrTransportFailure)
	var perr *ftpconn.ProtocolError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 550, perr.Code)

	// Already classified errors pass through.
	notFound := storage.NewError(storage.ErrNotFound, opLookup, "x", nil)
	assert.Same(t, notFound, classify(opList, "y", notFound))
	assert.NoError(t, classify(opList, "y", nil))
}
