package ftp

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"

	"github.com/gonzalop/ftpstore/storage"
)

// Classify maps an exchange error to a storage error kind.
//
// Timeouts are recognised first and never reclassified. Credential
// rejection is detected by the text "530" anywhere in the error, which
// also matches unrelated text such as a port number; it is kept for
// servers whose replies are only available as text. Everything else is a
// transport failure.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		return storage.ErrTimeout
	}
	if strings.Contains(err.Error(), "530") {
		return storage.ErrUnauthorized
	}
	return storage.ErrTransportFailure
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// classify wraps err as a *storage.Error for op on location. Errors that
// already carry a kind pass through unchanged.
func classify(op, location string, err error) error {
	if err == nil {
		return nil
	}
	var serr *storage.Error
	if errors.As(err, &serr) {
		return err
	}
	return storage.NewError(Classify(err), op, location, err)
}
