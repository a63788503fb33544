package s3

import (
	"context"
	"errors"
	"net"
	"os"

	"github.com/aws/smithy-go"

	"github.com/gonzalop/ftpstore/storage"
)

// Classify maps an S3 API error to a storage error kind.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	var nerr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) ||
		(errors.As(err, &nerr) && nerr.Timeout()) {
		return storage.ErrTimeout
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return storage.ErrNotFound
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return storage.ErrUnauthorized
		}
	}
	return storage.ErrTransportFailure
}

func classify(op, key string, err error) error {
	if err == nil {
		return nil
	}
	var serr *storage.Error
	if errors.As(err, &serr) {
		return err
	}
	return storage.NewError(Classify(err), op, key, err)
}

func invalidArgument(op, msg string) error {
	return storage.NewError(storage.ErrInvalidArgument, op, "", errors.New(msg))
}
