// Package ratelimit throttles the byte rate of FTP data channels.
//
// A Limiter is shared by every transfer of one backend, so concurrent uploads
// and downloads together stay under the configured rate.
package ratelimit

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/time/rate"
)

// maxChunk bounds a single wait so a large Read or Write does not stall
// for seconds before the first byte moves.
const maxChunk = 32 * 1024

// Limiter limits transfers to a number of bytes per second.
// A nil *Limiter means unlimited.
type Limiter struct {
	lim   *rate.Limiter
	burst int
}

// New returns a limiter allowing bytesPerSecond with a one second burst.
// It returns nil for a non-positive rate.
func New(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := int(min(bytesPerSecond, int64(maxChunk)))
	return &Limiter{
		lim:   rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst: burst,
	}
}

// Rate returns the configured limit in bytes per second, or 0 for nil.
func (l *Limiter) Rate() int64 {
	if l == nil {
		return 0
	}
	return int64(l.lim.Limit())
}

// wait blocks until n bytes may pass and returns how many were granted,
// at most one burst.
func (l *Limiter) wait(n int) (int, error) {
	if n > l.burst {
		n = l.burst
	}
	if err := l.lim.WaitN(context.Background(), n); err != nil {
		return 0, fmt.Errorf("ratelimit: %w", err)
	}
	return n, nil
}

type reader struct {
	r io.Reader
	l *Limiter
}

// NewReader wraps r so reads are throttled by l.
// If l is nil, r is returned unchanged.
func NewReader(r io.Reader, l *Limiter) io.Reader {
	if l == nil {
		return r
	}
	return &reader{r: r, l: l}
}

func (r *reader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	n, err := r.l.wait(len(p))
	if err != nil {
		return 0, err
	}
	return r.r.Read(p[:n])
}

type writer struct {
	w io.Writer
	l *Limiter
}

// NewWriter wraps w so writes are throttled by l.
// If l is nil, w is returned unchanged.
func NewWriter(w io.Writer, l *Limiter) io.Writer {
	if l == nil {
		return w
	}
	return &writer{w: w, l: l}
}

func (w *writer) Write(p []byte) (int, error) {
	written := 0
	for written < len(p) {
		n, err := w.l.wait(len(p) - written)
		if err != nil {
			return written, err
		}
		m, err := w.w.Write(p[written : written+n])
		written += m
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
