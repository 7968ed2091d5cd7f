package provider

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"
)

// retryBackoff is the base wait between attempts; it grows linearly.
var retryBackoff = 500 * time.Millisecond

// Retrying wraps a provider with a fixed attempt count and a per-attempt
// timeout. A stream is only retried until its first chunk arrives.
type Retrying struct {
	next     Provider
	attempts int
	timeout  time.Duration
}

// WithRetry wraps p. attempts < 1 is treated as 1; timeout <= 0 disables the
// per-attempt deadline.
func WithRetry(p Provider, attempts int, timeout time.Duration) *Retrying {
	if attempts < 1 {
		attempts = 1
	}
	return &Retrying{next: p, attempts: attempts, timeout: timeout}
}

func (r *Retrying) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

// Invoke retries retryable failures up to the attempt limit
func (r *Retrying) Invoke(ctx context.Context, req Request) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		actx, cancel := r.attemptContext(ctx)
		out, err := r.next.Invoke(actx, req)
		cancel()
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !r.shouldRetry(ctx, err, attempt) {
			break
		}
		if err := wait(ctx, attempt); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

// Stream opens a stream and reads its first chunk, retrying on failure
func (r *Retrying) Stream(ctx context.Context, req Request) (Stream, error) {
	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		actx, cancel := r.attemptContext(ctx)
		s, err := r.next.Stream(actx, req)
		if err == nil {
			first, ferr := s.Recv()
			if ferr == nil || errors.Is(ferr, io.EOF) {
				return &peekedStream{Stream: s, first: first, firstErr: ferr, cancel: cancel}, nil
			}
			_ = s.Close()
			err = ferr
		}
		cancel()

		lastErr = err
		if !r.shouldRetry(ctx, err, attempt) {
			break
		}
		logger().Warn().Err(err).Int("attempt", attempt).Msg("retrying model stream")
		if err := wait(ctx, attempt); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Retrying) shouldRetry(ctx context.Context, err error, attempt int) bool {
	return attempt < r.attempts && ctx.Err() == nil && IsRetryable(err)
}

func wait(ctx context.Context, attempt int) error {
	t := time.NewTimer(time.Duration(attempt) * retryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsRetryable reports whether err is a timeout, a network failure, a rate
// limit or a server-side error.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// peekedStream replays the chunk read while establishing the stream and
// releases the attempt deadline on Close.
type peekedStream struct {
	Stream
	first    Chunk
	firstErr error
	replayed bool
	cancel   context.CancelFunc
}

func (s *peekedStream) Recv() (Chunk, error) {
	if !s.replayed {
		s.replayed = true
		return s.first, s.firstErr
	}
	return s.Stream.Recv()
}

func (s *peekedStream) Close() error {
	defer s.cancel()
	return s.Stream.Close()
}
