package sqlite

import (
	"fmt"
	"time"
)

const (
	retryInitialWait = 10 * time.Millisecond
	retryMaxWait     = 500 * time.Millisecond
)

// WithRetries retries op up to attempts times on transient busy errors,
// with a bounded doubling backoff. Non-transient errors surface
// immediately. A persistently busy database surfaces as a generic error so
// callers don't keep treating it as transient.
func WithRetries(attempts int, op func() error) error {
	wait := retryInitialWait
	var err error
	for i := 0; i < attempts; i++ {
		err = op()
		if err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		time.Sleep(wait)
		wait *= 2
		if wait > retryMaxWait {
			wait = retryMaxWait
		}
	}
	return &Error{Kind: KindGeneric, Err: fmt.Errorf("still busy after %d attempts: %w", attempts, err)}
}
