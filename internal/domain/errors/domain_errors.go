package errors

import (
	"errors"
	"fmt"
)

var (
	// Remote entitlement source errors
	ErrRemoteUnavailable = errors.New("purchase platform unavailable")
	ErrRemoteInitFailed  = errors.New("purchase platform failed to initialize")

	// Purchase errors
	ErrPurchaseFailed    = errors.New("purchase failed")
	ErrPurchaseCancelled = errors.New("purchase cancelled by user")

	// Reconciler errors
	ErrOperationInFlight = errors.New("operation already in flight")
	ErrNotHydrated       = errors.New("reconciler has not completed hydration")
	ErrDevOnly           = errors.New("operation not available in production")

	// Cache errors
	ErrCacheUnavailable = errors.New("local entitlement cache unavailable")

	ErrInvalidInput = errors.New("invalid input")
)

// CacheWriteError wraps a failed cache write with the key it targeted
type CacheWriteError struct {
	Key string
	Err error
}

func (e *CacheWriteError) Error() string {
	return fmt.Sprintf("cache write for key '%s' failed: %v", e.Key, e.Err)
}

func (e *CacheWriteError) Unwrap() error {
	return e.Err
}
