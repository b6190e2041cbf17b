package chat

import (
	"errors"
	"fmt"

	"chatsync/pkg/store"
)

// Error taxonomy shared by both transports. The fallback endpoints map
// these to status codes in pkg/api; the live channel folds any of them
// into a scoped error event.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	// ErrTransient marks storage-level failures the caller may retry.
	ErrTransient = errors.New("transient storage failure")
)

// wrapStore translates store sentinels into the chat taxonomy, keeping
// the original error in the chain.
func wrapStore(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %v: %w", what, err, ErrTransient)
}
