package errors

import "github.com/pkg/errors"

var (
	// common errors
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrReadinessTimeout  = errors.New("destination not ready within readiness bound")

	// sync errors
	ErrPersistence     = errors.New("sync state persistence failed")
	ErrFolderNotFound  = errors.New("folder does not exist on the server")
	ErrSourceClosed    = errors.New("mail source is closed")
	ErrSinkClosed      = errors.New("sink is closed")
	ErrSinkStickyError = errors.New("sink is in error state")
)
