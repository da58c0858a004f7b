package supervisor

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the requested alias has no catalog entry.
var ErrNotFound = errors.New("worker alias not found")

// ErrStartupFailed indicates the child process never became healthy within
// the configured startup timeout.
var ErrStartupFailed = errors.New("worker failed to become ready")

// OutOfMemoryError carries the admission shortfall so the HTTP layer can
// render "need X GB, have Y GB" without reparsing a formatted string.
type OutOfMemoryError struct {
	NeededGB    float64
	AvailableGB float64
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("need %.2f GB, have %.2f GB", e.NeededGB, e.AvailableGB)
}

// IsOutOfMemory reports whether err is an *OutOfMemoryError.
func IsOutOfMemory(err error) (*OutOfMemoryError, bool) {
	var oom *OutOfMemoryError
	if errors.As(err, &oom) {
		return oom, true
	}
	return nil, false
}
