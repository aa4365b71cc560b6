package session

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("not the owner")
	ErrOutOfRange        = errors.New("move index out of range")
	ErrConcurrencyLimit  = errors.New("concurrency limit exceeded")
	ErrEngineUnavailable = errors.New("engine unavailable")
	ErrInvalidMove       = errors.New("invalid move")
	ErrShuttingDown      = errors.New("manager shutting down")
)

// LimitError is returned when a client already holds its maximum number of games.
type LimitError struct {
	Active     int
	Limit      int
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("%s: %d of %d games active", ErrConcurrencyLimit, e.Active, e.Limit)
}

func (e *LimitError) Is(target error) bool { return target == ErrConcurrencyLimit }
