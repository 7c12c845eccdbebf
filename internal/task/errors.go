package task

import "errors"

var (
	ErrNotFound          = errors.New("task not found")
	ErrInvalidTransition = errors.New("invalid task status transition")
	ErrTerminal          = errors.New("task already finished")
	ErrResultOverflow    = errors.New("task has more results than sources")
	ErrResultNotFound    = errors.New("no result for source")
	ErrGateClosed        = errors.New("approval gate closed")
)
