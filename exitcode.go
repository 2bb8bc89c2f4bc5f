package lime2node

import (
	"errors"

	"github.com/f18m/lime2node/lime2"
)

// Exit codes of the lime2node backend, read back by the relay.
const (
	ExitAcked       = 0
	ExitFailure     = 1
	ExitUnconfirmed = 2
	ExitBusy        = 3
	ExitUsage       = 64
)

// ExitCode maps an engine error onto the backend exit code.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitAcked
	case errors.Is(err, ErrAckTimeout):
		return ExitUnconfirmed
	case errors.Is(err, ErrBusy):
		return ExitBusy
	case errors.Is(err, lime2.ErrInvalidCommand), errors.Is(err, lime2.ErrInvalidParameter):
		return ExitUsage
	default:
		return ExitFailure
	}
}

// OperationState maps a backend exit code onto the relay operation state.
func OperationState(code int) string {
	switch code {
	case ExitAcked:
		return OperationAcked
	case ExitUnconfirmed:
		return OperationUnconfirmed
	case ExitBusy:
		return OperationBusy
	case ExitUsage:
		return OperationRejected
	default:
		return OperationFailed
	}
}
