package lime2

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidCommand       = errors.New("invalid command")
	ErrInvalidParameter     = errors.New("invalid command parameter")
	ErrInvalidTransactionID = errors.New("invalid transaction ID")
	ErrNotFound             = errors.New("serial bridge not found/plugged")
)

// TransportError is returned by a Transport when the bus transfer could not
// be completed. The frame must be considered as not sent.
type TransportError struct {
	// Op is the failing step (exec, read, write...)
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError returns true if err wraps a TransportError.
func IsTransportError(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
