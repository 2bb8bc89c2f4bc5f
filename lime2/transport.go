package lime2

import "context"

// A Transport performs one full-duplex transfer on the bus: the frame is
// clocked out and whatever the node had in its reply buffer is returned,
// possibly null padded.
// Any failure is reported as a *TransportError.
type Transport interface {
	Transfer(ctx context.Context, frame []byte) ([]byte, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, frame []byte) ([]byte, error)

func (f TransportFunc) Transfer(ctx context.Context, frame []byte) ([]byte, error) {
	return f(ctx, frame)
}
