package lime2node

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/f18m/lime2node/lime2"
	"github.com/mdouchement/logger"
)

const DefaultDummyADC = 100

// A DummyNode simulates the remote node behind the bus.
// It should only be used for dev & tests.
//
// The node acknowledges the last received command once the radio link has
// been set up, that is after a given number of STATUS probes. Until then it
// answers with an empty (null) reply buffer.
type DummyNode struct {
	sync     sync.Mutex
	adc      uint8
	latency  int
	lastTID  byte
	pending  int
	groups   map[uint8]bool
	received []lime2.Frame
	log      logger.Logger
}

// NewDummyNode returns a node acknowledging after latency STATUS probes.
func NewDummyNode(latency int) *DummyNode {
	return &DummyNode{
		adc:     DefaultDummyADC,
		latency: max(latency, 0),
		groups: map[uint8]bool{
			lime2.Group1: false,
			lime2.Group2: false,
		},
	}
}

func (n *DummyNode) SetLogger(l logger.Logger) {
	n.log = l
}

// SetBatteryADC sets the battery reading sent back in ACKs.
func (n *DummyNode) SetBatteryADC(adc uint8) {
	n.sync.Lock()
	defer n.sync.Unlock()

	n.adc = adc
}

// Groups returns the valve state of each channel group.
func (n *DummyNode) Groups() map[uint8]bool {
	n.sync.Lock()
	defer n.sync.Unlock()

	return maps.Clone(n.groups)
}

// Received returns all frames seen on the bus, probes included.
func (n *DummyNode) Received() []lime2.Frame {
	n.sync.Lock()
	defer n.sync.Unlock()

	return append([]lime2.Frame(nil), n.received...)
}

func (n *DummyNode) Transfer(ctx context.Context, frame []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &lime2.TransportError{Op: "exec", Err: err}
	}
	if len(frame) != lime2.FrameLength {
		return nil, &lime2.TransportError{Op: "exec", Err: fmt.Errorf("invalid frame length %d", len(frame))}
	}

	n.sync.Lock()
	defer n.sync.Unlock()

	var f lime2.Frame
	copy(f[:], frame)
	n.received = append(n.received, f)

	// Full-duplex: what is clocked out is the reply buffer prior to this frame.
	reply := n.reply()

	mnemonic := string(frame[:lime2.MnemonicLength])
	tid := frame[lime2.MnemonicLength]
	param := frame[lime2.MnemonicLength+1] - '0'

	switch mnemonic {
	case lime2.CommandStatus.Mnemonic():
		n.pending--
	case lime2.CommandTurnOn.Mnemonic(), lime2.CommandTurnOff.Mnemonic():
		if _, ok := n.groups[param]; ok {
			n.groups[param] = mnemonic == lime2.CommandTurnOn.Mnemonic()
		}
		fallthrough
	case lime2.CommandNoop.Mnemonic():
		n.lastTID = tid
		n.pending = n.latency
	default:
		if n.log != nil {
			n.log.Warnf("dummy node: unknown command %q", mnemonic)
		}
	}

	if n.log != nil {
		n.log.Debugf("dummy node: %q => %q", frame, reply)
	}
	return reply, nil
}

func (n *DummyNode) reply() []byte {
	reply := make([]byte, lime2.FrameLength)
	if n.lastTID == 0 || n.pending > 0 {
		return reply
	}

	copy(reply[1:], lime2.AckMarker)
	reply[1+len(lime2.AckMarker)] = n.lastTID
	reply[2+len(lime2.AckMarker)] = n.adc
	return reply
}
