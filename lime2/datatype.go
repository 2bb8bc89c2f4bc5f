package lime2

import (
	"fmt"
	"strings"
)

type (
	Command       uint8
	TransactionID uint8
	Frame         [FrameLength]byte
)

func (c Command) Valid() bool {
	_, ok := mnemonics[c]
	return ok
}

// Mnemonic returns the 7 bytes sent on the wire.
func (c Command) Mnemonic() string {
	return mnemonics[c]
}

func (c Command) String() string {
	m, ok := mnemonics[c]
	if !ok {
		return fmt.Sprintf("Command(%d)", uint8(c))
	}
	return strings.TrimRight(m, "_")
}

// ParseCommand accepts either the wire mnemonic (TURNON_) or its trimmed form (TURNON).
func ParseCommand(name string) (Command, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for c, m := range mnemonics {
		if name == m || name == strings.TrimRight(m, "_") {
			return c, nil
		}
	}

	return 0, fmt.Errorf("%w: %q", ErrInvalidCommand, name)
}

func (t TransactionID) Valid() bool {
	return t >= FirstTransactionID && t <= LastTransactionID
}

// Wire returns the ASCII digit carried by frames and ACKs.
func (t TransactionID) Wire() byte {
	return '0' + byte(t)
}

// TransactionIDFromWire is the inverse of Wire. It reports false for bytes
// outside the ASCII digit range.
func TransactionIDFromWire(b byte) (TransactionID, bool) {
	if b < '0' || b > '9' {
		return 0, false
	}
	return TransactionID(b - '0'), true
}

func (f Frame) Bytes() []byte {
	return f[:]
}

func (f Frame) String() string {
	return string(f[:])
}

// Ack is the outcome of parsing a trimmed reply.
// TID holds the raw wire byte and is 0 when the reply is not a valid ACK.
type Ack struct {
	Valid      bool  `json:"valid"`
	TID        byte  `json:"tid"`
	BatteryADC uint8 `json:"battery_adc"`
}

// Matches reports whether the ACK acknowledges the given transaction.
func (a Ack) Matches(tid TransactionID) bool {
	return a.Valid && a.TID == tid.Wire()
}

type Battery struct {
	ADC        uint8   `json:"adc"`
	Voltage    float64 `json:"voltage"`
	Percentage float64 `json:"percentage"`
}

func (b Battery) String() string {
	return fmt.Sprintf("Battery read is %.3fV (%d ADC counts, %.1f%%)", b.Voltage, b.ADC, b.Percentage)
}
