package lime2

import (
	"bytes"
	"fmt"
)

// Validate checks a command and its parameter without building a frame.
func Validate(cmd Command, param uint8) error {
	if !cmd.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidCommand, cmd)
	}

	switch cmd {
	case CommandTurnOn, CommandTurnOff:
		if param != Group1 && param != Group2 {
			return fmt.Errorf("%w: %s only accepts channel group 1 or 2, got %d", ErrInvalidParameter, cmd, param)
		}
	}

	return nil
}

// Encode builds the frame mnemonic(7) || tid(1) || param(1).
// STATUS always carries the reserved TID and parameter, whatever is given.
func Encode(cmd Command, tid TransactionID, param uint8) (Frame, error) {
	var f Frame

	if err := Validate(cmd, param); err != nil {
		return f, err
	}

	if cmd == CommandStatus {
		tid = StatusTransactionID
		param = StatusParameter
	} else if !tid.Valid() {
		return f, fmt.Errorf("%w: %d", ErrInvalidTransactionID, tid)
	}

	copy(f[:MnemonicLength], cmd.Mnemonic())
	f[MnemonicLength] = tid.Wire()
	f[MnemonicLength+1] = '0' + param
	return f, nil
}

// StatusFrame returns the STATUS probe frame.
func StatusFrame() Frame {
	f, _ := Encode(CommandStatus, StatusTransactionID, StatusParameter)
	return f
}

// TrimNulls strips the leading and trailing zero bytes of a reply.
// Interior zero bytes are preserved.
func TrimNulls(raw []byte) []byte {
	return bytes.TrimRight(bytes.TrimLeft(raw, "\x00"), "\x00")
}

// ParseAck decodes a trimmed reply `ACK_` || tid(1) || battery_adc(1).
// A reply starting with the marker but with another length is garbled and
// reported as not valid.
func ParseAck(trimmed []byte) Ack {
	if !bytes.HasPrefix(trimmed, []byte(AckMarker)) || len(trimmed) != AckLength {
		return Ack{}
	}

	return Ack{
		Valid:      true,
		TID:        trimmed[len(AckMarker)],
		BatteryADC: trimmed[len(AckMarker)+1],
	}
}
