package lime2_test

import (
	"testing"

	"github.com/f18m/lime2node/lime2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	f, err := lime2.Encode(lime2.CommandTurnOn, 3, lime2.Group2)
	require.NoError(t, err)
	assert.Equal(t, "TURNON_32", f.String())
	assert.Len(t, f.Bytes(), lime2.FrameLength)

	f, err = lime2.Encode(lime2.CommandTurnOff, 9, lime2.Group1)
	require.NoError(t, err)
	assert.Equal(t, "TURNOFF91", f.String())

	f, err = lime2.Encode(lime2.CommandNoop, 1, 0)
	require.NoError(t, err)
	assert.Equal(t, "NOOP___10", f.String())
}

func TestEncode_Status(t *testing.T) {
	// Reserved values are forced whatever the caller gives.
	f, err := lime2.Encode(lime2.CommandStatus, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, "STATUS_00", f.String())
	assert.Equal(t, f, lime2.StatusFrame())
}

func TestEncode_Errors(t *testing.T) {
	_, err := lime2.Encode(lime2.CommandTurnOn, 1, 3)
	assert.ErrorIs(t, err, lime2.ErrInvalidParameter)

	_, err = lime2.Encode(lime2.CommandTurnOff, 1, 0)
	assert.ErrorIs(t, err, lime2.ErrInvalidParameter)

	_, err = lime2.Encode(lime2.CommandNoop, 0, 0)
	assert.ErrorIs(t, err, lime2.ErrInvalidTransactionID)

	_, err = lime2.Encode(lime2.CommandNoop, 10, 0)
	assert.ErrorIs(t, err, lime2.ErrInvalidTransactionID)

	_, err = lime2.Encode(lime2.Command(42), 1, 1)
	assert.ErrorIs(t, err, lime2.ErrInvalidCommand)
}

func TestTrimNulls(t *testing.T) {
	assert.Equal(t, []byte("A\x00B"), lime2.TrimNulls([]byte{0, 'A', 0, 'B', 0, 0}))
	assert.Empty(t, lime2.TrimNulls(make([]byte, lime2.FrameLength)))
	assert.Equal(t, []byte("ACK_1d"), lime2.TrimNulls([]byte("\x00ACK_1d\x00\x00")))
}

func TestParseAck(t *testing.T) {
	ack := lime2.ParseAck([]byte{'A', 'C', 'K', '_', '5', 200})
	assert.True(t, ack.Valid)
	assert.Equal(t, byte('5'), ack.TID)
	assert.Equal(t, uint8(200), ack.BatteryADC)
	assert.True(t, ack.Matches(5))
	assert.False(t, ack.Matches(4))

	// TID is reported as received.
	ack = lime2.ParseAck([]byte{0x41, 0x43, 0x4B, 0x5F, 5, 200})
	assert.True(t, ack.Valid)
	assert.Equal(t, byte(5), ack.TID)
	assert.Equal(t, uint8(200), ack.BatteryADC)

	for _, reply := range [][]byte{
		nil,
		[]byte("ACK_5"),
		[]byte("ACK_5dd"),
		[]byte("NACK_5"),
		[]byte("STATUS"),
	} {
		ack = lime2.ParseAck(reply)
		assert.False(t, ack.Valid, "%q", reply)
		assert.False(t, ack.Matches(5), "%q", reply)
	}
}

func TestParseCommand(t *testing.T) {
	c, err := lime2.ParseCommand("turnon")
	require.NoError(t, err)
	assert.Equal(t, lime2.CommandTurnOn, c)

	c, err = lime2.ParseCommand("NOOP___")
	require.NoError(t, err)
	assert.Equal(t, lime2.CommandNoop, c)
	assert.Equal(t, "NOOP", c.String())

	_, err = lime2.ParseCommand("REBOOT")
	assert.ErrorIs(t, err, lime2.ErrInvalidCommand)
}

func TestTransactionIDFromWire(t *testing.T) {
	tid, ok := lime2.TransactionIDFromWire('7')
	assert.True(t, ok)
	assert.Equal(t, lime2.TransactionID(7), tid)
	assert.Equal(t, byte('7'), tid.Wire())

	_, ok = lime2.TransactionIDFromWire(0x07)
	assert.False(t, ok)
}
