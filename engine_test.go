package lime2node

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/f18m/lime2node/lime2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock advances instantly on Sleep.
type fakeClock struct {
	sync      sync.Mutex
	now       time.Time
	slept     []time.Duration
	interrupt time.Duration // Sleep of that exact duration fails
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.sync.Lock()
	defer c.sync.Unlock()

	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.sync.Lock()
	defer c.sync.Unlock()

	if c.interrupt > 0 && d == c.interrupt {
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

type staticSequencer struct {
	tid   lime2.TransactionID
	calls int
}

func (s *staticSequencer) Next() (lime2.TransactionID, error) {
	s.calls++
	return s.tid, nil
}

// scriptedTransport replies in order, then with nulls.
type scriptedTransport struct {
	replies [][]byte
	frames  []string
}

func (t *scriptedTransport) Transfer(_ context.Context, frame []byte) ([]byte, error) {
	t.frames = append(t.frames, string(frame))

	if len(t.replies) == 0 {
		return make([]byte, lime2.FrameLength), nil
	}
	reply := t.replies[0]
	t.replies = t.replies[1:]
	return reply, nil
}

func ackReply(tid byte, adc uint8) []byte {
	return append([]byte{0}, 'A', 'C', 'K', '_', tid, adc, 0, 0)
}

type busyMutex struct{}

func (busyMutex) TryAcquire() (BusLock, error) {
	return nil, ErrBusy
}

func newTestEngine(t *testing.T, transport lime2.Transport, clock Clock) (*Engine, *Sequencer) {
	t.Helper()

	seq := NewSequencer(filepath.Join(t.TempDir(), TransactionFilename))
	return NewEngine(transport, seq, WithClock(clock)), seq
}

func TestEngine_Run_Acked(t *testing.T) {
	node := NewDummyNode(1)
	clock := newFakeClock()
	e, seq := newTestEngine(t, node, clock)

	outcome, err := e.Run(context.Background(), lime2.CommandTurnOn, lime2.Group2)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, outcome.State)
	assert.Equal(t, lime2.TransactionID(1), outcome.TransactionID)
	assert.Equal(t, 1, outcome.Probes)
	assert.Equal(t, 2*time.Second, outcome.Elapsed)
	assert.False(t, outcome.Unconfirmed())
	assert.NoError(t, outcome.Err())

	require.NotNil(t, outcome.Battery)
	assert.Equal(t, uint8(DefaultDummyADC), outcome.Battery.ADC)
	assert.InDelta(t, 11.286, outcome.Battery.Voltage, 1e-9)

	frames := node.Received()
	require.Len(t, frames, 3)
	assert.Equal(t, "TURNON_12", frames[0].String())
	assert.Equal(t, "STATUS_00", frames[1].String())
	assert.Equal(t, "STATUS_00", frames[2].String())
	assert.True(t, node.Groups()[lime2.Group2])

	current, err := seq.Current()
	require.NoError(t, err)
	assert.Equal(t, 1, current)
	assert.Equal(t, []time.Duration{DefaultPollInterval}, clock.slept)
}

func TestEngine_WaitForAck_FirstProbeDiscarded(t *testing.T) {
	// The first reply already looks like the expected ACK but belongs to the
	// bus state from before the command.
	transport := &scriptedTransport{replies: [][]byte{
		ackReply('1', 10),
		nil,
		ackReply('1', 20),
	}}
	e, _ := newTestEngine(t, transport, newFakeClock())

	out := e.WaitForAck(context.Background(), 1)
	assert.Equal(t, StateAcked, out.State)
	assert.Equal(t, 2, out.Probes)
	assert.Equal(t, uint8(20), out.Battery.ADC)
	assert.Len(t, transport.frames, 3)
}

func TestEngine_WaitForAck_StaleAck(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		ackReply('9', 50),
		ackReply('9', 50),
		ackReply('1', 60),
	}}
	e, _ := newTestEngine(t, transport, newFakeClock())

	out := e.WaitForAck(context.Background(), 1)
	assert.Equal(t, StateAcked, out.State)
	assert.Equal(t, 2, out.Probes)
	assert.Equal(t, uint8(60), out.Battery.ADC)
}

func TestEngine_WaitForAck_Timeout(t *testing.T) {
	transport := &scriptedTransport{replies: [][]byte{
		ackReply('8', 50),
		ackReply('8', 50),
		[]byte("ACK_1"), // Partial ACK.
	}}
	clock := newFakeClock()
	e, _ := newTestEngine(t, transport, clock)

	out := e.WaitForAck(context.Background(), 1)
	assert.Equal(t, StateTimedOut, out.State)
	assert.ErrorIs(t, out.Err, ErrAckTimeout)
	assert.Nil(t, out.Battery)
	assert.Greater(t, out.Elapsed, DefaultAckTimeout)
	assert.Equal(t, 16, out.Probes)
	assert.Len(t, transport.frames, 17)
	assert.Equal(t, ExitUnconfirmed, ExitCode(out.Err))
}

func TestEngine_WaitForAck_Cancelled(t *testing.T) {
	e, _ := newTestEngine(t, &scriptedTransport{}, newFakeClock())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Cancelling while waiting leaves the command unconfirmed.
	out := e.WaitForAck(ctx, 1)
	assert.Equal(t, StateTimedOut, out.State)
	assert.ErrorIs(t, out.Err, ErrAckTimeout)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestEngine_Run_SendFailure(t *testing.T) {
	var transfers int
	transport := lime2.TransportFunc(func(context.Context, []byte) ([]byte, error) {
		transfers++
		return nil, errors.New("spidev_test: permission denied")
	})
	e, _ := newTestEngine(t, transport, newFakeClock())

	outcome, err := e.Run(context.Background(), lime2.CommandTurnOff, lime2.Group1)
	require.Error(t, err)
	assert.True(t, lime2.IsTransportError(err))
	assert.Equal(t, StateTransportFailed, outcome.State)
	assert.Equal(t, 1, transfers, "no STATUS probe after a failed send")
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestEngine_Run_ProbeFailure(t *testing.T) {
	var transfers int
	transport := lime2.TransportFunc(func(context.Context, []byte) ([]byte, error) {
		transfers++
		if transfers > 2 {
			return nil, &lime2.TransportError{Op: "read", Err: errors.New("no reply")}
		}
		return make([]byte, lime2.FrameLength), nil
	})
	e, _ := newTestEngine(t, transport, newFakeClock())

	outcome, err := e.Run(context.Background(), lime2.CommandNoop, 0)
	require.Error(t, err)
	assert.Equal(t, StateTransportFailed, outcome.State)
	assert.Equal(t, 1, outcome.Probes)
}

func TestEngine_Run_InvalidCommand(t *testing.T) {
	transport := &scriptedTransport{}
	seq := &staticSequencer{tid: 1}
	e := NewEngine(transport, seq, WithClock(newFakeClock()))

	_, err := e.Run(context.Background(), lime2.CommandTurnOn, 3)
	assert.ErrorIs(t, err, lime2.ErrInvalidParameter)
	assert.Equal(t, ExitUsage, ExitCode(err))

	_, err = e.Run(context.Background(), lime2.CommandStatus, 0)
	assert.ErrorIs(t, err, lime2.ErrInvalidCommand)

	assert.Zero(t, seq.calls, "no transaction ID consumed")
	assert.Empty(t, transport.frames)
}

func TestEngine_Execute_Busy(t *testing.T) {
	transport := &scriptedTransport{}
	e, _ := newTestEngine(t, transport, newFakeClock())

	outcome, err := e.Execute(context.Background(), busyMutex{}, lime2.CommandTurnOn, lime2.Group1)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, outcome.Err(), ErrBusy)
	assert.Equal(t, ExitBusy, ExitCode(err))
	assert.Empty(t, transport.frames)
}

func TestEngine_Execute(t *testing.T) {
	node := NewDummyNode(2)
	e, _ := newTestEngine(t, node, newFakeClock())
	mutex := NewBusMutex(filepath.Join(t.TempDir(), "bus.lock"))

	outcome, err := e.Execute(context.Background(), mutex, lime2.CommandNoop, 0)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, outcome.State)
	assert.Equal(t, 2, outcome.Probes)

	// Released once done.
	lock, err := mutex.TryAcquire()
	require.NoError(t, err)
	require.NoError(t, lock.Release())
}

func TestEngine_RunTimed(t *testing.T) {
	node := NewDummyNode(1)
	clock := newFakeClock()
	e, _ := newTestEngine(t, node, clock)

	timed, err := e.RunTimed(context.Background(), lime2.Group2, 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, StateAcked, timed.On.State)
	require.NotNil(t, timed.Off)
	assert.Equal(t, StateAcked, timed.Off.State)
	assert.Equal(t, lime2.TransactionID(2), timed.Off.TransactionID)
	assert.False(t, node.Groups()[lime2.Group2])

	frames := node.Received()
	require.Len(t, frames, 6)
	assert.Equal(t, "TURNON_12", frames[0].String())
	assert.Equal(t, "TURNOFF22", frames[3].String())
	assert.Contains(t, clock.slept, 15*time.Minute)
}

func TestEngine_RunTimed_Interrupted(t *testing.T) {
	node := NewDummyNode(1)
	clock := newFakeClock()
	clock.interrupt = time.Hour
	e, _ := newTestEngine(t, node, clock)

	timed, err := e.RunTimed(context.Background(), lime2.Group1, time.Hour)
	require.NoError(t, err)
	require.NotNil(t, timed.Off)
	assert.Equal(t, StateAcked, timed.Off.State)
	assert.False(t, node.Groups()[lime2.Group1])
}

func TestEngine_RunTimed_NotOpened(t *testing.T) {
	transport := &scriptedTransport{}
	e, _ := newTestEngine(t, transport, newFakeClock())

	timed, err := e.RunTimed(context.Background(), lime2.Group1, time.Minute)
	assert.ErrorIs(t, err, ErrAckTimeout)
	assert.Nil(t, timed.Off)
	assert.Equal(t, "TURNON_11", transport.frames[0])
	for _, f := range transport.frames[1:] {
		assert.Equal(t, "STATUS_00", f)
	}
}

func TestEngine_Probe(t *testing.T) {
	node := NewDummyNode(0)
	e, seq := newTestEngine(t, node, newFakeClock())

	result, err := e.Probe(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Ack.Valid)
	assert.Nil(t, result.Battery)
	assert.Empty(t, result.Trimmed)

	_, err = e.Run(context.Background(), lime2.CommandNoop, 0)
	require.NoError(t, err)

	node.SetBatteryADC(42)
	result, err = e.Probe(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Ack.Matches(1))
	require.NotNil(t, result.Battery)
	assert.Equal(t, uint8(42), result.Battery.ADC)

	current, err := seq.Current()
	require.NoError(t, err)
	assert.Equal(t, 1, current, "probes do not consume transaction IDs")
}
