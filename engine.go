package lime2node

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/f18m/lime2node/lime2"
	"github.com/mdouchement/logger"
)

// ErrAckTimeout means the command was sent but never confirmed. It may have
// taken effect on the remote node anyway.
var ErrAckTimeout = errors.New("no valid ACK received: command unconfirmed")

type State uint8

const (
	StateIdle State = iota
	StateSending
	StateAwaitingAck
	StateAcked
	StateTimedOut
	StateTransportFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateAwaitingAck:
		return "awaiting-ack"
	case StateAcked:
		return "acked"
	case StateTimedOut:
		return "timed-out"
	case StateTransportFailed:
		return "transport-failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

type SendResult struct {
	State         State
	TransactionID lime2.TransactionID
	Frame         lime2.Frame
}

type AckOutcome struct {
	State State
	// LastAck is the last parsed reply, useful to report a stale ACK.
	LastAck lime2.Ack
	Battery *lime2.Battery
	Probes  int
	Elapsed time.Duration
	Err     error
}

// Outcome of a full command cycle.
type Outcome struct {
	Command       lime2.Command
	Parameter     uint8
	TransactionID lime2.TransactionID
	State         State
	Battery       *lime2.Battery
	Probes        int
	Elapsed       time.Duration
	err           error
}

// Err maps the final state onto the error taxonomy: nil when acked,
// ErrAckTimeout when unconfirmed, a *lime2.TransportError on bus failure.
func (o Outcome) Err() error {
	return o.err
}

// Unconfirmed reports whether the command was sent but not acknowledged.
func (o Outcome) Unconfirmed() bool {
	return o.State == StateTimedOut
}

type ProbeResult struct {
	Raw     []byte
	Trimmed []byte
	Ack     lime2.Ack
	Battery *lime2.Battery
}

// An Engine runs the command/ACK protocol with the remote node.
// It is not safe for concurrent use: one in-flight command per process,
// cross-process serialization is the BusMutex's job.
type Engine struct {
	transport lime2.Transport
	sequencer TransactionSequencer
	log       logger.Logger
	clock     Clock
	timeout   time.Duration
	interval  time.Duration
	battery   lime2.BatteryModel
}

func NewEngine(transport lime2.Transport, sequencer TransactionSequencer, opts ...Option) *Engine {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Engine{
		transport: transport,
		sequencer: sequencer,
		log:       cfg.log,
		clock:     cfg.clock,
		timeout:   cfg.ackTimeout,
		interval:  cfg.pollInterval,
		battery:   cfg.battery,
	}
}

// SendCommand consumes a transaction ID and sends the command frame once.
// Invalid commands are rejected before any bus activity.
func (e *Engine) SendCommand(ctx context.Context, cmd lime2.Command, param uint8) (SendResult, error) {
	result := SendResult{State: StateIdle}

	if cmd == lime2.CommandStatus {
		return result, fmt.Errorf("%w: STATUS is a probe, not a command", lime2.ErrInvalidCommand)
	}
	if err := lime2.Validate(cmd, param); err != nil {
		return result, err
	}

	tid, err := e.sequencer.Next()
	if err != nil {
		return result, err
	}
	result.TransactionID = tid

	result.Frame, err = lime2.Encode(cmd, tid, param)
	if err != nil {
		return result, err
	}

	result.State = StateSending
	e.log.Debugf("Sending command over SPI: %s with transaction ID=%d and parameter=%d", cmd, tid, param)

	if _, err = e.transport.Transfer(ctx, result.Frame.Bytes()); err != nil {
		result.State = StateTransportFailed
		e.log.WithError(err).Debug("Failed sending command")
		return result, asTransportError("send", err)
	}

	result.State = StateAwaitingAck
	return result, nil
}

// WaitForAck polls the node with STATUS probes until it acknowledges tid or
// the ACK timeout elapses.
func (e *Engine) WaitForAck(ctx context.Context, tid lime2.TransactionID) AckOutcome {
	out := AckOutcome{State: StateAwaitingAck}
	start := e.clock.Now()

	// The first reply reflects the bus state from before the command just
	// sent, it is meaningless.
	if _, err := e.probe(ctx); err != nil {
		out.State = StateTransportFailed
		out.Err = err
		return out
	}

	for {
		if err := e.clock.Sleep(ctx, e.interval); err != nil {
			out.State = StateTimedOut
			out.Elapsed = e.clock.Now().Sub(start)
			out.Err = fmt.Errorf("%w: %w", ErrAckTimeout, err)
			return out
		}

		reply, err := e.probe(ctx)
		out.Probes++
		if err != nil {
			out.State = StateTransportFailed
			out.Elapsed = e.clock.Now().Sub(start)
			out.Err = err
			return out
		}

		ack := lime2.ParseAck(reply)
		out.LastAck = ack
		out.Elapsed = e.clock.Now().Sub(start)

		if ack.Matches(tid) {
			battery := e.battery.Reading(ack.BatteryADC)
			out.State = StateAcked
			out.Battery = &battery
			e.log.Debugf("Received valid ACK; last ACK'ed transaction ID=%d. %s", tid, battery)
			return out
		}

		if ack.Valid {
			e.log.Debugf("Received ACK for a previous transaction ID %s while waiting for ACK of ID %d", printableTID(ack.TID), tid)
		}

		if out.Elapsed > e.timeout {
			e.log.Debugf("After %s still no valid ACK received for transaction ID=%d (last ACK'ed transaction ID=%s). Aborting.",
				out.Elapsed.Round(time.Millisecond), tid, printableTID(ack.TID))
			out.State = StateTimedOut
			out.Err = ErrAckTimeout
			return out
		}
	}
}

// Run sends the command and waits for its ACK.
func (e *Engine) Run(ctx context.Context, cmd lime2.Command, param uint8) (Outcome, error) {
	outcome := Outcome{
		Command:   cmd,
		Parameter: param,
		State:     StateIdle,
	}

	e.log.Infof("Sending %s command (with param=%d) to remote node...", cmd, param)
	sent, err := e.SendCommand(ctx, cmd, param)
	outcome.TransactionID = sent.TransactionID
	outcome.State = sent.State
	if err != nil {
		outcome.err = err
		if sent.State == StateTransportFailed {
			e.log.Info("Command TX over SPI failed. Aborting.")
		}
		return outcome, err
	}

	e.log.Infof("Command was sent successfully with tid=%d. Waiting for the ACK from the remote node...", sent.TransactionID)
	ack := e.WaitForAck(ctx, sent.TransactionID)
	outcome.State = ack.State
	outcome.Battery = ack.Battery
	outcome.Probes = ack.Probes
	outcome.Elapsed = ack.Elapsed
	outcome.err = ack.Err

	switch ack.State {
	case StateAcked:
		e.log.Infof("Successfully received the ACK from the remote node! %s", ack.Battery)
	case StateTimedOut:
		e.log.Warnf("Failed waiting for the ACK after %s: %s may or may not have been applied", ack.Elapsed.Round(time.Second), cmd)
	case StateTransportFailed:
		e.log.WithError(ack.Err).Error("STATUS probe failed while waiting for the ACK")
	}

	return outcome, outcome.err
}

// Execute runs the command while holding the bus mutex. It fails
// immediately with ErrBusy when another operation is in flight.
func (e *Engine) Execute(ctx context.Context, mutex BusMutex, cmd lime2.Command, param uint8) (Outcome, error) {
	lock, err := mutex.TryAcquire()
	if err != nil {
		return Outcome{Command: cmd, Parameter: param, State: StateIdle, err: err}, err
	}
	defer e.release(lock)

	e.log.Info("Acquired lock on SPI bus... proceeding with command sequence")
	return e.Run(ctx, cmd, param)
}

type TimedOutcome struct {
	On  Outcome
	Off *Outcome
}

// RunTimed opens the given valve group, keeps it open for d, then closes it.
// Nothing is closed when the opening was not acknowledged.
func (e *Engine) RunTimed(ctx context.Context, group uint8, d time.Duration) (TimedOutcome, error) {
	var timed TimedOutcome
	var err error

	timed.On, err = e.Run(ctx, lime2.CommandTurnOn, group)
	if err != nil {
		return timed, fmt.Errorf("turn on: %w", err)
	}

	e.log.Infof("Now sleeping for %s before sending TURNOFF command", d)
	if err = e.clock.Sleep(ctx, d); err != nil {
		e.log.WithError(err).Warnf("Timer interrupted, sending %s command now", lime2.CommandTurnOff)
		// The valve must not stay open because the timer was cancelled.
		ctx = context.WithoutCancel(ctx)
	}

	off, err := e.Run(ctx, lime2.CommandTurnOff, group)
	timed.Off = &off
	if err != nil {
		return timed, fmt.Errorf("turn off: %w", err)
	}

	return timed, nil
}

// ExecuteTimed is RunTimed under the bus mutex, held for the whole sequence.
func (e *Engine) ExecuteTimed(ctx context.Context, mutex BusMutex, group uint8, d time.Duration) (TimedOutcome, error) {
	lock, err := mutex.TryAcquire()
	if err != nil {
		return TimedOutcome{}, err
	}
	defer e.release(lock)

	e.log.Info("Acquired lock on SPI bus... proceeding with timed command sequence")
	return e.RunTimed(ctx, group, d)
}

// Probe sends a single STATUS probe and decodes the reply.
// It does not consume a transaction ID.
func (e *Engine) Probe(ctx context.Context) (ProbeResult, error) {
	var result ProbeResult

	raw, err := e.transport.Transfer(ctx, lime2.StatusFrame().Bytes())
	if err != nil {
		return result, asTransportError("status", err)
	}

	result.Raw = raw
	result.Trimmed = lime2.TrimNulls(raw)
	result.Ack = lime2.ParseAck(result.Trimmed)
	if result.Ack.Valid {
		battery := e.battery.Reading(result.Ack.BatteryADC)
		result.Battery = &battery
	}

	return result, nil
}

func (e *Engine) probe(ctx context.Context) ([]byte, error) {
	raw, err := e.transport.Transfer(ctx, lime2.StatusFrame().Bytes())
	if err != nil {
		e.log.WithError(err).Debug("Failed sending STATUS probe")
		return nil, asTransportError("status", err)
	}

	reply := lime2.TrimNulls(raw)
	e.log.Debugf("Received a reply over SPI that is %dB long", len(reply))
	return reply, nil
}

func (e *Engine) release(lock BusLock) {
	if err := lock.Release(); err != nil {
		e.log.WithError(err).Error("Could not release SPI bus lock")
	}
}

func asTransportError(op string, err error) error {
	if lime2.IsTransportError(err) {
		return err
	}
	return &lime2.TransportError{Op: op, Err: err}
}

func printableTID(b byte) string {
	if tid, ok := lime2.TransactionIDFromWire(b); ok {
		return fmt.Sprint(tid)
	}
	return fmt.Sprintf("0x%02X", b)
}
