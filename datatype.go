package lime2node

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	OperationPending     = "pending"
	OperationRunning     = "running"
	OperationAcked       = "acked"
	OperationUnconfirmed = "unconfirmed"
	OperationBusy        = "busy"
	OperationRejected    = "rejected"
	OperationFailed      = "failed"
)

// Relay commands as sent by the browser.
const (
	RelayTurnOn          = "TURNON"
	RelayTurnOff         = "TURNOFF"
	RelayTurnOnWithTimer = "TURNON_WITH_TIMER"
	RelayGetUpdate       = "GET_UPDATE"
)

// An Operation is one backend process spawned by the relay.
type Operation struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Parameter  int       `json:"parameter"`
	State      string    `json:"state"`
	ExitCode   int       `json:"exit_code"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}

func (o Operation) Done() bool {
	return !o.FinishedAt.IsZero()
}

// A RelayRequest is either a bare text command (TURNON) or the JSON object
// {"command": "TURNON", "commandParameter": "2"}.
type RelayRequest struct {
	Command   string          `json:"command"`
	Parameter json.RawMessage `json:"commandParameter,omitempty"`
}

func ParseRelayRequest(p []byte) RelayRequest {
	var r RelayRequest
	if err := json.Unmarshal(p, &r); err == nil && r.Command != "" {
		r.Command = strings.ToUpper(strings.TrimSpace(r.Command))
		return r
	}

	fields := strings.Fields(string(p))
	if len(fields) == 0 {
		return RelayRequest{}
	}

	r.Command = strings.ToUpper(fields[0])
	if len(fields) > 1 {
		r.Parameter = json.RawMessage(fields[1])
	}
	return r
}

// Param returns the numeric parameter, accepting both "2" and 2, or fallback.
func (r RelayRequest) Param(fallback int) (int, error) {
	if len(r.Parameter) == 0 {
		return fallback, nil
	}

	var n json.Number
	if err := json.Unmarshal(r.Parameter, &n); err != nil {
		var s string
		if err := json.Unmarshal(r.Parameter, &s); err != nil {
			n = json.Number(r.Parameter)
		} else {
			n = json.Number(s)
		}
	}

	v, err := n.Int64()
	if err != nil {
		return 0, err
	}
	return int(v), nil
}

const (
	eventUpdateOperation = "update-operation"
	eventWatch           = "watch"
	eventUnwatch         = "unwatch"
	eventSnapshot        = "snapshot"
)

type event struct {
	name      string
	operation Operation
	monitorID int64
	monitor   chan<- []byte
	snapshot  chan<- []Operation
}

func genID() int64 {
	time.Sleep(time.Nanosecond)
	return time.Now().UnixNano()
}

func ToPtr[T any](v T) *T {
	return &v
}
