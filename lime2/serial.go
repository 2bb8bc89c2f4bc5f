package lime2

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/mdouchement/logger"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

const (
	DefaultBaudRate = 115200
	serialRxBufLen  = 64
)

// A SerialTransport talks to a node attached through a USB-UART bridge that
// forwards frames to the radio module. The bridge answers each frame with
// the content of the node reply buffer, exactly like a SPI transfer does.
type SerialTransport struct {
	sync   sync.Mutex
	pname  string
	serial serial.Port
	log    logger.Logger
	rbuf   []byte
}

// OpenSerialAuto looks for the first port matching the given USB VID/PID.
func OpenSerialAuto(vid, pid string, baudrate int) (*SerialTransport, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, err
	}

	var port *enumerator.PortDetails
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if strings.EqualFold(p.VID, vid) && strings.EqualFold(p.PID, pid) {
			port = p
			break
		}
	}
	if port == nil {
		return nil, fmt.Errorf("%w: %s:%s", ErrNotFound, vid, pid)
	}

	return OpenSerial(port.Name, baudrate)
}

func OpenSerial(port string, baudrate int) (*SerialTransport, error) {
	if baudrate <= 0 {
		baudrate = DefaultBaudRate
	}

	t := &SerialTransport{
		pname: port,
		rbuf:  make([]byte, serialRxBufLen),
	}

	var err error
	t.serial, err = serial.Open(port, &serial.Mode{
		BaudRate: baudrate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}

	if err = t.serial.SetReadTimeout(200 * time.Millisecond); err != nil {
		t.serial.Close()
		return nil, err
	}

	if err = t.serial.ResetInputBuffer(); err != nil {
		t.serial.Close()
		return nil, err
	}

	if err = t.serial.ResetOutputBuffer(); err != nil {
		t.serial.Close()
		return nil, err
	}

	return t, nil
}

func (t *SerialTransport) SetLogger(l logger.Logger) {
	t.log = l
}

func (t *SerialTransport) Port() string {
	return t.pname
}

func (t *SerialTransport) Close() error {
	if err := t.serial.ResetInputBuffer(); err != nil {
		return err
	}

	if err := t.serial.ResetOutputBuffer(); err != nil {
		return err
	}

	return t.serial.Close()
}

func (t *SerialTransport) Transfer(ctx context.Context, frame []byte) ([]byte, error) {
	t.sync.Lock()
	defer t.sync.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}

	n, err := t.serial.Write(frame)
	if err != nil {
		return nil, &TransportError{Op: "write", Err: err}
	}
	if n != len(frame) {
		return nil, &TransportError{Op: "write", Err: fmt.Errorf("short write: %d of %d", n, len(frame))}
	}

	var reply []byte
	for {
		if err := ctx.Err(); err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}

		n, err = t.serial.Read(t.rbuf)
		if err != nil {
			return nil, &TransportError{Op: "read", Err: err}
		}

		// A read timeout returns 0 bytes, the bridge is done talking.
		if n == 0 {
			break
		}

		reply = append(reply, t.rbuf[:n]...)
		if len(reply) >= FrameLength {
			break
		}
	}

	if t.log != nil {
		t.log.Debugf("%s: %q => %q", t.pname, frame, reply)
	}

	return reply, nil
}
