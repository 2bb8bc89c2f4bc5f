package lime2

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/mdouchement/logger"
)

const (
	DefaultSpidevUtility = "spidev_test"
	DefaultSpidevDevice  = "/dev/spidev2.0"
	DefaultSpidevSpeedHz = 5000
	DefaultSpidevOutput  = "/tmp/last_spi_reply"
)

type SpidevOption struct {
	Utility    string
	Device     string
	SpeedHz    int
	OutputFile string
	// Sudo prefixes the invocation, SPI access requires root permissions.
	Sudo bool
}

// A SpidevTransport shells out to the spidev_test utility and reads back the
// raw reply it dumped in its output file.
type SpidevTransport struct {
	opt SpidevOption
	log logger.Logger
}

func NewSpidevTransport(opt SpidevOption) *SpidevTransport {
	if opt.Utility == "" {
		opt.Utility = DefaultSpidevUtility
	}
	if opt.Device == "" {
		opt.Device = DefaultSpidevDevice
	}
	if opt.SpeedHz <= 0 {
		opt.SpeedHz = DefaultSpidevSpeedHz
	}
	if opt.OutputFile == "" {
		opt.OutputFile = DefaultSpidevOutput
	}

	return &SpidevTransport{opt: opt}
}

func (t *SpidevTransport) SetLogger(l logger.Logger) {
	t.log = l
}

func (t *SpidevTransport) Args(frame []byte) (string, []string) {
	args := []string{
		"-D", t.opt.Device,
		"-s", strconv.Itoa(t.opt.SpeedHz),
		"-v",
		"-p", string(frame),
		"--output", t.opt.OutputFile,
	}

	if t.opt.Sudo {
		return "sudo", append([]string{t.opt.Utility}, args...)
	}
	return t.opt.Utility, args
}

func (t *SpidevTransport) Transfer(ctx context.Context, frame []byte) ([]byte, error) {
	// A stale reply from a previous transfer must never be read back.
	if err := os.Remove(t.opt.OutputFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &TransportError{Op: "cleanup", Err: err}
	}

	name, args := t.Args(frame)
	cmd := exec.CommandContext(ctx, name, args...)
	if t.log != nil {
		t.log.Debug(cmd.String())
	}

	output, err := cmd.CombinedOutput()
	if err != nil {
		return nil, &TransportError{
			Op:  "exec",
			Err: fmt.Errorf("%s exited with %w: %s", t.opt.Utility, err, bytes.TrimSpace(output)),
		}
	}
	if t.log != nil {
		for p := range bytes.SplitSeq(output, []byte{'\n'}) {
			if len(p) == 0 {
				continue
			}
			t.log.Debug(string(p))
		}
	}

	reply, err := os.ReadFile(t.opt.OutputFile)
	if err != nil {
		return nil, &TransportError{Op: "read", Err: err}
	}

	return reply, nil
}
