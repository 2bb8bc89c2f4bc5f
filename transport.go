package lime2node

import (
	"fmt"

	"github.com/f18m/lime2node/lime2"
	"github.com/mdouchement/logger"
)

// OpenTransport builds the transport described by cfg.
// The returned close function must be called once done with the bus.
func OpenTransport(cfg TransportConfig, log logger.Logger) (lime2.Transport, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Kind {
	case TransportSpidev, "":
		t := lime2.NewSpidevTransport(lime2.SpidevOption{
			Utility:    cfg.Utility,
			Device:     cfg.Device,
			SpeedHz:    cfg.SpeedHz,
			OutputFile: cfg.OutputFile,
			Sudo:       cfg.Sudo,
		})
		t.SetLogger(log)
		return t, noop, nil
	case TransportSerial:
		var t *lime2.SerialTransport
		var err error
		if cfg.SerialPort == "" || cfg.SerialPort == "auto" {
			t, err = lime2.OpenSerialAuto(cfg.VID, cfg.PID, cfg.BaudRate)
		} else {
			t, err = lime2.OpenSerial(cfg.SerialPort, cfg.BaudRate)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("serial: %w", err)
		}
		log.Infof("Serial bridge port `%s`", t.Port())
		t.SetLogger(log)
		return t, t.Close, nil
	case TransportDummy:
		n := NewDummyNode(cfg.DummyLatency)
		n.SetLogger(log)
		return n, noop, nil
	default:
		return nil, nil, fmt.Errorf("transport: unknown kind %q", cfg.Kind)
	}
}

// Open builds the engine described by cfg. The returned close function
// releases the transport.
func Open(cfg Config, log logger.Logger) (*Engine, func() error, error) {
	transport, closeFn, err := OpenTransport(cfg.Transport, log)
	if err != nil {
		return nil, nil, err
	}

	opts := append(cfg.EngineOptions(), WithLogger(log))
	return NewEngine(transport, cfg.Sequencer(), opts...), closeFn, nil
}
