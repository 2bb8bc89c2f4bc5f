package lime2node

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/f18m/lime2node/lime2"
	"go.yaml.in/yaml/v4"
)

const DefaultConfigPath = "/etc/lime2node/lime2node.yml"

const (
	TransportSpidev = "spidev"
	TransportSerial = "serial"
	TransportDummy  = "dummy"
)

type Config struct {
	Debug           bool               `yaml:"debug"`
	LogLevel        string             `yaml:"log_level"`
	TransactionFile string             `yaml:"transaction_file"`
	LockFile        string             `yaml:"lock_file"`
	AckTimeout      Duration           `yaml:"ack_timeout"`
	PollInterval    Duration           `yaml:"poll_interval"`
	Battery         lime2.BatteryModel `yaml:"battery"`
	Transport       TransportConfig    `yaml:"transport"`
	Relay           RelayConfig        `yaml:"relay"`
}

type TransportConfig struct {
	Kind       string `yaml:"kind"`
	Device     string `yaml:"device"`
	SpeedHz    int    `yaml:"speed_hz"`
	Sudo       bool   `yaml:"sudo"`
	Utility    string `yaml:"utility"`
	OutputFile string `yaml:"output_file"`
	SerialPort string `yaml:"serial_port"`
	BaudRate   int    `yaml:"baud_rate"`
	VID        string `yaml:"vid"`
	PID        string `yaml:"pid"`
	// DummyLatency is the number of STATUS probes before the dummy node ACKs.
	DummyLatency int `yaml:"dummy_latency"`
}

type RelayConfig struct {
	Listen       string  `yaml:"listen"`
	Backend      string  `yaml:"backend"`
	OperationLog string  `yaml:"operation_log"`
	LogFile      string  `yaml:"log_file"`
	Rate         float64 `yaml:"rate"`
	Burst        int     `yaml:"burst"`
	History      int     `yaml:"history"`
}

func DefaultConfig() Config {
	return Config{
		LogLevel:     "INFO",
		LockFile:     DefaultLockFile,
		AckTimeout:   Duration{DefaultAckTimeout},
		PollInterval: Duration{DefaultPollInterval},
		Battery:      lime2.DefaultBatteryModel(),
		Transport: TransportConfig{
			Kind:         TransportSpidev,
			Device:       lime2.DefaultSpidevDevice,
			SpeedHz:      lime2.DefaultSpidevSpeedHz,
			Sudo:         true,
			Utility:      lime2.DefaultSpidevUtility,
			OutputFile:   lime2.DefaultSpidevOutput,
			SerialPort:   "auto",
			BaudRate:     lime2.DefaultBaudRate,
			DummyLatency: 1,
		},
		Relay: RelayConfig{
			Listen:       ":8080",
			Backend:      "lime2node",
			OperationLog: "/var/log/lime2node_last_operation.log",
			Rate:         1,
			Burst:        2,
			History:      20,
		},
	}
}

// Load reads the YAML file at path on top of the defaults.
func Load(path string) (Config, error) {
	c := DefaultConfig()

	f, err := os.Open(path)
	if err != nil {
		return c, err
	}
	defer f.Close()

	codec := yaml.NewDecoder(f)
	err = codec.Decode(&c)
	if err != nil && !errors.Is(err, io.EOF) {
		return c, err
	}

	return c, c.Validate()
}

// LoadOrDefault is like Load but returns the defaults when path does not exist.
func LoadOrDefault(path string) (Config, error) {
	c, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}
	return c, err
}

func (c Config) Validate() error {
	if c.AckTimeout.Duration <= 0 {
		return errors.New("ack_timeout: must be positive")
	}
	if c.PollInterval.Duration <= 0 {
		return errors.New("poll_interval: must be positive")
	}
	if c.Battery.MaxVoltage <= 0 {
		return errors.New("battery.max_voltage: must be positive")
	}

	switch c.Transport.Kind {
	case TransportSpidev:
		if c.Transport.Device == "" {
			return errors.New("transport.device: required by spidev transport")
		}
	case TransportSerial:
		if c.Transport.SerialPort == "auto" && (c.Transport.VID == "" || c.Transport.PID == "") {
			return errors.New("transport.serial_port: auto discovery requires vid and pid")
		}
	case TransportDummy:
	default:
		return fmt.Errorf("transport.kind: unknown %q", c.Transport.Kind)
	}

	if c.Relay.Rate < 0 || c.Relay.Burst < 0 {
		return errors.New("relay: rate and burst must not be negative")
	}

	switch strings.ToUpper(c.LogLevel) {
	case "", "DEBUG", "INFO", "ALERT":
	default:
		return fmt.Errorf("log_level: unknown %q", c.LogLevel)
	}

	return nil
}

// Sequencer returns the transaction sequencer configured for this node.
func (c Config) Sequencer() *Sequencer {
	return NewSequencer(c.TransactionFile)
}

// BusMutex returns the mutex guarding the configured bus.
func (c Config) BusMutex() BusMutex {
	return NewBusMutex(c.LockFile)
}

// EngineOptions returns the options matching the configuration.
func (c Config) EngineOptions() []Option {
	return []Option{
		WithAckTimeout(c.AckTimeout.Duration),
		WithPollInterval(c.PollInterval.Duration),
		WithBatteryModel(c.Battery),
	}
}
