package lime2node

import (
	"io"
	"time"

	"github.com/f18m/lime2node/lime2"
	"github.com/mdouchement/logger"
)

const (
	DefaultAckTimeout   = 30 * time.Second
	DefaultPollInterval = 2 * time.Second
)

type engineConfig struct {
	log          logger.Logger
	clock        Clock
	ackTimeout   time.Duration
	pollInterval time.Duration
	battery      lime2.BatteryModel
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		log:          DiscardLogger(),
		clock:        WallClock(),
		ackTimeout:   DefaultAckTimeout,
		pollInterval: DefaultPollInterval,
		battery:      lime2.DefaultBatteryModel(),
	}
}

// Option is a functional option for configuring the Engine.
type Option func(*engineConfig)

func WithLogger(l logger.Logger) Option {
	return func(c *engineConfig) {
		if l != nil {
			c.log = l
		}
	}
}

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clock Clock) Option {
	return func(c *engineConfig) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithAckTimeout bounds the time spent polling for an ACK.
func WithAckTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.ackTimeout = d
		}
	}
}

// WithPollInterval sets the pause between two STATUS probes.
func WithPollInterval(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithBatteryModel(m lime2.BatteryModel) Option {
	return func(c *engineConfig) {
		c.battery = m
	}
}

// DiscardLogger returns a logger writing nowhere.
func DiscardLogger() logger.Logger {
	return logger.WrapSlogHandler(logger.NewSlogTextHandler(io.Discard, &logger.SlogTextOption{}))
}
