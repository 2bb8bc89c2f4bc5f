package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/f18m/lime2node"
	showbattery "github.com/f18m/lime2node/cmd/lime2node/show_battery"
	"github.com/f18m/lime2node/cmd/lime2node/status"
	"github.com/f18m/lime2node/lime2"
	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath    string
	command  string
	param    int
	logfile  string
	loglevel string
	dummy    bool
)

func main() {
	cmd := &cobra.Command{
		Use:           "lime2node",
		Short:         "Send a command to the lime2 remote irrigation node and wait for its ACK",
		Version:       fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          send,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", lime2node.DefaultConfigPath, "Configfile path")
	cmd.Flags().StringVarP(&command, "spi-command", "", "TURNON", "Command to send: TURNON, TURNOFF, TURNON_WITH_TIMER or NOOP")
	cmd.Flags().IntVarP(&param, "spi-command-parameter", "", 1, "Channel group (1 or 2), or minutes (1-99) for TURNON_WITH_TIMER")
	cmd.Flags().StringVarP(&logfile, "log-file", "", "", "Log file, truncated at start; stdout if not provided")
	cmd.Flags().StringVarP(&loglevel, "log-level", "", "", "Log level: DEBUG, INFO or ALERT (overrides config)")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Use a simulated remote node")
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", lime2.ErrInvalidParameter, err)
	})
	cmd.AddCommand(status.Command())
	cmd.AddCommand(showbattery.Command())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for lime2node",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(lime2node.ExitCode(err))
	}
}

func send(_ *cobra.Command, _ []string) error {
	// Reject misuse before touching the bus.
	var cmd lime2.Command
	var timer time.Duration
	switch command {
	case lime2node.RelayTurnOnWithTimer:
		if param < 1 || param > 99 {
			return fmt.Errorf("%w: --spi-command-parameter %d: only values in range [1-99] are accepted", lime2.ErrInvalidParameter, param)
		}
		timer = time.Duration(param) * time.Minute
	case lime2node.RelayTurnOn, lime2node.RelayTurnOff, "NOOP":
		var err error
		cmd, err = lime2.ParseCommand(command)
		if err != nil {
			return err
		}
		if param < 0 || param > 9 {
			return fmt.Errorf("%w: --spi-command-parameter %d", lime2.ErrInvalidParameter, param)
		}
		if err = lime2.Validate(cmd, uint8(param)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: --spi-command %q: only TURNON, TURNOFF, TURNON_WITH_TIMER or NOOP are accepted", lime2.ErrInvalidCommand, command)
	}

	cfg, err := lime2node.LoadOrDefault(cpath)
	if err != nil {
		return err
	}
	if dummy {
		cfg.Transport.Kind = lime2node.TransportDummy
	}
	if loglevel == "" {
		loglevel = cfg.LogLevel
		if cfg.Debug {
			loglevel = "DEBUG"
		}
	}

	// The bus mutex is held for the whole invocation, the log of a running
	// operation must not be truncated by a busy one.
	log, closeLog, err := lime2node.OpenOperationLog(cfg.BusMutex(), logfile, lime2node.ParseLogLevel(loglevel))
	if errors.Is(err, lime2node.ErrBusy) {
		// Must reach the caller even when logging to a file.
		fmt.Println("Can't lock the SPI bus: another operation is ongoing. Aborting.")
		return err
	}
	if err != nil {
		return fmt.Errorf("log-file: %w", err)
	}
	defer closeLog()

	ctx := logger.WithLogger(context.Background(), log)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Infof("lime2node version %s", version)
	log.Info("Acquired lock on SPI bus... proceeding with command sequence")

	engine, closeTransport, err := lime2node.Open(cfg, log)
	if err != nil {
		log.WithError(err).Error("Could not open transport")
		return err
	}
	defer closeTransport()

	if timer > 0 {
		_, err = engine.RunTimed(ctx, lime2.Group2, timer)
	} else {
		_, err = engine.Run(ctx, cmd, uint8(param))
	}
	if err != nil {
		log.WithError(err).Error("Command sequence failed")
	}

	log.Info("Lime2Node backend: command sequence completed. Exiting.")
	return err
}
