package status

import (
	"context"
	"fmt"
	"os"

	"github.com/f18m/lime2node"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var cpath string
	var dummy bool
	var debug bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Send a single STATUS probe and show the remote node reply",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := lime2node.LoadOrDefault(cpath)
			if err != nil {
				return err
			}
			if dummy {
				cfg.Transport.Kind = lime2node.TransportDummy
			}

			level := lime2node.ParseLogLevel(cfg.LogLevel)
			if debug {
				level = lime2node.ParseLogLevel("DEBUG")
			}
			log := lime2node.NewConsoleLogger(os.Stderr, level)

			// Probing clocks the node reply buffer out, do not interleave with a running command.
			lock, err := cfg.BusMutex().TryAcquire()
			if err != nil {
				return err
			}
			defer lock.Release()

			engine, closeTransport, err := lime2node.Open(cfg, log)
			if err != nil {
				return err
			}
			defer closeTransport()

			result, err := engine.Probe(context.Background())
			if err != nil {
				return err
			}

			current, err := cfg.Sequencer().Current()
			if err != nil {
				return err
			}

			fmt.Printf("Reply:             % X (%dB, %dB trimmed)\n", result.Raw, len(result.Raw), len(result.Trimmed))
			fmt.Printf("Valid ACK:         %t\n", result.Ack.Valid)
			if result.Ack.Valid {
				fmt.Printf("ACK'ed TID:        %q\n", result.Ack.TID)
				fmt.Printf("Battery:           %.3fV - %.1f%% (%d ADC counts)\n",
					result.Battery.Voltage, result.Battery.Percentage, result.Battery.ADC)
			}
			fmt.Printf("Last sent TID:     %d (%s)\n", current, cfg.Sequencer().Path())

			return nil
		},
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", lime2node.DefaultConfigPath, "Configfile path")
	cmd.Flags().BoolVarP(&dummy, "dummy", "", false, "Use a simulated remote node")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logs")

	return cmd
}
