package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/f18m/lime2node"
	"github.com/mdouchement/logger"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"

	cpath  string
	listen string
)

func main() {
	cmd := &cobra.Command{
		Use:     "lime2noded",
		Short:   "Real-time relay between browsers and the lime2node backend",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		RunE:    daemon,
	}
	cmd.Flags().StringVarP(&cpath, "config", "c", lime2node.DefaultConfigPath, "Configfile path")
	cmd.Flags().StringVarP(&listen, "listen", "l", "", "Listen address (overrides config)")
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for lime2noded",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Println(cmd.Version)
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func daemon(_ *cobra.Command, args []string) error {
	cfg, err := lime2node.LoadOrDefault(cpath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Relay.Listen = listen
	}

	level := lime2node.ParseLogLevel(cfg.LogLevel)
	if cfg.Debug {
		level = slog.LevelDebug
	}

	var w io.Writer = os.Stdout
	if cfg.Relay.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.Relay.LogFile,
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     28, // days
			Compress:   true,
		}
		defer lj.Close()
		w = io.MultiWriter(os.Stdout, lj)
	}

	log := lime2node.NewFileLogger(w, level)
	ctx := logger.WithLogger(context.Background(), log)

	log.Infof("lime2noded version %s", version)

	spawner := lime2node.ExecSpawner{
		Backend:      cfg.Relay.Backend,
		OperationLog: cfg.Relay.OperationLog,
	}
	if _, err := os.Stat(cpath); err == nil {
		spawner.Config = cpath
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	relay := lime2node.NewRelay(cfg.Relay, spawner, log)
	relay.Launch(ctx)

	l, err := net.Listen("tcp", cfg.Relay.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	if err = relay.ListenAndServe(ctx, l); err != nil {
		log.WithError(err).Error("Could not serve relay")
		return err
	}

	log.Info("Gracefully shutdown")
	return nil
}
