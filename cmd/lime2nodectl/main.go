package main

import (
	"bufio"
	"fmt"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/f18m/lime2node/cmd/lime2nodectl/monitor"
	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v4"
)

var (
	version  = "dev"
	revision = "none"
	date     = "unknown"
)

func main() {
	client := &http.Client{}
	var addr string

	cmd := &cobra.Command{
		Use:     "lime2nodectl",
		Short:   "A ctl used to interact with lime2noded",
		Version: fmt.Sprintf("%s - build %.7s @ %s - %s", version, revision, date, runtime.Version()),
		Args:    cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				return nil
			}

			var err error
			addr, err = findRelay()
			return err
		},
	}
	cmd.PersistentFlags().StringVarP(&addr, "relay", "r", "", "Relay base URL (e.g. http://lime2:8080)")
	cmd.AddCommand(monitor.Command(client, func() string { return addr }))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Version for lime2nodectl",
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

//
//
//

type config struct {
	Relay string `yaml:"relay"`
}

func findRelay() (string, error) {
	u, err := user.Current()
	if err != nil {
		return "", err
	}

	var cfg config
	cpath := filepath.Join(u.HomeDir, ".config", "lime2nodectl", "lime2nodectl.yml")
	if p, err := os.ReadFile(cpath); err == nil {
		if err = yaml.Unmarshal(p, &cfg); err != nil {
			return "", err
		}

		if cfg.Relay != "" {
			return cfg.Relay, nil
		}
	}

	fmt.Print("Enter the relay URL: ")
	r := bufio.NewReader(os.Stdin)
	relay, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}

	relay = strings.TrimRight(strings.TrimSpace(relay), "/")
	if !strings.Contains(relay, "://") {
		relay = "http://" + relay
	}

	if err = os.MkdirAll(filepath.Dir(cpath), 0o755); err != nil {
		return "", err
	}

	cfg.Relay = relay
	p, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	return relay, os.WriteFile(cpath, p, 0o600)
}
