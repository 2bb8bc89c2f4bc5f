package lime2node

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
)

// A Spawner runs one backend process per relayed command and returns its
// exit code. The backend owns the bus mutex, never the relay.
type Spawner interface {
	Spawn(ctx context.Context, command string, param int) (int, error)
}

type SpawnerFunc func(ctx context.Context, command string, param int) (int, error)

func (f SpawnerFunc) Spawn(ctx context.Context, command string, param int) (int, error) {
	return f(ctx, command, param)
}

// An ExecSpawner invokes the lime2node binary.
type ExecSpawner struct {
	Backend      string
	Config       string
	OperationLog string
}

func (s ExecSpawner) Args(command string, param int) []string {
	args := []string{
		"--spi-command", command,
		"--spi-command-parameter", strconv.Itoa(param),
	}
	if s.OperationLog != "" {
		args = append(args, "--log-file", s.OperationLog)
	}
	if s.Config != "" {
		args = append(args, "--config", s.Config)
	}
	return args
}

func (s ExecSpawner) Spawn(ctx context.Context, command string, param int) (int, error) {
	cmd := exec.CommandContext(ctx, s.Backend, s.Args(command, param)...)

	err := cmd.Run()
	var exit *exec.ExitError
	if errors.As(err, &exit) {
		return exit.ExitCode(), nil
	}
	if err != nil {
		return ExitFailure, err
	}
	return ExitAcked, nil
}
