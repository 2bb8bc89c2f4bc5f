package lime2node

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecSpawner_Args(t *testing.T) {
	s := ExecSpawner{Backend: "lime2node"}
	assert.Equal(t, []string{"--spi-command", "TURNON", "--spi-command-parameter", "2"}, s.Args("TURNON", 2))

	s.OperationLog = "/var/log/op.log"
	s.Config = "/etc/lime2node/lime2node.yml"
	assert.Equal(t, []string{
		"--spi-command", "TURNON_WITH_TIMER",
		"--spi-command-parameter", "15",
		"--log-file", "/var/log/op.log",
		"--config", "/etc/lime2node/lime2node.yml",
	}, s.Args("TURNON_WITH_TIMER", 15))
}

func TestExecSpawner_Spawn(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}

	backend := filepath.Join(t.TempDir(), "lime2node")
	require.NoError(t, os.WriteFile(backend, []byte("#!/bin/sh\n[ \"$2\" = TURNON ] && exit 0\nexit 2\n"), 0o755))

	s := ExecSpawner{Backend: backend}

	code, err := s.Spawn(context.Background(), "TURNON", 1)
	require.NoError(t, err)
	assert.Equal(t, ExitAcked, code)

	code, err = s.Spawn(context.Background(), "TURNOFF", 1)
	require.NoError(t, err)
	assert.Equal(t, ExitUnconfirmed, code)

	code, err = ExecSpawner{Backend: filepath.Join(t.TempDir(), "missing")}.Spawn(context.Background(), "TURNON", 1)
	assert.Error(t, err)
	assert.Equal(t, ExitFailure, code)
}
