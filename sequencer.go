package lime2node

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/f18m/lime2node/environment"
	"github.com/f18m/lime2node/lime2"
)

const TransactionFilename = "last_spi_transaction_id"

// TransactionSequencer hands out the transaction ID of each logical command.
type TransactionSequencer interface {
	Next() (lime2.TransactionID, error)
}

// A Sequencer persists the last used transaction ID as a decimal integer in
// a single text file so the sequence survives across invocations.
// It assumes a single writer at a time, the bus mutex holder.
type Sequencer struct {
	path string
}

// NewSequencer uses DefaultTransactionFile when path is empty.
func NewSequencer(path string) *Sequencer {
	if path == "" {
		path = DefaultTransactionFile()
	}
	return &Sequencer{path: path}
}

// DefaultTransactionFile lives in the user's home, or /tmp as fallback.
func DefaultTransactionFile() string {
	return environment.HomePath(TransactionFilename)
}

func (s *Sequencer) Path() string {
	return s.path
}

// Current returns the persisted value, 0 when the file does not exist yet.
func (s *Sequencer) Current() (int, error) {
	p, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("sequencer: %w", err)
	}

	v, err := strconv.Atoi(strings.TrimSpace(string(p)))
	if err != nil {
		// A corrupted counter restarts the sequence.
		return 0, nil
	}

	return v, nil
}

// Next advances the counter, wrapping 9 to 1, persists it and returns it.
func (s *Sequencer) Next() (lime2.TransactionID, error) {
	v, err := s.Current()
	if err != nil {
		return 0, err
	}

	v++
	if v < int(lime2.FirstTransactionID) || v > int(lime2.LastTransactionID) {
		v = int(lime2.FirstTransactionID)
	}

	if err = os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, fmt.Errorf("sequencer: %w", err)
	}

	if err = os.WriteFile(s.path, []byte(strconv.Itoa(v)), 0o644); err != nil {
		return 0, fmt.Errorf("sequencer: %w", err)
	}

	return lime2.TransactionID(v), nil
}
