// Package artifact persists account lists as JSON arrays of
// [address, record] pairs.
package artifact

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mezonai/balances-maintenance/jsonx"
	"github.com/mezonai/balances-maintenance/logx"
	"github.com/mezonai/balances-maintenance/types"
)

const (
	FailedInvariantsFile = "accounts-with-failed-invariants.json"
	DustAccountsFile     = "dust-accounts.json"
)

type Writer struct {
	dir string
	log *logx.Logger
}

// NewWriter writes into dir; an empty dir means the working directory.
func NewWriter(dir string, log *logx.Logger) *Writer {
	return &Writer{dir: dir, log: log}
}

func (w *Writer) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// Write replaces the named file with entries. A nil slice is written as [].
func (w *Writer) Write(name string, entries []types.AccountEntry) (string, error) {
	if entries == nil {
		entries = []types.AccountEntry{}
	}
	if w.dir != "" {
		if err := os.MkdirAll(w.dir, 0o755); err != nil {
			return "", fmt.Errorf("create artifact dir: %w", err)
		}
	}

	path := w.Path(name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	buf := bufio.NewWriter(f)
	if err := jsonx.NewEncoder(buf).Encode(entries); err != nil {
		return "", fmt.Errorf("encode %s: %w", path, err)
	}
	if err := buf.Flush(); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", path, err)
	}

	w.log.Infof("ARTIFACT", "Wrote file '%s'", path)
	return path, nil
}

// Read loads an artifact written by Write.
func Read(path string) ([]types.AccountEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []types.AccountEntry
	if err := jsonx.NewDecoder(bufio.NewReader(f)).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return entries, nil
}
