package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// setupLog opens logPath (creating parent directories as needed) and
// returns a logger writing to it with a time-of-day (HH:MM:SS) prefix: one
// log file per run, named by the caller rather than by a generated
// run id, since charon's invocations are direct rather than
// pipeline-orchestrated.
func setupLog(logPath string, verbosity int) (*log.Logger, *os.File, error) {
	if dir := filepath.Dir(logPath); dir != "." {
		if err := os.MkdirAll(dir, 0o770); err != nil {
			return nil, nil, fmt.Errorf("charon: creating log dir %s: %w", dir, err)
		}
	}
	fid, err := os.Create(logPath)
	if err != nil {
		return nil, nil, fmt.Errorf("charon: creating log file %s: %w", logPath, err)
	}
	logger := log.New(fid, "", log.Ltime)
	logger.Printf("verbosity=%d", verbosity)
	return logger, fid, nil
}

// newRunTempDir allocates a uuid-named scratch directory under base,
// minting a fresh tmp/<uuid> per run.
func newRunTempDir(base string) (string, error) {
	id, err := uuid.NewUUID()
	if err != nil {
		return "", fmt.Errorf("charon: generating temp dir name: %w", err)
	}
	dir := filepath.Join(base, id.String())
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("charon: creating temp dir %s: %w", dir, err)
	}
	return dir, nil
}
