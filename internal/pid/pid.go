// Package pid guards watch mode against concurrent monitor processes
// writing the same history database.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	"codeberg.org/mutker/pgmon/internal/errors"
)

const (
	pidFile = "pgmon.pid"
)

// Write records the current process ID. When a previous file names a
// process that is still alive it returns ErrAlreadyRunning; stale or
// unreadable files are overwritten.
func Write() error {
	errFactory := errors.New()
	path := filepath.Join(os.TempDir(), pidFile)

	if bytes, err := os.ReadFile(path); err == nil {
		if pid, err := strconv.Atoi(string(bytes)); err == nil {
			if process, err := os.FindProcess(pid); err == nil {
				if process.Signal(syscall.Signal(0)) == nil {
					return errFactory.WithData(errors.ErrAlreadyRunning, struct {
						PID int
					}{
						PID: pid,
					})
				}
			}
		}
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove deletes the PID file. A missing file is not an error.
func Remove() error {
	errFactory := errors.New()
	path := filepath.Join(os.TempDir(), pidFile)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	if err := os.Remove(path); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}
