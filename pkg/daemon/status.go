package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Startup states written to the status file.
const (
	StatusReady = "ready"
	StatusError = "error"
)

// ErrStartupFailed wraps the error pkgsized reported while starting.
var ErrStartupFailed = errors.New("daemon failed to start")

// StatusFile represents the daemon startup status.
type StatusFile struct {
	Status string `json:"status"`          // "ready" or "error"
	PID    int    `json:"pid,omitempty"`   // Process ID (only for ready status)
	Error  string `json:"error,omitempty"` // Error message (only for error status)
}

// WriteStatusReady writes a ready status file.
func WriteStatusReady(path string) error {
	return writeStatus(path, &StatusFile{Status: StatusReady, PID: os.Getpid()})
}

// WriteStatusError writes an error status file.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, &StatusFile{Status: StatusError, Error: err.Error()})
}

func writeStatus(path string, status *StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ReadStatus reads a status file.
func ReadStatus(path string) (*StatusFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var status StatusFile
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// CheckStartup reads the status file of a starting pkgsized. It reports
// ready once the daemon serves, and ErrStartupFailed with the daemon's
// message once it gave up. A missing, partially written or unknown file
// reports neither, so callers keep polling.
func CheckStartup(path string) (ready bool, err error) {
	status, readErr := ReadStatus(path)
	if readErr != nil {
		return false, nil
	}
	switch status.Status {
	case StatusReady:
		return true, nil
	case StatusError:
		return false, fmt.Errorf("%w: %s", ErrStartupFailed, status.Error)
	}
	return false, nil
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath returns the status file that sits next to the socket:
// pkgsize.sock pairs with pkgsize.status.
func StatusPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, filepath.Ext(socketPath)) + ".status"
}
