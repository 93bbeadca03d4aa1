package daemon

import (
	"errors"
	"os"
	"path/filepath"
)

// RecoverFromStaleDaemon checks for and cleans up the files a crashed
// pkgsized leaves behind: its PID file, its socket and the cache's
// directory lock. Returns ErrDaemonAlreadyRunning if a daemon is actually
// running.
func RecoverFromStaleDaemon(pidPath, socketPath, cachePath string) error {
	pid, err := ReadPIDFile(pidPath)
	if err != nil {
		// No PID file or invalid PID means nothing to recover - this is success, not an error
		return nil //nolint:nilerr // intentional: missing/invalid PID file is not an error condition
	}

	if IsProcessRunning(pid) {
		return ErrDaemonAlreadyRunning
	}

	logger.Warn("cleaning up stale daemon files", "stale_pid", pid)

	for _, p := range []string{pidPath, socketPath, cacheLockPath(cachePath)} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Debug("could not remove stale file", "path", p, "error", err)
		}
	}
	return nil
}

// cacheLockPath is the lock file badger keeps in its directory.
func cacheLockPath(cachePath string) string {
	if cachePath == "" {
		return ""
	}
	return filepath.Join(cachePath, "LOCK")
}
