package browser

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
)

var lockFiles = []string{"SingletonLock", "SingletonCookie", "SingletonSocket"}

// CleanupLocks removes the lock files a crashed Chromium leaves in its
// profile directory, which otherwise stop the next launch.
func CleanupLocks(profileDirs ...string) error {
	var errs []error
	for _, dir := range profileDirs {
		for _, name := range lockFiles {
			path := filepath.Join(dir, name)
			// Lstat: SingletonLock is usually a dangling symlink.
			if _, err := os.Lstat(path); errors.Is(err, fs.ErrNotExist) {
				continue
			}
			if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				errs = append(errs, fmt.Errorf("remove %s: %w", path, err))
				continue
			}
			slog.Info("Removed stale browser lock", "path", path)
		}
	}
	return errors.Join(errs...)
}
