package vidoxide

import (
	"os"
)

// TempDir creates a scratch directory for frames written by external capture
// programs. It prefers the RAM-backed /dev/shm and falls back to the OS
// default temporary directory.
func TempDir(prefix string) (string, error) {
	if prefix == "" {
		prefix = "vidoxide"
	}
	// Only use /dev/shm if it already exists, never create directories in /dev.
	if fi, err := os.Stat("/dev/shm"); err == nil && fi.IsDir() {
		dir, err := os.MkdirTemp("/dev/shm", prefix)
		if err == nil {
			return dir, nil
		}
	}
	return os.MkdirTemp("", prefix)
}
