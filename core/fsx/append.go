package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const (
	lockTimeout    = 30 * time.Second
	lockRetryDelay = 10 * time.Millisecond
	lockStaleAfter = 2 * time.Minute
)

// AppendLineLocked appends one record plus a trailing newline under a
// cross-process lock file and fsyncs before releasing it, so telemetry
// events from concurrent invocations never interleave mid-line.
func AppendLineLocked(path string, line []byte, mode os.FileMode) error {
	cleanPath, err := normalizeAppendPath(path)
	if err != nil {
		return err
	}
	parent := filepath.Dir(cleanPath)
	if parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o750); err != nil {
			return fmt.Errorf("create append directory: %w", err)
		}
	}

	record := make([]byte, 0, len(line)+1)
	record = append(record, line...)
	record = append(record, '\n')

	if err := withAppendLock(cleanPath, func() error {
		// #nosec G304 -- append path is validated local relative or absolute.
		file, err := os.OpenFile(cleanPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, mode)
		if err != nil {
			return fmt.Errorf("open append file: %w", err)
		}
		defer func() {
			_ = file.Close()
		}()
		if _, err := file.Write(record); err != nil {
			return fmt.Errorf("append record: %w", err)
		}
		if err := file.Sync(); err != nil {
			return fmt.Errorf("sync append file: %w", err)
		}
		return nil
	}); err != nil {
		return err
	}

	if parent != "." && parent != "" {
		syncDirectory(parent)
	}
	return nil
}

// withAppendLock serializes appenders with an O_EXCL lock file next to the
// target. A lock older than lockStaleAfter belongs to a dead process and is
// broken.
func withAppendLock(path string, fn func() error) error {
	lockPath := path + ".lock"
	started := time.Now()
	for {
		// #nosec G304 -- lock path derives from a validated append path.
		lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_ = lockFile.Close()
			defer func() {
				_ = os.Remove(lockPath)
			}()
			return fn()
		}
		if !lockHeldElsewhere(err, lockPath) {
			return fmt.Errorf("acquire append lock: %w", err)
		}
		if lockIsStale(lockPath, time.Now().UTC()) {
			_ = os.Remove(lockPath)
			continue
		}
		if time.Since(started) >= lockTimeout {
			return fmt.Errorf("append lock timeout")
		}
		time.Sleep(lockRetryDelay)
	}
}

// lockHeldElsewhere distinguishes contention from real failures. Some
// platforms report EACCES instead of EEXIST for a held O_EXCL file, so a
// permission error only counts when the lock file actually exists.
func lockHeldElsewhere(acquireErr error, lockPath string) bool {
	if os.IsExist(acquireErr) {
		return true
	}
	if !os.IsPermission(acquireErr) {
		return false
	}
	_, statErr := os.Stat(lockPath)
	return statErr == nil
}

func lockIsStale(lockPath string, now time.Time) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	return now.Sub(info.ModTime().UTC()) > lockStaleAfter
}

// normalizeAppendPath accepts local relative or absolute paths and rejects
// anything that escapes upward.
func normalizeAppendPath(path string) (string, error) {
	cleanPath := filepath.Clean(path)
	if filepath.IsLocal(cleanPath) || filepath.IsAbs(cleanPath) {
		return cleanPath, nil
	}
	return "", fmt.Errorf("append path must be local relative or absolute")
}
