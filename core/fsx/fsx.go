// Package fsx holds the filesystem primitives the CLI leans on: an atomic
// whole-file write for exported policy snapshots and a cross-process locked
// append for the telemetry JSONL.
package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// WriteFileAtomic writes content through a same-directory temp file and a
// rename, so a reader never observes a partial file and a crash mid-write
// leaves the previous content intact.
func WriteFileAtomic(path string, content []byte, mode os.FileMode) error {
	parent := filepath.Dir(path)
	tempFile, err := os.CreateTemp(parent, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tempPath := tempFile.Name()

	if err := fillTempFile(tempFile, content, mode); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	if err := renameOver(tempPath, path); err != nil {
		_ = os.Remove(tempPath)
		return err
	}
	syncDirectory(parent)
	return nil
}

func fillTempFile(file *os.File, content []byte, mode os.FileMode) error {
	if _, err := file.Write(content); err != nil {
		_ = file.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := file.Chmod(mode); err != nil {
		_ = file.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	return nil
}

// renameOver replaces newPath with oldPath. Windows cannot rename over an
// existing file, so the destination is removed first there; elsewhere the
// rename is atomic.
func renameOver(oldPath, newPath string) error {
	err := os.Rename(oldPath, newPath)
	if err == nil {
		return nil
	}
	if runtime.GOOS != "windows" {
		return fmt.Errorf("rename temp file: %w", err)
	}
	if removeErr := os.Remove(newPath); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove destination before rename: %w", removeErr)
	}
	if renameErr := os.Rename(oldPath, newPath); renameErr != nil {
		return fmt.Errorf("rename temp file after remove: %w", renameErr)
	}
	return nil
}

// syncDirectory flushes the directory entry after a rename or append. Best
// effort: not every filesystem supports syncing a directory handle.
func syncDirectory(dir string) {
	// #nosec G304 -- directory is the parent of a caller-provided path.
	if handle, err := os.Open(dir); err == nil {
		_ = handle.Sync()
		_ = handle.Close()
	}
}
