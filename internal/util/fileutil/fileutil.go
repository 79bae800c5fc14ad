// Package fileutil writes and copies files atomically.
//
// Every file the orchestrator produces (outputs, inventory, summaries,
// snapshot copies) goes through this package, so a crash or interrupt
// leaves either the previous content or the new content on disk, never a
// partial write.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// WriteAtomic writes data to path through a temporary file and a rename.
// Parent directories are created as needed.
func WriteAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// CopyAtomic copies src to dst, preserving the permission bits of src.
// dst appears only once its content is complete.
func CopyAtomic(src, dst string) error {
	// #nosec G304 - paths come from orchestrator configuration
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer func() { _ = in.Close() }()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dst, err)
	}

	pending, err := renameio.NewPendingFile(dst, renameio.WithPermissions(info.Mode().Perm()))
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := io.Copy(pending, in); err != nil {
		return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("failed to finalize %s: %w", dst, err)
	}
	return nil
}

// Exists reports whether path exists. Errors other than "not exist" count
// as existing so callers never overwrite something they could not inspect.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}
