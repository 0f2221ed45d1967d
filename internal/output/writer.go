// Package output persists fragments. Files are written to a temporary file
// in the destination directory and renamed into place, so a failed write
// never leaves a partial document behind.
package output

import (
	"context"
	"os"
	"path/filepath"

	fragerrors "github.com/conneroisu/pagefrag/internal/errors"
)

const (
	defaultFilePerm = 0o644
	defaultDirPerm  = 0o755
)

// Writer writes fragment files below a root directory.
type Writer struct {
	root  string
	permF os.FileMode
	permD os.FileMode
}

// NewWriter creates a writer rooted at dir.
func NewWriter(dir string) *Writer {
	return &Writer{root: dir, permF: defaultFilePerm, permD: defaultDirPerm}
}

// Root returns the output directory.
func (w *Writer) Root() string { return w.root }

// EnsureDir creates the output directory. Failure is batch-wide.
func (w *Writer) EnsureDir() error {
	if err := os.MkdirAll(w.root, w.permD); err != nil {
		return fragerrors.NewOutputError(fragerrors.ErrCodeOutputDir,
			"cannot create output directory", err).WithPath(w.root).AsFatal()
	}
	info, err := os.Stat(w.root)
	if err != nil || !info.IsDir() {
		return fragerrors.NewOutputError(fragerrors.ErrCodeOutputDir,
			"output path is not a directory", err).WithPath(w.root).AsFatal()
	}
	return nil
}

// Exists reports whether a regular file is present at path.
func (w *Writer) Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Write atomically replaces path with data.
func (w *Writer) Write(ctx context.Context, path string, data []byte) error {
	select {
	case <-ctx.Done():
		return fragerrors.WrapOutput(ctx.Err(), fragerrors.ErrCodeWriteFailed, "write cancelled").WithPath(path)
	default:
	}

	if err := w.writeAtomic(path, data); err != nil {
		return fragerrors.NewOutputError(fragerrors.ErrCodeWriteFailed,
			"cannot write fragment", err).WithPath(path).WithStage(fragerrors.StageWrite)
	}
	return nil
}

func (w *Writer) writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_ = os.Chmod(tmpPath, w.permF)

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}
