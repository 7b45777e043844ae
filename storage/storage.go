// Package storage wraps the filesystem operations used by the exporter and loaders.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// Error describes a failed filesystem operation.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Errorf("%s %s: %w", e.Op, e.Path, e.Err).Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Manager creates directories and hands out scoped file handles.
type Manager struct {
	logger  *slog.Logger
	dirPerm os.FileMode
}

// NewManager returns a Manager that logs failures to logger.
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:  logger.With(slog.String("component", "storage")),
		dirPerm: 0o755,
	}
}

// EnsureDirectory creates path and its parents. Empty paths are ignored.
func (m *Manager) EnsureDirectory(path string) error {
	if path == "" || path == "." {
		return nil
	}
	if err := os.MkdirAll(path, m.dirPerm); err != nil {
		m.logger.Error("create directory failed", slog.String("path", path), slog.Any("error", err))
		return &Error{Op: "mkdir", Path: path, Err: err}
	}
	return nil
}

// OpenForWrite runs fn with a buffered writer for path. The content is
// written to a temporary file next to path and renamed into place only when
// fn and every flush/close succeed, so a failed write never truncates an
// existing file.
func (m *Manager) OpenForWrite(path string, fn func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	if err := m.EnsureDirectory(dir); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		m.logger.Error("open for writing failed", slog.String("path", path), slog.Any("error", err))
		return &Error{Op: "create", Path: path, Err: err}
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpName)
		}
	}()

	buffered := bufio.NewWriter(tmp)
	if err := fn(buffered); err != nil {
		return err
	}
	if err := buffered.Flush(); err != nil {
		return &Error{Op: "flush", Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "close", Path: path, Err: err}
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return &Error{Op: "chmod", Path: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		m.logger.Error("replace file failed", slog.String("path", path), slog.Any("error", err))
		return &Error{Op: "rename", Path: path, Err: err}
	}
	return nil
}

// OpenForRead runs fn with a reader for path and closes the file afterwards.
func (m *Manager) OpenForRead(path string, fn func(r io.Reader) error) (err error) {
	f, err := os.Open(path)
	if err != nil {
		m.logger.Error("open for reading failed", slog.String("path", path), slog.Any("error", err))
		return &Error{Op: "open", Path: path, Err: err}
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			err = errors.Join(err, &Error{Op: "close", Path: path, Err: closeErr})
		}
	}()

	return fn(bufio.NewReader(f))
}

// Exists reports whether path exists. Other stat failures are returned.
func (m *Manager) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, &Error{Op: "stat", Path: path, Err: err}
}
