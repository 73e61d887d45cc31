package fs

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/natefinch/atomic"
)

// Real implements [FS] using the real filesystem.
//
// All methods are passthroughs to the [os] package with identical behavior
// and error semantics, except [Real.Exists] which wraps [os.Stat], and
// [Real.WriteFile] / [Real.WriteStream] which replace files atomically.
type Real struct{}

// NewReal returns a new [Real] filesystem.
func NewReal() *Real {
	return &Real{}
}

// A passthrough wrapper for [os.Open].
func (r *Real) Open(path string) (File, error) {
	return os.Open(path)
}

// A passthrough wrapper for [os.ReadFile].
func (r *Real) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

// WriteFile writes data to a temp file in the same directory and renames it
// over path.
func (r *Real) WriteFile(path string, data []byte, perm os.FileMode) error {
	return r.WriteStream(path, bytes.NewReader(data), perm)
}

// WriteStream writes r to a temp file in the same directory and renames it
// over path.
func (r *Real) WriteStream(path string, src io.Reader, perm os.FileMode) error {
	err := atomic.WriteFile(path, src)
	if err != nil {
		return err
	}

	// atomic.WriteFile keeps the mode of a replaced file but creates new
	// files 0600.
	err = os.Chmod(path, perm)
	if err != nil {
		return fmt.Errorf("chmod %s: %w", path, err)
	}

	return nil
}

// --- Directory Operations ---

// A passthrough wrapper for [os.ReadDir].
func (r *Real) ReadDir(path string) ([]os.DirEntry, error) {
	return os.ReadDir(path)
}

// A passthrough wrapper for [os.Mkdir].
func (r *Real) Mkdir(path string, perm os.FileMode) error {
	return os.Mkdir(path, perm)
}

// A passthrough wrapper for [os.MkdirAll].
func (r *Real) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

// --- Metadata ---

// A passthrough wrapper for [os.Stat].
func (r *Real) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

// Exists checks if a file exists using [os.Stat].
// Returns (true, nil) if the file exists, (false, nil) if it does not,
// or (false, err) for other errors.
func (r *Real) Exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}

	if os.IsNotExist(err) {
		return false, nil
	}

	return false, err
}

// --- Mutations ---

// A passthrough wrapper for [os.Remove].
func (r *Real) Remove(path string) error {
	return os.Remove(path)
}

// Lock takes an flock on path with [LockFile].
func (r *Real) Lock(path string) (io.Closer, error) {
	lock, err := LockFile(path)
	if err != nil {
		return nil, err
	}

	return lock, nil
}

// Compile-time interface check.
var _ FS = (*Real)(nil)
