// Package fs provides the filesystem abstraction the shelf store runs on.
//
// The main types are:
//   - [FS]: interface for the filesystem operations the store needs
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] and atomic replace
//
// Tests wrap [Real] to inject failures at specific calls.
//
// Example usage:
//
//	fsys := fs.NewReal()
//	err := fsys.Mkdir(dir, 0o755) // fails with os.ErrExist if dir exists
//	if err != nil {
//	    return err
//	}
//	err = fsys.WriteFile(filepath.Join(dir, "metadata.json"), data, 0o644)
package fs

import (
	"io"
	"os"
)

// File represents an open file.
//
// This interface is satisfied by [os.File] and can be used with all
// standard library functions that accept [io.Reader], [io.Writer],
// [io.Seeker], or [io.Closer].
type File interface {
	io.ReadWriteCloser
	io.Seeker

	// Stat returns the [os.FileInfo] for this file. See [os.File.Stat].
	Stat() (os.FileInfo, error)
}

// FS defines the filesystem operations used by the store.
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open].
	Open(path string) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile].
	ReadFile(path string) ([]byte, error)

	// WriteFile replaces path with data atomically: readers see either the
	// old content or the new content, never a partial file. The final file
	// has mode perm regardless of umask.
	WriteFile(path string, data []byte, perm os.FileMode) error

	// WriteStream is like [FS.WriteFile] but copies content from r.
	WriteStream(path string, r io.Reader, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries sorted by name.
	// See [os.ReadDir].
	ReadDir(path string) ([]os.DirEntry, error)

	// Mkdir creates a single directory. See [os.Mkdir].
	// Fails with an error satisfying errors.Is(err, os.ErrExist) when path
	// already exists, which makes it usable as an exclusive create.
	Mkdir(path string, perm os.FileMode) error

	// MkdirAll creates a directory and all parents. See [os.MkdirAll].
	// No error if the directory already exists.
	MkdirAll(path string, perm os.FileMode) error

	// Stat returns file info. See [os.Stat].
	Stat(path string) (os.FileInfo, error)

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove].
	Remove(path string) error

	// Lock blocks until it holds an exclusive lock on path and returns the
	// handle that releases it. See [LockFile].
	Lock(path string) (io.Closer, error)
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
