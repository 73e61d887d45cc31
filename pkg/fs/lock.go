package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

const (
	lockFilePerm = 0o644
	lockDirPerm  = 0o755
)

// errInodeMismatch means the lock file was replaced between open and flock.
var errInodeMismatch = errors.New("inode mismatch")

// Lock is an exclusive flock(2) held on a lock file. Call [Lock.Close] to
// release it.
//
// flock is advisory and applies to an inode, not a pathname. Every
// cooperating writer must take the lock, and the lock file must not be
// replaced or unlinked while locks may be held.
type Lock struct {
	mu   sync.Mutex
	file *os.File
}

// LockFile blocks until it holds an exclusive lock on path. The file and
// its parent directories are created if missing.
//
// If path is replaced while waiting, the lock is retaken on the file now
// at path.
//
// LockFile works on the real filesystem through [os] directly. Store code
// locks through [FS.Lock] so that wrapped filesystems see lock calls too.
func LockFile(path string) (*Lock, error) {
	for {
		file, err := openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = acquire(file, path)
		if err == nil {
			return &Lock{file: file}, nil
		}

		_ = file.Close()

		if !errors.Is(err, errInodeMismatch) {
			return nil, err
		}
	}
}

// Close releases the lock. It is idempotent.
func (lk *Lock) Close() error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if lk.file == nil {
		return nil
	}

	unlockErr := flockRetryEINTR(int(lk.file.Fd()), unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		unlockErr = fmt.Errorf("unlocking lock: %w", unlockErr)
	}

	if closeErr != nil {
		closeErr = fmt.Errorf("closing lock fd: %w", closeErr)
	}

	return errors.Join(unlockErr, closeErr)
}

func openLockFile(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	err = os.MkdirAll(filepath.Dir(path), lockDirPerm)
	if err != nil {
		return nil, err
	}

	return os.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

// acquire flocks file and checks it is still the file at path. On failure
// the file is unlocked but not closed.
func acquire(file *os.File, path string) error {
	fd := int(file.Fd())

	err := flockRetryEINTR(fd, unix.LOCK_EX)
	if err != nil {
		return fmt.Errorf("flock: %w", err)
	}

	var openStat, pathStat unix.Stat_t

	err = unix.Fstat(fd, &openStat)
	if err == nil {
		err = unix.Stat(path, &pathStat)
	}

	if err != nil {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)

		if errors.Is(err, unix.ENOENT) {
			return errInodeMismatch
		}

		return fmt.Errorf("verifying inode match: %w", err)
	}

	if openStat.Dev != pathStat.Dev || openStat.Ino != pathStat.Ino {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)

		return errInodeMismatch
	}

	return nil
}

// flockRetryEINTR wraps flock, retrying calls interrupted by a signal.
// Retries are capped so a signal storm cannot spin forever.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}

	return err
}
