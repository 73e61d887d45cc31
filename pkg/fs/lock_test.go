package fs

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func Test_LockFile_Creates_File_And_Parents_When_Missing(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "a", "b", "lock")

	lock, err := LockFile(path)
	if err != nil {
		t.Fatalf("LockFile(%q): %v", path, err)
	}
	defer lock.Close()

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(%q): %v", path, err)
	}
}

func Test_LockFile_Blocks_Until_Holder_Closes(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "lock")

	lock1, err := LockFile(path)
	if err != nil {
		t.Fatalf("LockFile(%q): %v", path, err)
	}

	acquired := make(chan *Lock)
	errs := make(chan error, 1)

	go func() {
		lock2, err := LockFile(path)
		if err != nil {
			errs <- err

			return
		}

		acquired <- lock2
	}()

	select {
	case <-acquired:
		t.Fatal("second LockFile returned while first lock was held")
	case err := <-errs:
		t.Fatalf("second LockFile: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	if err := lock1.Close(); err != nil {
		t.Fatalf("Close(): %v", err)
	}

	select {
	case lock2 := <-acquired:
		if err := lock2.Close(); err != nil {
			t.Fatalf("Close(): %v", err)
		}
	case err := <-errs:
		t.Fatalf("second LockFile: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("second LockFile did not return after release")
	}
}

func Test_Lock_Close_Is_Idempotent(t *testing.T) {
	t.Parallel()

	lock, err := LockFile(filepath.Join(t.TempDir(), "lock"))
	if err != nil {
		t.Fatalf("LockFile: %v", err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("first Close(): %v", err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("second Close(): %v", err)
	}
}
