package fs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func Test_RealFS_Exists_Returns_False_When_Path_Does_Not_Exist(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()

	exists, err := fs.Exists(filepath.Join(dir, "does-not-exist.txt"))

	if got, want := err, error(nil); !errors.Is(got, want) {
		t.Fatalf("err=%v, want=%v", got, want)
	}

	if got, want := exists, false; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

func Test_RealFS_Exists_Returns_True_When_Path_Is_A_Directory(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()

	exists, err := fs.Exists(dir)
	if err != nil {
		t.Fatalf("Exists: %v", err)
	}

	if got, want := exists, true; got != want {
		t.Fatalf("exists=%v, want=%v", got, want)
	}
}

func Test_RealFS_Mkdir_Returns_ErrExist_When_Directory_Exists(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	path := filepath.Join(t.TempDir(), "rec")

	err := fs.Mkdir(path, 0o755)
	if err != nil {
		t.Fatalf("first Mkdir: %v", err)
	}

	err = fs.Mkdir(path, 0o755)
	if !errors.Is(err, os.ErrExist) {
		t.Fatalf("err=%v, want os.ErrExist", err)
	}
}

func Test_RealFS_WriteFile_Sets_Mode_When_File_Is_New(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	path := filepath.Join(t.TempDir(), "metadata.json")

	err := fs.WriteFile(path, []byte(`{"a": 1}`), 0o644)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	if got, want := info.Mode().Perm(), os.FileMode(0o644); got != want {
		t.Fatalf("mode=%v, want=%v", got, want)
	}
}

func Test_RealFS_WriteStream_Replaces_Content_And_Leaves_No_Temp_Files(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	dir := t.TempDir()
	path := filepath.Join(dir, "data.csv")

	for _, content := range []string{"a\n1\n", "b\n2\n"} {
		err := fs.WriteStream(path, strings.NewReader(content), 0o644)
		if err != nil {
			t.Fatalf("WriteStream: %v", err)
		}
	}

	got, err := fs.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	if string(got) != "b\n2\n" {
		t.Fatalf("content=%q, want %q", got, "b\n2\n")
	}

	entries, err := fs.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}

	if len(entries) != 1 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}

		t.Fatalf("entries=%v, want only data.csv", names)
	}
}

func Test_RealFS_Lock_Returns_Flock_Handle_When_Path_Is_Free(t *testing.T) {
	t.Parallel()

	fs := NewReal()
	path := filepath.Join(t.TempDir(), "sub", ".lock")

	lock, err := fs.Lock(path)
	if err != nil {
		t.Fatalf("Lock(%q): %v", path, err)
	}

	if _, ok := lock.(*Lock); !ok {
		t.Fatalf("Lock returned %T, want *Lock", lock)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Stat(%q): %v", path, err)
	}

	if err := lock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
