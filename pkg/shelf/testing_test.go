package shelf_test

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calvinalkan/shelf/pkg/fs"
	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

var testNow = time.Date(2024, 5, 1, 9, 30, 0, 0, time.Local)

// runSchema is the schema most tests use: root/<date>/<run>.
func runSchema() shelf.Schema {
	return shelf.Schema{
		Fields: []shelf.Field{
			shelf.DateField("date"),
			shelf.StringField("run"),
		},
		Attributes: []shelf.Attribute{
			shelf.Attr("owner"),
			shelf.Attr("score"),
		},
	}
}

func defineTestShelf(t *testing.T, schema shelf.Schema, opts shelf.Options) *shelf.Shelf {
	t.Helper()

	if opts.Clock == nil {
		opts.Clock = shelf.FixedClock(testNow)
	}

	s, err := shelf.Define(t.TempDir(), schema, opts)
	if err != nil {
		t.Fatalf("define: %v", err)
	}

	return s
}

func createTestRecord(t *testing.T, s *shelf.Shelf, provided map[string]any) *shelf.Record {
	t.Helper()

	rec, err := s.Create(values(provided))
	if err != nil {
		t.Fatalf("create %v: %v", provided, err)
	}

	return rec
}

func values(m map[string]any) map[string]value.Value {
	out := make(map[string]value.Value, len(m))
	for k, v := range m {
		out[k] = value.MustFromAny(v)
	}

	return out
}

func newTestTable(t *testing.T, columns []string, rows ...[]any) *table.Table {
	t.Helper()

	tbl := table.New(columns...)

	for _, row := range rows {
		vals := make([]value.Value, len(row))
		for i, x := range row {
			vals[i] = value.MustFromAny(x)
		}

		err := tbl.AppendRow(vals...)
		if err != nil {
			t.Fatalf("append row: %v", err)
		}
	}

	return tbl
}

func writeTestFile(t *testing.T, path, content string) {
	t.Helper()

	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	err = os.WriteFile(path, []byte(content), 0o644)
	if err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func requireShelfError(t *testing.T, err error, want error, field string) {
	t.Helper()

	if !errors.Is(err, want) {
		t.Fatalf("err=%v, want %v", err, want)
	}

	var sErr *shelf.Error
	if !errors.As(err, &sErr) {
		t.Fatalf("err=%T, want *shelf.Error", err)
	}

	if got := sErr.Field; got != field {
		t.Fatalf("field=%q, want=%q", got, field)
	}
}

// stepClock advances one second per reading.
func stepClock(start time.Time) shelf.Clock {
	next := start

	return shelf.ClockFunc(func() time.Time {
		now := next
		next = next.Add(time.Second)

		return now
	})
}

// failingFS fails writes and locks on files with the given base name.
type failingFS struct {
	fs.FS

	failName string
}

var errInjected = errors.New("injected write failure")

func (f *failingFS) WriteFile(path string, data []byte, perm os.FileMode) error {
	if filepath.Base(path) == f.failName {
		return errInjected
	}

	return f.FS.WriteFile(path, data, perm)
}

func (f *failingFS) Lock(path string) (io.Closer, error) {
	if filepath.Base(path) == f.failName {
		return nil, errInjected
	}

	return f.FS.Lock(path)
}
