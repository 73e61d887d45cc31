package shelf_test

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shelf/pkg/fs"
	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/value"
)

func Test_Load_Returns_Identical_Schema_When_Defined_Before(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	schema := shelf.Schema{
		Fields: []shelf.Field{
			shelf.DateField("date"),
			shelf.StringField("experiment").WithDefault(value.String("baseline")),
			shelf.IntField("seed").WithDefault(value.Int(3)),
			shelf.UUIDField("id"),
		},
		Attributes: []shelf.Attribute{
			shelf.Attr("owner"),
			shelf.RequiredAttr("host"),
			{Name: "tags", Default: ptr(value.List(value.String("nightly")))},
		},
		Attachments: shelf.AttachReject,
	}

	_, err := shelf.Define(root, schema, shelf.Options{})
	require.NoError(t, err)

	loaded, err := shelf.Load(root, shelf.Options{})
	require.NoError(t, err)

	if !loaded.Schema().Equal(schema) {
		t.Fatalf("loaded schema differs:\n%s", cmp.Diff(schema.Fields, loaded.Schema().Fields))
	}

	if got, want := loaded.Schema().FieldNames(), []string{"date", "experiment", "seed", "id"}; !cmp.Equal(got, want) {
		t.Fatalf("fields=%v, want=%v", got, want)
	}
}

func Test_Define_Succeeds_When_Root_Holds_Equal_Schema(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := shelf.Define(root, runSchema(), shelf.Options{})
	require.NoError(t, err)

	_, err = shelf.Define(root, runSchema(), shelf.Options{})
	require.NoError(t, err)
}

func Test_Define_Returns_ErrSchemaMismatch_When_Root_Holds_Other_Schema(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	_, err := shelf.Define(root, runSchema(), shelf.Options{})
	require.NoError(t, err)

	other := runSchema()
	other.Fields = other.Fields[1:]

	_, err = shelf.Define(root, other, shelf.Options{})
	require.ErrorIs(t, err, shelf.ErrSchemaMismatch)

	loaded, err := shelf.Load(root, shelf.Options{})
	require.NoError(t, err)
	require.True(t, loaded.Schema().Equal(runSchema()), "config must be untouched")
}

func Test_Load_Returns_ErrNotShelf_When_Config_Missing(t *testing.T) {
	t.Parallel()

	_, err := shelf.Load(t.TempDir(), shelf.Options{})
	require.ErrorIs(t, err, shelf.ErrNotShelf)
}

func Test_Load_Accepts_Comments_And_Trailing_Commas(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFile(t, shelf.ConfigPath(root), `{
		// written by hand
		"version": 1,
		"fields": [
			{"name": "date", "type": "date", "auto": "current-date"},
			{"name": "run"},
		],
	}`)

	s, err := shelf.Load(root, shelf.Options{})
	require.NoError(t, err)

	f, ok := s.Schema().Field("run")
	require.True(t, ok)
	require.Equal(t, shelf.TypeString, f.Type)
	require.Equal(t, "metadata.json", s.Schema().MetadataFile())
}

func Test_Load_Returns_ErrInvalidSchema_When_Config_Is_Bad(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"wrong version": `{"version": 2, "fields": [{"name": "a"}]}`,
		"unknown key":   `{"version": 1, "fields": [{"name": "a"}], "feilds": []}`,
		"no fields":     `{"version": 1, "fields": []}`,
		"not json":      `version = 1`,
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			root := t.TempDir()
			writeTestFile(t, shelf.ConfigPath(root), content)

			_, err := shelf.Load(root, shelf.Options{})
			require.ErrorIs(t, err, shelf.ErrInvalidSchema)
		})
	}
}

func Test_Create_Writes_Record_Directory_And_Metadata(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})

	rec := createTestRecord(t, s, map[string]any{"run": "r1", "owner": "ann", "score": 0.5})

	if got, want := rec.RelPath(), filepath.Join("2024-05-01", "r1"); got != want {
		t.Fatalf("path=%q, want=%q", got, want)
	}

	data, err := os.ReadFile(filepath.Join(rec.Path(), "metadata.json"))
	require.NoError(t, err)

	var meta map[string]any

	require.NoError(t, json.Unmarshal(data, &meta))
	require.Equal(t, map[string]any{"owner": "ann", "score": 0.5}, meta)

	got, ok := rec.Field("date")
	require.True(t, ok)
	require.True(t, got.Equal(value.String("2024-05-01")))
}

func Test_Create_Returns_ErrDuplicateRecord_When_Resolved_Path_Exists(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})

	createTestRecord(t, s, map[string]any{"run": "r1", "owner": "ann"})

	_, err := s.Create(values(map[string]any{"run": "r1", "owner": "bob"}))
	require.ErrorIs(t, err, shelf.ErrDuplicateRecord)

	entries, err := os.ReadDir(filepath.Join(s.Root(), "2024-05-01"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	rec, err := s.Open(values(map[string]any{"date": "2024-05-01", "run": "r1"}))
	require.NoError(t, err)
	require.True(t, rec.Metadata()["owner"].Equal(value.String("ann")), "first create must win")
}

func Test_Create_Produces_Distinct_Timestamps_When_Called_A_Second_Apart(t *testing.T) {
	t.Parallel()

	schema := shelf.Schema{Fields: []shelf.Field{shelf.TimestampField("at")}}
	s := defineTestShelf(t, schema, shelf.Options{Clock: stepClock(testNow)})

	first := createTestRecord(t, s, nil)
	second := createTestRecord(t, s, nil)

	require.Equal(t, "2024-05-01_09-30-00", first.RelPath())
	require.Equal(t, "2024-05-01_09-30-01", second.RelPath())
}

func Test_Create_Removes_Directory_When_Metadata_Write_Fails(t *testing.T) {
	t.Parallel()

	fsys := &failingFS{FS: fs.NewReal(), failName: "metadata.json"}
	s := defineTestShelf(t, runSchema(), shelf.Options{FS: fsys})

	_, err := s.Create(values(map[string]any{"run": "r1"}))
	require.ErrorIs(t, err, errInjected)

	_, err = os.Stat(filepath.Join(s.Root(), "2024-05-01", "r1"))
	require.True(t, errors.Is(err, os.ErrNotExist), "record dir must be removed, stat err=%v", err)
}

func Test_Define_Returns_Error_Without_Config_When_Lock_Fails(t *testing.T) {
	t.Parallel()

	root := filepath.Join(t.TempDir(), "shelf")
	fsys := &failingFS{FS: fs.NewReal(), failName: shelf.LockFileName}

	_, err := shelf.Define(root, runSchema(), shelf.Options{FS: fsys})
	require.ErrorIs(t, err, errInjected)

	_, err = os.Stat(filepath.Join(root, shelf.ConfigFileName))
	require.True(t, errors.Is(err, os.ErrNotExist), "config must not be written, stat err=%v", err)
}

func Test_Attach_Returns_Error_When_Record_Lock_Fails_Under_Reject_Policy(t *testing.T) {
	t.Parallel()

	schema := runSchema()
	schema.Attachments = shelf.AttachReject

	fsys := &failingFS{FS: fs.NewReal(), failName: ".attach.lock"}
	s := defineTestShelf(t, schema, shelf.Options{FS: fsys})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	err := rec.AttachBytes([]byte("hello"), "notes.txt")
	require.ErrorIs(t, err, errInjected)

	_, err = os.Stat(filepath.Join(rec.Path(), "notes.txt"))
	require.True(t, errors.Is(err, os.ErrNotExist), "attachment must not be written, stat err=%v", err)
}

func Test_Create_Rejects_Unknown_Keys_Without_Touching_Disk(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})

	_, err := s.Create(values(map[string]any{"run": "r1", "ownr": "ann"}))
	requireShelfError(t, err, shelf.ErrUnknownKey, "ownr")

	entries, err := os.ReadDir(s.Root())
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}

	require.Equal(t, []string{shelf.ConfigFileName, shelf.LockFileName}, names)
}

func Test_Open_Returns_ErrRecordNotFound_When_Record_Missing(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})

	_, err := s.Open(values(map[string]any{"date": "2024-05-01", "run": "nope"}))
	require.ErrorIs(t, err, shelf.ErrRecordNotFound)
}

func Test_Open_Returns_ErrUnknownKey_When_Attribute_Given(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})
	createTestRecord(t, s, map[string]any{"run": "r1"})

	_, err := s.Open(values(map[string]any{"date": "2024-05-01", "run": "r1", "owner": "ann"}))
	requireShelfError(t, err, shelf.ErrUnknownKey, "owner")
}

func Test_Attach_Round_Trips_Table_When_Format_Registered(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	want := newTestTable(t, []string{"step", "loss"}, []any{1, "high"}, []any{2, "low"})

	for _, name := range []string{"results.csv", "results.json", "results.yaml", "results.jsonl"} {
		require.NoError(t, rec.Attach(want, name))

		got, err := rec.ReadTable(name)
		require.NoError(t, err)
		require.True(t, want.Equal(got), "%s: got columns %v", name, got.Columns())
	}

	files, err := rec.Files()
	require.NoError(t, err)
	require.Equal(t, []string{"results.csv", "results.json", "results.jsonl", "results.yaml"}, files)
}

func Test_Save_Writes_Default_Data_File(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	require.NoError(t, rec.Save(newTestTable(t, []string{"x"}, []any{1})))

	data, err := os.ReadFile(filepath.Join(rec.Path(), "data.csv"))
	require.NoError(t, err)
	require.Equal(t, "x\n1\n", string(data))
}

func Test_Attach_Overwrites_When_Policy_Is_Overwrite(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	require.NoError(t, rec.AttachBytes([]byte("first"), "notes.txt"))
	require.NoError(t, rec.AttachBytes([]byte("second"), "notes.txt"))

	data, err := os.ReadFile(filepath.Join(rec.Path(), "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func Test_Attach_Returns_ErrAttachmentExists_When_Policy_Is_Reject(t *testing.T) {
	t.Parallel()

	schema := runSchema()
	schema.Attachments = shelf.AttachReject

	s := defineTestShelf(t, schema, shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	require.NoError(t, rec.AttachBytes([]byte("first"), "notes.txt"))

	err := rec.AttachBytes([]byte("second"), "notes.txt")
	require.ErrorIs(t, err, shelf.ErrAttachmentExists)

	data, err := os.ReadFile(filepath.Join(rec.Path(), "notes.txt"))
	require.NoError(t, err)
	require.Equal(t, "first", string(data))
}

func Test_Attach_Lets_Exactly_One_Writer_Win_When_Policy_Is_Reject(t *testing.T) {
	t.Parallel()

	schema := runSchema()
	schema.Attachments = shelf.AttachReject

	s := defineTestShelf(t, schema, shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	const writers = 8

	var wg sync.WaitGroup

	errs := make(chan error, writers)

	for i := range writers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			errs <- rec.AttachBytes([]byte(strconv.Itoa(i)), "notes.txt")
		}()
	}

	wg.Wait()
	close(errs)

	wins := 0

	for err := range errs {
		if err == nil {
			wins++

			continue
		}

		require.ErrorIs(t, err, shelf.ErrAttachmentExists)
	}

	require.Equal(t, 1, wins)

	files, err := rec.Files()
	require.NoError(t, err)
	require.Equal(t, []string{"notes.txt"}, files)
}

func Test_Define_Writes_One_Config_When_Called_Concurrently(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	other := runSchema()
	other.Fields = other.Fields[1:]

	var wg sync.WaitGroup

	errs := make(chan error, 2)

	for _, schema := range []shelf.Schema{runSchema(), other} {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, err := shelf.Define(root, schema, shelf.Options{})
			errs <- err
		}()
	}

	wg.Wait()
	close(errs)

	var failed []error

	for err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}

	require.Len(t, failed, 1)
	require.ErrorIs(t, failed[0], shelf.ErrSchemaMismatch)
}

func Test_Attach_Rejects_Unsafe_Names(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	for _, name := range []string{"", "../escape.txt", "sub/file.txt", ".hidden", "metadata.json"} {
		err := rec.AttachBytes([]byte("x"), name)
		require.ErrorIs(t, err, shelf.ErrInvalidAttachmentName, "name %q", name)
	}
}

func Test_Attach_Returns_Error_When_Extension_Has_No_Codec(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, runSchema(), shelf.Options{})
	rec := createTestRecord(t, s, map[string]any{"run": "r1"})

	err := rec.Attach(newTestTable(t, []string{"x"}), "model.pkl")
	require.Error(t, err)

	exists, err := fs.NewReal().Exists(filepath.Join(rec.Path(), "model.pkl"))
	require.NoError(t, err)
	require.False(t, exists)
}
