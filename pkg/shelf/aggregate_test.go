package shelf_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/shelf/pkg/shelf"
	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

// flatSchema is root/<run> with optional attributes a and b.
func flatSchema() shelf.Schema {
	return shelf.Schema{
		Fields:     []shelf.Field{shelf.StringField("run")},
		Attributes: []shelf.Attribute{shelf.Attr("a"), shelf.Attr("b")},
	}
}

func cell(t *testing.T, tbl *table.Table, row int, column string) value.Value {
	t.Helper()

	v, ok := tbl.Get(row, column)
	if !ok {
		t.Fatalf("no cell (%d, %q) in columns %v", row, column, tbl.Columns())
	}

	return v
}

func Test_Aggregate_Null_Fills_Attributes_When_Records_Differ(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	createTestRecord(t, s, map[string]any{"run": "r1", "a": 1})
	createTestRecord(t, s, map[string]any{"run": "r2", "b": 2})

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)
	require.Empty(t, agg.Warnings)

	meta := agg.Tables[shelf.MetadataTable]
	require.NotNil(t, meta)
	require.Equal(t, []string{"run", "a", "b", shelf.AttachmentsColumn}, meta.Columns())
	require.Equal(t, 2, meta.Len())

	require.True(t, cell(t, meta, 0, "run").Equal(value.String("r1")))
	require.True(t, cell(t, meta, 0, "a").Equal(value.Int(1)))
	require.True(t, cell(t, meta, 0, "b").IsNull())
	require.True(t, cell(t, meta, 1, "a").IsNull())
	require.True(t, cell(t, meta, 1, "b").Equal(value.Int(2)))
}

func Test_Aggregate_Appends_Undeclared_Metadata_Keys_After_Attributes(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	createTestRecord(t, s, map[string]any{"run": "r1"})
	writeTestFile(t, filepath.Join(s.Root(), "r0", "metadata.json"), `{"z": true, "legacy": "x"}`)

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	meta := agg.Tables[shelf.MetadataTable]
	require.Equal(t, []string{"run", "a", "b", "legacy", "z", shelf.AttachmentsColumn}, meta.Columns())
	require.True(t, cell(t, meta, 1, "legacy").IsNull())
}

func Test_Aggregate_Merges_Same_Named_Tables_By_Union_Of_Columns(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	r2 := createTestRecord(t, s, map[string]any{"run": "r2"})

	require.NoError(t, r1.Attach(newTestTable(t, []string{"x", "y"}, []any{1, 2}, []any{3, 4}), "results.csv"))
	require.NoError(t, r2.Attach(newTestTable(t, []string{"y", "z"}, []any{5, 6}), "results.csv"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	results := agg.Tables["results"]
	require.NotNil(t, results, "tables: %v", agg.Tables)
	require.Equal(t, []string{"run", "x", "y", "z"}, results.Columns())
	require.Equal(t, 3, results.Len())

	want := [][]value.Value{
		{value.String("r1"), value.Int(1), value.Int(2), value.Null()},
		{value.String("r1"), value.Int(3), value.Int(4), value.Null()},
		{value.String("r2"), value.Null(), value.Int(5), value.Int(6)},
	}

	expected := table.New(results.Columns()...)
	for _, row := range want {
		require.NoError(t, expected.AppendRow(row...))
	}

	require.True(t, expected.Equal(results), "got rows %v %v %v", results.Row(0), results.Row(1), results.Row(2))
}

func Test_Aggregate_Skips_Directories_Without_Metadata(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	createTestRecord(t, s, map[string]any{"run": "good", "a": 1})
	writeTestFile(t, filepath.Join(s.Root(), "partial", "results.csv"), "x\n1\n")

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	require.Equal(t, 1, agg.Tables[shelf.MetadataTable].Len())
	require.NotContains(t, agg.Tables, "results")
	require.Len(t, agg.Warnings, 1)
	require.ErrorIs(t, agg.Warnings[0], shelf.ErrCorruptRecord)
}

func Test_Aggregate_Lists_Opaque_Attachments_By_Path(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	createTestRecord(t, s, map[string]any{"run": "r2"})

	require.NoError(t, r1.AttachBytes([]byte("\x00\x01"), "model.bin"))
	require.NoError(t, r1.AttachBytes([]byte("hello"), "notes.txt"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	wantFiles := []string{filepath.Join("r1", "model.bin"), filepath.Join("r1", "notes.txt")}
	require.Equal(t, wantFiles, agg.Files)

	meta := agg.Tables[shelf.MetadataTable]
	require.True(t, cell(t, meta, 0, shelf.AttachmentsColumn).Equal(value.List(value.String(wantFiles[0]), value.String(wantFiles[1]))))
	require.Equal(t, 0, cell(t, meta, 1, shelf.AttachmentsColumn).Len())
	require.Len(t, agg.Tables, 1)
}

func Test_Aggregate_Skips_Unreadable_Attachment_When_Policy_Is_Skip(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	r2 := createTestRecord(t, s, map[string]any{"run": "r2"})

	require.NoError(t, r1.AttachBytes([]byte("{broken"), "scores.json"))
	require.NoError(t, r2.Attach(newTestTable(t, []string{"score"}, []any{0.9}), "scores.json"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	require.Equal(t, 1, agg.Tables["scores"].Len())
	require.Len(t, agg.Warnings, 1)
	require.ErrorIs(t, agg.Warnings[0], shelf.ErrUnreadableAttachment)
	require.Equal(t, filepath.Join("r1", "scores.json"), agg.Warnings[0].Path)
}

func Test_Aggregate_Returns_Error_When_Policy_Is_Fail(t *testing.T) {
	t.Parallel()

	schema := flatSchema()
	schema.OnReadError = shelf.ReadErrorFail

	s := defineTestShelf(t, schema, shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	require.NoError(t, r1.AttachBytes([]byte("{broken"), "scores.json"))

	_, err := s.Aggregate(t.Context())
	require.ErrorIs(t, err, shelf.ErrUnreadableAttachment)
}

func Test_Aggregate_Renames_Attachment_Column_When_It_Clashes_With_Field(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	require.NoError(t, r1.Attach(newTestTable(t, []string{"run", "loss"}, []any{7, 0.5}), "steps.csv"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	steps := agg.Tables["steps"]
	require.Equal(t, []string{"run", "run_data", "loss"}, steps.Columns())
	require.True(t, cell(t, steps, 0, "run_data").Equal(value.Int(7)))
	require.Len(t, agg.Warnings, 1)
	require.ErrorIs(t, agg.Warnings[0], shelf.ErrColumnConflict)
}

func Test_Aggregate_Picks_Free_Column_Name_When_Renamed_Column_Exists(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	r2 := createTestRecord(t, s, map[string]any{"run": "r2"})
	require.NoError(t, r1.AttachBytes([]byte("run,run_data\n1,2\n"), "steps.csv"))
	require.NoError(t, r2.AttachBytes([]byte("loss\n0.5\n"), "steps.csv"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	steps := agg.Tables["steps"]
	require.Equal(t, 2, steps.Len())
	require.Equal(t, []string{"run", "run_data_2", "run_data", "loss"}, steps.Columns())

	row := steps.Record(0)
	require.True(t, row["run"].Equal(value.String("r1")))
	require.True(t, row["run_data_2"].Equal(value.Int(1)))
	require.True(t, row["run_data"].Equal(value.Int(2)))
	require.True(t, row["loss"].IsNull())

	require.Equal(t, 2, agg.Tables[shelf.MetadataTable].Len())
	require.Len(t, agg.Warnings, 1)
	require.ErrorIs(t, agg.Warnings[0], shelf.ErrColumnConflict)
	require.ErrorContains(t, agg.Warnings[0], `"run_data_2"`)
}

func Test_Aggregate_Lists_Unreadable_Tabular_Attachment_As_File_When_Policy_Is_Skip(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	require.NoError(t, r1.AttachBytes([]byte(`{"lr":0.1}`), "config.json"))
	require.NoError(t, r1.AttachBytes([]byte("hello"), "notes.txt"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	wantFiles := []string{filepath.Join("r1", "config.json"), filepath.Join("r1", "notes.txt")}
	require.Equal(t, wantFiles, agg.Files)
	require.NotContains(t, agg.Tables, "config")

	listed, err := agg.Tables[shelf.MetadataTable].Column(shelf.AttachmentsColumn)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.True(t, listed[0].Equal(value.List(value.String(wantFiles[0]), value.String(wantFiles[1]))))

	require.Len(t, agg.Warnings, 1)
	require.ErrorIs(t, agg.Warnings[0], shelf.ErrUnreadableAttachment)
	require.Equal(t, wantFiles[0], agg.Warnings[0].Path)
}

func Test_Aggregate_Keys_By_File_Name_When_Stem_Has_Several_Extensions(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})
	r1 := createTestRecord(t, s, map[string]any{"run": "r1"})
	r2 := createTestRecord(t, s, map[string]any{"run": "r2"})

	tbl := newTestTable(t, []string{"x"}, []any{1})
	require.NoError(t, r1.Attach(tbl, "results.csv"))
	require.NoError(t, r2.Attach(tbl, "results.json"))
	require.NoError(t, r2.Attach(tbl, "metadata.csv"))

	agg, err := s.Aggregate(t.Context())
	require.NoError(t, err)

	require.Contains(t, agg.Tables, "results.csv")
	require.Contains(t, agg.Tables, "results.json")
	require.Contains(t, agg.Tables, "metadata.csv")
	require.NotContains(t, agg.Tables, "results")
	require.Equal(t, 2, agg.Tables[shelf.MetadataTable].Len())
}

func Test_Aggregate_Func_Returns_ErrNotShelf_When_Root_Has_No_Config(t *testing.T) {
	t.Parallel()

	_, err := shelf.Aggregate(t.Context(), t.TempDir(), shelf.Options{})
	require.ErrorIs(t, err, shelf.ErrNotShelf)
}

func Test_Aggregate_Returns_Only_Metadata_When_Shelf_Is_Empty(t *testing.T) {
	t.Parallel()

	s := defineTestShelf(t, flatSchema(), shelf.Options{})

	agg, err := shelf.Aggregate(t.Context(), s.Root(), shelf.Options{})
	require.NoError(t, err)
	require.Len(t, agg.Tables, 1)
	require.Equal(t, 0, agg.Tables[shelf.MetadataTable].Len())
	require.Equal(t, []string{"run", "a", "b", shelf.AttachmentsColumn}, agg.Tables[shelf.MetadataTable].Columns())
}
