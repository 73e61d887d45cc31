package shelf

import (
	"context"
	"fmt"
	"maps"
	"path/filepath"
	"slices"

	"github.com/calvinalkan/shelf/pkg/format"
	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

// MetadataTable is the key of the per-record table in [Aggregation.Tables].
const MetadataTable = "metadata"

// Aggregation is the merged view of a whole shelf.
type Aggregation struct {
	// Tables always holds [MetadataTable]: one row per record, with field
	// columns, then declared attributes, then undeclared metadata keys in
	// first-seen order, then [AttachmentsColumn].
	//
	// Every other entry merges the same-named tabular attachment of all
	// records, keyed by file stem, each row prefixed with the field values
	// of its record. A stem seen with more than one tabular extension, or
	// equal to [MetadataTable], is keyed by the full file name instead.
	Tables map[string]*table.Table

	// Files lists non-tabular attachments, and tabular ones skipped as
	// unreadable, as paths relative to the root in walk order.
	Files []string

	// Warnings collects skipped records and attachments.
	Warnings []Warning
}

// Aggregate loads the shelf at root and merges it.
func Aggregate(ctx context.Context, root string, opts Options) (*Aggregation, error) {
	s, err := Load(root, opts)
	if err != nil {
		return nil, err
	}

	return s.Aggregate(ctx)
}

type occurrence struct {
	view *RecordView
	name string
}

// Aggregate walks the shelf and merges all metadata and all tabular
// attachments.
//
// Columns that differ between records are unioned and missing cells are
// null. A tabular attachment that fails to parse is skipped with a
// warning and listed like a non-tabular file, or aborts the call if the
// schema's read error policy is [ReadErrorFail]. An attachment column
// named like a field is renamed to "<name>_data", or "<name>_data_2" and
// so on if that name is taken too.
func (s *Shelf) Aggregate(ctx context.Context) (*Aggregation, error) {
	w := s.Walker()

	var views []*RecordView

	for view := range w.All(ctx) {
		views = append(views, &view)
	}

	if w.Err() != nil {
		return nil, w.Err()
	}

	var tabular []occurrence

	for _, view := range views {
		for _, name := range view.Files {
			if s.opts.Formats.IsTabular(name) {
				tabular = append(tabular, occurrence{view: view, name: name})
			}
		}
	}

	keys := tableKeys(tabular)
	parts := make(map[string][]*table.Table)
	unreadable := make(map[string]bool)

	var order []string

	for _, occ := range tabular {
		err := ctx.Err()
		if err != nil {
			return nil, err
		}

		t, warnings, err := s.readOccurrence(occ)
		if err != nil {
			return nil, err
		}

		for _, warning := range warnings {
			w.addWarning(warning)
		}

		if t == nil {
			unreadable[occ.rel()] = true

			continue
		}

		key := keys[occ.name]
		if _, seen := parts[key]; !seen {
			order = append(order, key)
		}

		parts[key] = append(parts[key], t)
	}

	agg := &Aggregation{Tables: make(map[string]*table.Table)}

	listed := func(view *RecordView, name string) bool {
		return !s.opts.Formats.IsTabular(name) || unreadable[filepath.Join(view.Path, name)]
	}

	for _, view := range views {
		for _, name := range view.Files {
			if listed(view, name) {
				agg.Files = append(agg.Files, filepath.Join(view.Path, name))
			}
		}
	}

	agg.Tables[MetadataTable] = s.metadataTable(views, listed)

	for _, key := range order {
		agg.Tables[key] = table.Concat(parts[key]...)
	}

	agg.Warnings = w.Warnings()

	s.opts.Logger.Debug("aggregated", "records", len(views), "tables", len(agg.Tables), "warnings", len(agg.Warnings))

	return agg, nil
}

func (s *Shelf) metadataTable(views []*RecordView, listed func(*RecordView, string) bool) *table.Table {
	columns := append(s.schema.FieldNames(), s.schema.AttributeNames()...)
	known := map[string]bool{AttachmentsColumn: true}

	for _, c := range columns {
		known[c] = true
	}

	for _, view := range views {
		for _, k := range slices.Sorted(maps.Keys(view.Metadata)) {
			if !known[k] {
				known[k] = true
				columns = append(columns, k)
			}
		}
	}

	columns = append(columns, AttachmentsColumn)
	out := table.New(columns...)

	for _, view := range views {
		rec := make(map[string]value.Value, len(view.Fields)+len(view.Metadata)+1)
		maps.Copy(rec, view.Metadata)

		for _, fv := range view.Fields {
			rec[fv.Name] = fv.Value
		}

		var opaque []value.Value

		for _, name := range view.Files {
			if listed(view, name) {
				opaque = append(opaque, value.String(filepath.Join(view.Path, name)))
			}
		}

		rec[AttachmentsColumn] = value.List(opaque...)
		out.AppendRecord(rec)
	}

	return out
}

func (occ occurrence) rel() string {
	return filepath.Join(occ.view.Path, occ.name)
}

// readOccurrence returns the prefixed table for one attachment. The table
// is nil when the attachment was skipped.
func (s *Shelf) readOccurrence(occ occurrence) (*table.Table, []Warning, error) {
	rel := occ.rel()

	f, err := s.opts.FS.Open(filepath.Join(s.root, rel))
	if err == nil {
		var t *table.Table

		t, err = s.opts.Formats.Read(occ.name, f)
		_ = f.Close()

		if err == nil {
			var (
				out      *table.Table
				warnings []Warning
			)

			out, warnings, err = s.prefix(occ, t)
			if err == nil {
				return out, warnings, nil
			}
		}
	}

	err = fmt.Errorf("%w: %w", ErrUnreadableAttachment, err)
	if s.schema.OnReadError == ReadErrorFail {
		return nil, nil, withContext(err, "", rel)
	}

	return nil, []Warning{{Path: rel, Err: err}}, nil
}

// prefix renames attachment columns that clash with a field and prepends
// the field values of the owning record.
func (s *Shelf) prefix(occ occurrence, t *table.Table) (*table.Table, []Warning, error) {
	names := make([]string, len(occ.view.Fields))
	values := make([]value.Value, len(occ.view.Fields))

	for i, fv := range occ.view.Fields {
		names[i], values[i] = fv.Name, fv.Value
	}

	var warnings []Warning

	for _, fv := range occ.view.Fields {
		if !t.HasColumn(fv.Name) {
			continue
		}

		renamed := freeColumn(t, names, fv.Name+"_data")

		err := t.RenameColumn(fv.Name, renamed)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrColumnConflict, err)
		}

		warnings = append(warnings, Warning{
			Path: occ.rel(),
			Err:  fmt.Errorf("%w: column %q renamed to %q", ErrColumnConflict, fv.Name, renamed),
		})
	}

	out, err := t.WithPrefix(names, values)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrColumnConflict, err)
	}

	return out, warnings, nil
}

// freeColumn returns base, or base with the first numeric suffix from 2 on,
// that is neither a column of t nor a field name.
func freeColumn(t *table.Table, fields []string, base string) string {
	taken := func(name string) bool {
		return t.HasColumn(name) || slices.Contains(fields, name)
	}

	name := base
	for n := 2; taken(name); n++ {
		name = fmt.Sprintf("%s_%d", base, n)
	}

	return name
}

// tableKeys maps each tabular attachment name to its aggregation key.
func tableKeys(occs []occurrence) map[string]string {
	byStem := make(map[string]map[string]bool)

	for _, occ := range occs {
		stem := format.Stem(occ.name)
		if byStem[stem] == nil {
			byStem[stem] = make(map[string]bool)
		}

		byStem[stem][occ.name] = true
	}

	keys := make(map[string]string)

	for _, occ := range occs {
		stem := format.Stem(occ.name)
		if len(byStem[stem]) > 1 || stem == MetadataTable {
			keys[occ.name] = occ.name
		} else {
			keys[occ.name] = stem
		}
	}

	return keys
}
