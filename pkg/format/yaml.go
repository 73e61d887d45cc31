package format

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

// YAML reads and writes a YAML sequence of mappings, one mapping per row.
// Column order follows the order keys first appear in the document.
type YAML struct{}

// Read implements [Codec].
func (YAML) Read(r io.Reader) (*table.Table, error) {
	var doc yaml.Node

	err := yaml.NewDecoder(r).Decode(&doc)
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("yaml: %w", err)
	}

	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}

	if root.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("yaml: expected a sequence of mappings at line %d", root.Line)
	}

	t := table.New()

	for i, item := range root.Content {
		if item.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("yaml row %d: expected mapping at line %d", i, item.Line)
		}

		rec := make(map[string]value.Value, len(item.Content)/2)

		for k := 0; k+1 < len(item.Content); k += 2 {
			key := item.Content[k].Value

			v, err := value.FromYAML(item.Content[k+1])
			if err != nil {
				return nil, fmt.Errorf("yaml row %d key %q: %w", i, key, err)
			}

			t.AddColumn(key)
			rec[key] = v
		}

		t.AppendRecord(rec)
	}

	return t, nil
}

// Write implements [Codec]. Nulls are written as YAML null.
func (YAML) Write(w io.Writer, t *table.Table) error {
	seq := &yaml.Node{Kind: yaml.SequenceNode}

	for i := range t.Len() {
		row := &yaml.Node{Kind: yaml.MappingNode}

		for _, col := range t.Columns() {
			v, _ := t.Get(i, col)

			cell := &yaml.Node{}

			err := cell.Encode(v)
			if err != nil {
				return fmt.Errorf("yaml row %d column %q: %w", i, col, err)
			}

			row.Content = append(row.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: col}, cell)
		}

		seq.Content = append(seq.Content, row)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err := enc.Encode(seq)
	if err != nil {
		return fmt.Errorf("yaml: %w", err)
	}

	return enc.Close()
}
