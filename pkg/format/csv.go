package format

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

// CSV reads and writes delimited text with a header row.
//
// Cells are inferred with [value.Infer]: empty cells become null, integer
// and decimal text become numbers, everything else stays a string. On
// write, null is an empty cell and other values use [value.Value.Text].
type CSV struct {
	// Comma is the field delimiter. Zero means ','.
	Comma rune
}

func (c CSV) comma() rune {
	if c.Comma == 0 {
		return ','
	}

	return c.Comma
}

// Read implements [Codec].
func (c CSV) Read(r io.Reader) (*table.Table, error) {
	reader := csv.NewReader(r)
	reader.Comma = c.comma()
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	t, err := table.NewChecked(header...)
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}

	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}

		row := make([]value.Value, len(rec))
		for i, cell := range rec {
			row[i] = value.Infer(cell)
		}

		err = t.AppendRow(row...)
		if err != nil {
			return nil, fmt.Errorf("csv: %w", err)
		}
	}

	return t, nil
}

// Write implements [Codec].
func (c CSV) Write(w io.Writer, t *table.Table) error {
	writer := csv.NewWriter(w)
	writer.Comma = c.comma()

	err := writer.Write(t.Columns())
	if err != nil {
		return fmt.Errorf("csv header: %w", err)
	}

	rec := make([]string, t.Width())
	for i := range t.Len() {
		for j, v := range t.Row(i) {
			rec[j] = v.Text()
		}

		err := writer.Write(rec)
		if err != nil {
			return fmt.Errorf("csv row %d: %w", i, err)
		}
	}

	writer.Flush()

	return writer.Error()
}
