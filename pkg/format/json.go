package format

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/calvinalkan/shelf/pkg/table"
	"github.com/calvinalkan/shelf/pkg/value"
)

var errNotObject = errors.New("expected JSON object")

// JSON reads and writes a JSON array of objects, one object per row.
// Column order follows the order keys first appear in the file.
type JSON struct{}

// Read implements [Codec].
func (JSON) Read(r io.Reader) (*table.Table, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if errors.Is(err, io.EOF) {
		return table.New(), nil
	}

	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, fmt.Errorf("json: expected array of objects, got %v", tok)
	}

	t := table.New()

	for dec.More() {
		err := readObjectRow(dec, t)
		if err != nil {
			return nil, fmt.Errorf("json row %d: %w", t.Len(), err)
		}
	}

	_, err = dec.Token()
	if err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}

	return t, nil
}

// Write implements [Codec]. Nulls are written as JSON null.
func (JSON) Write(w io.Writer, t *table.Table) error {
	bw := bufio.NewWriter(w)

	_, _ = bw.WriteString("[")

	for i := range t.Len() {
		if i > 0 {
			_, _ = bw.WriteString(",")
		}

		_, _ = bw.WriteString("\n  ")

		err := writeObjectRow(bw, t, i)
		if err != nil {
			return fmt.Errorf("json row %d: %w", i, err)
		}
	}

	if t.Len() > 0 {
		_, _ = bw.WriteString("\n")
	}

	_, _ = bw.WriteString("]\n")

	return bw.Flush()
}

// JSONLines reads and writes one JSON object per line.
type JSONLines struct{}

// Read implements [Codec]. Blank lines are ignored.
func (JSONLines) Read(r io.Reader) (*table.Table, error) {
	t := table.New()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++

		data := bytes.TrimSpace(scanner.Bytes())
		if len(data) == 0 {
			continue
		}

		dec := json.NewDecoder(bytes.NewReader(data))

		err := readObjectRow(dec, t)
		if err != nil {
			return nil, fmt.Errorf("jsonl line %d: %w", line, err)
		}
	}

	err := scanner.Err()
	if err != nil {
		return nil, fmt.Errorf("jsonl: %w", err)
	}

	return t, nil
}

// Write implements [Codec].
func (JSONLines) Write(w io.Writer, t *table.Table) error {
	bw := bufio.NewWriter(w)

	for i := range t.Len() {
		err := writeObjectRow(bw, t, i)
		if err != nil {
			return fmt.Errorf("jsonl row %d: %w", i, err)
		}

		_, _ = bw.WriteString("\n")
	}

	return bw.Flush()
}

// readObjectRow decodes the next object from dec and appends it to t,
// adding columns in key order.
func readObjectRow(dec *json.Decoder, t *table.Table) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}

	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w, got %v", errNotObject, tok)
	}

	rec := make(map[string]value.Value)

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}

		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("%w: key %v", errNotObject, keyTok)
		}

		var v value.Value

		err = dec.Decode(&v)
		if err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}

		t.AddColumn(key)
		rec[key] = v
	}

	_, err = dec.Token()
	if err != nil {
		return err
	}

	t.AppendRecord(rec)

	return nil
}

func writeObjectRow(w *bufio.Writer, t *table.Table, i int) error {
	_, _ = w.WriteString("{")

	for j, col := range t.Columns() {
		if j > 0 {
			_, _ = w.WriteString(", ")
		}

		key, err := json.Marshal(col)
		if err != nil {
			return err
		}

		v, _ := t.Get(i, col)

		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("column %q: %w", col, err)
		}

		_, _ = w.Write(key)
		_, _ = w.WriteString(": ")
		_, _ = w.Write(data)
	}

	_, _ = w.WriteString("}")

	return nil
}
