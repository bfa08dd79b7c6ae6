package table

import (
	"encoding/csv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go-forecast-pipeline/internal/errors"
	"go-forecast-pipeline/internal/model"
	"go-forecast-pipeline/pkg/utils"
)

// Decode reads a CSV stream with a header row. Cells are typed with
// utils.ParseValue.
func Decode(r io.Reader) (*Table, error) {
	csvReader := csv.NewReader(r)
	csvReader.LazyQuotes = true
	headers, err := csvReader.Read()
	if err == io.EOF {
		return New(nil), nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CSV header")
	}
	cols := make([]string, len(headers))
	for i, h := range headers {
		// Clean header names: trim whitespace and remove all quotes
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		cols[i] = strings.ReplaceAll(h, `"`, "")
	}

	t := New(cols)
	for line := 2; ; line++ {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "CSV read error at line %d", line)
		}
		row := make(model.GenericRecord, len(cols))
		for i, c := range cols {
			if i < len(record) {
				row[c] = utils.ParseValue(record[i])
			} else {
				row[c] = nil
			}
		}
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// Encode writes the table as CSV with a header row.
func (t *Table) Encode(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.columns); err != nil {
		return errors.Wrap(err, "failed to write header")
	}
	row := make([]string, len(t.columns))
	for _, r := range t.rows {
		for i, c := range t.columns {
			row[i] = utils.FormatValue(r[c])
		}
		if err := writer.Write(row); err != nil {
			return errors.Wrap(err, "failed to write row")
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV loads a CSV file.
func ReadCSV(path string) (*Table, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open CSV file %s", path)
	}
	defer file.Close()
	t, err := Decode(file)
	if err != nil {
		return nil, errors.Wrapf(err, "file %s", path)
	}
	return t, nil
}

// WriteCSV writes the table to path, creating parent directories.
func (t *Table) WriteCSV(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrap(err, "failed to create directory")
	}
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %s", path)
	}
	if err := t.Encode(file); err != nil {
		file.Close()
		return errors.Wrapf(err, "file %s", path)
	}
	return file.Close()
}
