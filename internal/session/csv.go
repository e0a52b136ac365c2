package session

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LabelColumn is the header of the column holding the label display name.
const LabelColumn = "Movimiento"

// ErrFormat is returned for session files that cannot be replayed.
var ErrFormat = errors.New("invalid session file")

// Header returns the CSV header for samples of the given width:
// Timestamp, A0..A{channels-1}, Movimiento.
func Header(channels int) []string {
	header := make([]string, 0, channels+2)
	header = append(header, "Timestamp")
	for ch := 0; ch < channels; ch++ {
		header = append(header, "A"+strconv.Itoa(ch))
	}
	return append(header, LabelColumn)
}

// WriteCSV writes the header and one row per record.
func WriteCSV(w io.Writer, records []Record, channels int) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(channels)); err != nil {
		return err
	}
	row := make([]string, 0, channels+2)
	for i, r := range records {
		if len(r.Sample) != channels {
			return fmt.Errorf("record %d has %d channels, want %d", i, len(r.Sample), channels)
		}
		row = row[:0]
		row = append(row, strconv.FormatFloat(r.Timestamp, 'f', -1, 64))
		for _, v := range r.Sample {
			row = append(row, strconv.Itoa(v))
		}
		row = append(row, r.Label.Name)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Row is one replayed line of a session file.
type Row struct {
	Timestamp float64
	Sample    []int
	Label     string
}

// ReadCSV parses a session file. Columns are found by header name, so files
// with extra columns or a different column order still load. The label
// column is required; timestamp and sample columns are read when present, and
// a cell in them that does not parse is ErrFormat.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: empty file", ErrFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFormat, err)
	}

	labelCol, tsCol := -1, -1
	var sampleCols []int
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		switch {
		case name == LabelColumn:
			labelCol = i
		case name == "Timestamp":
			tsCol = i
		case len(name) > 1 && name[0] == 'A':
			if _, err := strconv.Atoi(name[1:]); err == nil {
				sampleCols = append(sampleCols, i)
			}
		}
	}
	if labelCol < 0 {
		return nil, fmt.Errorf("%w: no %q column", ErrFormat, LabelColumn)
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFormat, err)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		if labelCol >= len(rec) {
			return nil, fmt.Errorf("%w: line %d has %d fields, no label", ErrFormat, line, len(rec))
		}

		row := Row{Label: strings.TrimSpace(rec[labelCol])}
		if tsCol >= 0 && tsCol < len(rec) {
			ts, err := strconv.ParseFloat(strings.TrimSpace(rec[tsCol]), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column Timestamp: %w", ErrFormat, line, err)
			}
			row.Timestamp = ts
		}
		for _, c := range sampleCols {
			if c >= len(rec) {
				break
			}
			v, err := strconv.Atoi(strings.TrimSpace(rec[c]))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d column %s: %w", ErrFormat, line, header[c], err)
			}
			row.Sample = append(row.Sample, v)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadFile parses the session file at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// Labels returns the label stream of rows.
func Labels(rows []Row) []string {
	labels := make([]string, len(rows))
	for i, r := range rows {
		labels[i] = r.Label
	}
	return labels
}
