package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/emgfes/internal/classifier"
	"github.com/banshee-data/emgfes/internal/config"
	"github.com/banshee-data/emgfes/internal/emg"
)

func defaultTable(t *testing.T) *classifier.Table {
	t.Helper()
	table, err := classifier.NewTable(config.DefaultClassNames, config.DefaultIdleClass)
	require.NoError(t, err)
	return table
}

func sampleRecords(t *testing.T, n int) []Record {
	t.Helper()
	labels := defaultTable(t).Labels()
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	records := make([]Record, n)
	for i := range records {
		records[i] = NewRecord(
			start.Add(time.Duration(i)*500*time.Millisecond),
			emg.Sample{i, i + 1, i + 2, i + 3, i + 4},
			labels[i%len(labels)],
		)
	}
	return records
}

func TestCSVRoundTripsLabels(t *testing.T) {
	t.Parallel()

	records := sampleRecords(t, 12)
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records, 5))

	firstLine, _, _ := strings.Cut(buf.String(), "\n")
	assert.Equal(t, "Timestamp,A0,A1,A2,A3,A4,Movimiento", firstLine)

	rows, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, rows, len(records))

	want := make([]string, len(records))
	for i, r := range records {
		want[i] = r.Label.Name
	}
	if diff := cmp.Diff(want, Labels(rows)); diff != "" {
		t.Errorf("label stream mismatch (-want +got):\n%s", diff)
	}
	for i, row := range rows {
		assert.Equal(t, []int(records[i].Sample), row.Sample)
		assert.InDelta(t, records[i].Timestamp, row.Timestamp, 1e-6)
	}
}

func TestReadCSVFindsLabelByHeaderName(t *testing.T) {
	t.Parallel()

	in := "Movimiento, Timestamp, A0, A1, A2, A3, A4, Extra\n" +
		"Middle, 1.5, 1, 2, 3, 4, 5, x\n" +
		"\n" +
		"Nada, 2.0, 1, 2, 3, 4, 5, y\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"Middle", "Nada"}, Labels(rows))
	assert.Equal(t, 1.5, rows[0].Timestamp)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, rows[1].Sample)
}

func TestReadCSVErrors(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"empty":           "",
		"no label column": "Timestamp,A0\n1,2\n",
		"short row":       "Timestamp,A0,Movimiento\n1\n",
		"bad sample":      "Timestamp,A0,Movimiento\n1,abc,Nada\n",
		"bad timestamp":   "Timestamp,A0,Movimiento\nyesterday,1,Nada\n",
		"empty timestamp": "Timestamp,A0,Movimiento\n,1,Nada\n",
		"bad quoting":     "Timestamp,Movimiento\n1,\"Nada\n",
	}
	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(in))
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}

func TestWriteCSVRejectsWrongWidth(t *testing.T) {
	t.Parallel()

	err := WriteCSV(&bytes.Buffer{}, []Record{{Sample: emg.Sample{1, 2}}}, 5)
	assert.Error(t, err)
}

func TestRecorderSaveClearsOnlyAfterWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	rec := NewRecorder(5)

	_, err := rec.Save(filepath.Join(dir, "empty.csv"))
	assert.ErrorIs(t, err, ErrEmpty)

	for _, r := range sampleRecords(t, 3) {
		rec.Append(r)
	}

	_, err = rec.Save(filepath.Join(dir, "missing", "s.csv"))
	assert.ErrorIs(t, err, ErrPersist)
	assert.Equal(t, 3, rec.Len(), "failed save must keep the session")

	path := filepath.Join(dir, "s.csv")
	saved, err := rec.Save(path)
	require.NoError(t, err)
	assert.Len(t, saved, 3)
	assert.Equal(t, 0, rec.Len())

	rows, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Índice", "Middle", "Anular"}, Labels(rows))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary file left behind")
}

func TestRecorderDiscardAndSnapshot(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(5)
	for _, r := range sampleRecords(t, 4) {
		rec.Append(r)
	}
	snap := rec.Snapshot()
	snap[0].Label.Name = "mutated"
	assert.Equal(t, "Índice", rec.Snapshot()[0].Label.Name)

	assert.Equal(t, 4, rec.Discard())
	assert.Equal(t, 0, rec.Len())
}

func TestRecorderConcurrentAppend(t *testing.T) {
	t.Parallel()

	rec := NewRecorder(5)
	records := sampleRecords(t, 10)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, r := range records {
				rec.Append(r)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 80, rec.Len())
}
