package storage

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"riskform/internal/features"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleRow() features.FeatureRow {
	return features.NewFeatureRow([]string{"Alcohol", "BMI", "Age"}, []float64{2, 27.5, 45})
}

func TestNew(t *testing.T) {
	tempDir := t.TempDir()

	store, err := New(filepath.Join(tempDir, "nested"))
	require.NoError(t, err)
	defer store.Close()

	dbPath := filepath.Join(tempDir, "nested", dbFile)
	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created")
	assert.Equal(t, dbPath, store.Path())
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)

	assert.NoError(t, store.Close())
	assert.NoError(t, store.Close(), "closing twice")
	assert.Empty(t, store.Path())
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	assert.NoError(t, store.Close())
}

func TestSaveAndGet(t *testing.T) {
	store := newStore(t)

	saved, err := store.Save(Record{
		Mode:         "probability",
		Row:          sampleRow(),
		Probability:  0.75,
		Attributions: []float64{0.1, -0.2, 0.05},
		BaseValue:    0.3,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	got, err := store.Get(saved.ID)
	require.NoError(t, err)
	assert.Equal(t, saved.ID, got.ID)
	assert.Equal(t, 0.75, got.Probability)
	assert.Equal(t, []float64{0.1, -0.2, 0.05}, got.Attributions)
	assert.Equal(t, sampleRow().Names(), got.Row.Names())
	assert.Equal(t, sampleRow().Values(), got.Row.Values())
	assert.True(t, saved.CreatedAt.Equal(got.CreatedAt))

	_, err = store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSave_DuplicateID(t *testing.T) {
	store := newStore(t)

	_, err := store.Save(Record{ID: "fixed", Mode: "label", Label: "1", Row: sampleRow()})
	require.NoError(t, err)
	_, err = store.Save(Record{ID: "fixed", Mode: "label", Label: "0", Row: sampleRow()})
	assert.Error(t, err)

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestRecentAndRange(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		_, err := store.Save(Record{
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
			Mode:      "label",
			Label:     []string{"0", "1"}[i%2],
			Row:       sampleRow(),
		})
		require.NoError(t, err)
	}

	recent, err := store.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.True(t, recent[0].CreatedAt.Equal(base.Add(4*time.Minute)), "newest first")
	assert.True(t, recent[2].CreatedAt.Equal(base.Add(2*time.Minute)))

	all, err := store.Recent(100)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	ranged, err := store.Range(base.Add(time.Minute), base.Add(3*time.Minute))
	require.NoError(t, err)
	require.Len(t, ranged, 3, "range is inclusive")
	assert.True(t, ranged[0].CreatedAt.Equal(base.Add(time.Minute)))
	assert.True(t, ranged[2].CreatedAt.Equal(base.Add(3*time.Minute)))
}

func TestExportCSV(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	_, err := store.Save(Record{ID: "a", CreatedAt: base, Mode: "label", Label: "1", Row: sampleRow()})
	require.NoError(t, err)
	_, err = store.Save(Record{ID: "b", CreatedAt: base.Add(time.Second), Mode: "probability", Probability: 0.123456, Row: sampleRow()})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, store.ExportCSV(&buf, []string{"Alcohol", "BMI", "Age", "HDL_C"}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "created_at", "mode", "label", "probability", "Alcohol", "BMI", "Age", "HDL_C"}, rows[0])
	assert.Equal(t, []string{"a", "2024-05-01T12:00:00Z", "label", "1", "", "2", "27.5", "45", ""}, rows[1])
	assert.Equal(t, "0.1235", rows[2][4])
}

func TestWriteCSV_MatchesExport(t *testing.T) {
	store := newStore(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		_, err := store.Save(Record{CreatedAt: base.Add(time.Duration(i) * time.Second), Mode: "label", Label: "0", Row: sampleRow()})
		require.NoError(t, err)
	}
	columns := []string{"Alcohol", "BMI"}

	var exported bytes.Buffer
	require.NoError(t, store.ExportCSV(&exported, columns))

	records, err := store.Range(base, base.Add(time.Hour))
	require.NoError(t, err)
	var written bytes.Buffer
	require.NoError(t, WriteCSV(&written, columns, records))

	assert.Equal(t, exported.String(), written.String())
}
