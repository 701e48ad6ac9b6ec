package ml

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttributionTracker_Observe(t *testing.T) {
	tr := NewAttributionTracker([]string{"a", "b", "c"}, "")

	tr.Observe([]string{"a", "b", "c"}, []float64{0.2, -0.4, 0})
	tr.Observe([]string{"a", "b", "c"}, []float64{-0.4, -0.2, 0})
	tr.Observe([]string{"zzz"}, []float64{9})

	snap := tr.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "a", snap[0].Name)
	assert.Equal(t, int64(2), snap[0].UsageCount)
	assert.InDelta(t, 0.3, snap[0].MeanAbs, 1e-12)
	assert.InDelta(t, -0.1, snap[0].MeanSigned, 1e-12)
	assert.InDelta(t, 0.4, snap[0].MaxAbs, 1e-12)
	assert.Equal(t, int64(1), snap[0].PositiveHits)
	assert.InDelta(t, 0.3, snap[1].MeanAbs, 1e-12)
	assert.Equal(t, int64(0), snap[1].PositiveHits)

	top := tr.Top(2)
	require.Len(t, top, 2)
	assert.Equal(t, "a", top[0].Name, "ties keep feature order")
	assert.Equal(t, "b", top[1].Name)
	assert.Len(t, tr.Top(10), 3)
}

func TestAttributionTracker_SaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats", "attributions.json")

	tr := NewAttributionTracker([]string{"a", "b"}, path)
	tr.Observe([]string{"a", "b"}, []float64{0.5, -0.25})
	require.NoError(t, tr.Save())

	loaded := NewAttributionTracker([]string{"a", "b"}, path)
	snap := loaded.Snapshot()
	assert.Equal(t, int64(1), snap[0].UsageCount)
	assert.InDelta(t, 0.25, snap[1].MeanAbs, 1e-12)

	loaded.Reset()
	assert.Equal(t, int64(0), loaded.Snapshot()[0].UsageCount)
}

func TestAttributionTracker_MissingFile(t *testing.T) {
	tr := NewAttributionTracker([]string{"a"}, filepath.Join(t.TempDir(), "none.json"))
	assert.NoError(t, tr.Load())
	assert.Equal(t, int64(0), tr.Snapshot()[0].UsageCount)
}

func TestAttributionTracker_CorruptFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	tr := NewAttributionTracker([]string{"a"}, path)
	assert.Equal(t, int64(0), tr.Snapshot()[0].UsageCount)

	tr.Observe([]string{"a"}, []float64{1})
	require.NoError(t, tr.Save())
	assert.Equal(t, int64(1), NewAttributionTracker([]string{"a"}, path).Snapshot()[0].UsageCount)
}
