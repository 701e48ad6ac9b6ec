package ml

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// AttributionTracker aggregates per-feature attribution magnitudes across
// predictions so the dashboard can show which inputs drive the model.
type AttributionTracker struct {
	mu       sync.RWMutex
	names    []string
	stats    map[string]*AttributionStats
	savePath string
}

// AttributionStats summarizes the attributions observed for one feature.
type AttributionStats struct {
	Name         string    `json:"name"`
	UsageCount   int64     `json:"usage_count"`
	MeanAbs      float64   `json:"mean_abs"`
	MeanSigned   float64   `json:"mean_signed"`
	MaxAbs       float64   `json:"max_abs"`
	PositiveHits int64     `json:"positive_hits"`
	LastUpdated  time.Time `json:"last_updated"`
}

// NewAttributionTracker creates a tracker for the given feature order. When
// savePath names an existing file its statistics are loaded.
func NewAttributionTracker(names []string, savePath string) *AttributionTracker {
	t := &AttributionTracker{
		names:    append([]string(nil), names...),
		stats:    make(map[string]*AttributionStats, len(names)),
		savePath: savePath,
	}
	for _, name := range names {
		t.stats[name] = &AttributionStats{Name: name}
	}

	if savePath != "" {
		if err := t.Load(); err != nil {
			log.Warn().Err(err).Str("path", savePath).Msg("Failed to load attribution stats")
		}
	}
	return t
}

// Observe folds one attribution vector into the running means. Names and
// attributions are aligned by position; unknown names are ignored.
func (t *AttributionTracker) Observe(names []string, attrs []float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for i, name := range names {
		if i >= len(attrs) {
			break
		}
		st, ok := t.stats[name]
		if !ok {
			continue
		}
		v := attrs[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		st.UsageCount++
		n := float64(st.UsageCount)
		st.MeanAbs += (math.Abs(v) - st.MeanAbs) / n
		st.MeanSigned += (v - st.MeanSigned) / n
		if math.Abs(v) > st.MaxAbs {
			st.MaxAbs = math.Abs(v)
		}
		if v > 0 {
			st.PositiveHits++
		}
		st.LastUpdated = now
	}
}

// Snapshot returns a copy of the statistics in feature order.
func (t *AttributionTracker) Snapshot() []AttributionStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]AttributionStats, 0, len(t.names))
	for _, name := range t.names {
		out = append(out, *t.stats[name])
	}
	return out
}

// Top returns the n features with the largest mean absolute attribution.
// Ties keep feature order.
func (t *AttributionTracker) Top(n int) []AttributionStats {
	all := t.Snapshot()
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].MeanAbs > all[j].MeanAbs
	})
	if n < 0 || n > len(all) {
		n = len(all)
	}
	return all[:n]
}

// Save writes the statistics as JSON to the configured path.
func (t *AttributionTracker) Save() error {
	if t.savePath == "" {
		return nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(t.savePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(t.stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(t.savePath, data, 0o600)
}

// Load replaces the statistics of known features with those stored on disk.
// A missing file is not an error.
func (t *AttributionTracker) Load() error {
	if t.savePath == "" {
		return nil
	}

	data, err := os.ReadFile(t.savePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var stored map[string]*AttributionStats
	if err := json.Unmarshal(data, &stored); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for name, st := range stored {
		if _, ok := t.stats[name]; ok && st != nil {
			st.Name = name
			t.stats[name] = st
		}
	}
	return nil
}

// Reset clears all statistics.
func (t *AttributionTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range t.names {
		t.stats[name] = &AttributionStats{Name: name}
	}
}
