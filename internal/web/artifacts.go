package web

import (
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"riskform/internal/features"
	"riskform/internal/ml"
)

const defaultArtifactCapacity = 256

type artifact struct {
	row      features.FeatureRow
	result   ml.Result
	plotPath string
}

// artifactCache keeps the most recent predictions with attributions so their
// plot and chart can be fetched after the page renders. Evicting an entry
// removes its plot file.
type artifactCache struct {
	mu       sync.Mutex
	capacity int
	order    []string
	items    map[string]*artifact
}

func newArtifactCache(capacity int) *artifactCache {
	return &artifactCache{capacity: capacity, items: make(map[string]*artifact)}
}

func (c *artifactCache) put(id string, a *artifact) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; !ok {
		c.order = append(c.order, id)
	}
	c.items[id] = a
	for len(c.order) > c.capacity {
		oldest := c.order[0]
		c.order = c.order[1:]
		removePlot(c.items[oldest])
		delete(c.items, oldest)
	}
}

func (c *artifactCache) get(id string) (*artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	a, ok := c.items[id]
	return a, ok
}

func (c *artifactCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range c.items {
		removePlot(a)
	}
	c.items = make(map[string]*artifact)
	c.order = nil
}

func removePlot(a *artifact) {
	if a == nil || a.plotPath == "" {
		return
	}
	if err := os.Remove(a.plotPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", a.plotPath).Msg("Failed to remove plot file")
	}
}
