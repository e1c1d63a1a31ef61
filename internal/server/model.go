package server

import (
	"sync"

	"github.com/kozaktomas/face-watch/internal/gallery"
)

// Model holds the currently loaded gallery behind a read lock so a train run
// can swap it while frames are being resolved.
type Model struct {
	mu      sync.RWMutex
	gallery *gallery.Gallery
	err     error
}

// NewModel loads the gallery from path. A load failure is remembered, not
// fatal; Current reports it until Swap installs a working gallery.
func NewModel(path string) *Model {
	g, err := gallery.Load(path)
	return &Model{gallery: g, err: err}
}

// Current returns the active gallery or the load error.
func (m *Model) Current() (*gallery.Gallery, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gallery, m.err
}

// Swap installs a freshly trained gallery and clears any load error.
func (m *Model) Swap(g *gallery.Gallery) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gallery = g
	m.err = nil
}
