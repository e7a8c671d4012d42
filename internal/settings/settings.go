// Package settings holds the user settings read by a playback session: the
// requested grid size and the current source text.
package settings

import (
	"fmt"
	"os"
	"slices"
	"sync"
)

const (
	MinGridSize     = 1
	MaxGridSize     = 256
	DefaultGridSize = 16
)

// GridSteps are the sizes the resolution keys move through.
var GridSteps = []int{4, 8, 16, 32, 64, 128, 256}

// Store is safe for concurrent use.
type Store struct {
	mu         sync.RWMutex
	gridSize   int
	source     string
	sourcePath string
}

func New(gridSize int, source string) *Store {
	return &Store{gridSize: Clamp(gridSize), source: source}
}

// Clamp limits size to MinGridSize..MaxGridSize. Zero selects the default.
func Clamp(size int) int {
	switch {
	case size == 0:
		return DefaultGridSize
	case size < MinGridSize:
		return MinGridSize
	case size > MaxGridSize:
		return MaxGridSize
	}
	return size
}

func (s *Store) GridSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gridSize
}

// SetGridSize stores the clamped size and reports the stored value and
// whether it changed.
func (s *Store) SetGridSize(size int) (int, bool) {
	size = Clamp(size)
	s.mu.Lock()
	defer s.mu.Unlock()
	if size == s.gridSize {
		return size, false
	}
	s.gridSize = size
	return size, true
}

func (s *Store) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *Store) SetSource(source string) {
	s.mu.Lock()
	s.source = source
	s.mu.Unlock()
}

// LoadSource reads the source text from path and remembers the path for
// Reload.
func (s *Store) LoadSource(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("settings: read source: %w", err)
	}
	s.mu.Lock()
	s.source = string(data)
	s.sourcePath = path
	s.mu.Unlock()
	return nil
}

// Reload re-reads the source file given to LoadSource. Without one it does
// nothing.
func (s *Store) Reload() error {
	s.mu.RLock()
	path := s.sourcePath
	s.mu.RUnlock()
	if path == "" {
		return nil
	}
	return s.LoadSource(path)
}

// NextGridSize returns the step after cur in direction dir (+1 or -1). Sizes
// between steps snap to the neighbouring step; the ends saturate.
func NextGridSize(cur, dir int) int {
	if dir > 0 {
		for _, step := range GridSteps {
			if step > cur {
				return step
			}
		}
		return GridSteps[len(GridSteps)-1]
	}
	for _, step := range slices.Backward(GridSteps) {
		if step < cur {
			return step
		}
	}
	return GridSteps[0]
}
