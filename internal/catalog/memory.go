package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tunevest/share-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing and
// development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu     sync.RWMutex
	tracks map[string]*model.Track
}

// NewMemoryStore creates a new in-memory catalog.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tracks: make(map[string]*model.Track),
	}
}

func (s *MemoryStore) CreateTrack(_ context.Context, t *model.Track) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tracks[t.ID]; ok {
		return fmt.Errorf("track %s already exists", t.ID)
	}
	for _, existing := range s.tracks {
		if t.TokenID != "" && existing.TokenID == t.TokenID {
			return fmt.Errorf("track for token %s already exists", t.TokenID)
		}
	}

	// Store a copy to avoid external mutation.
	copy := *t
	s.tracks[t.ID] = &copy
	return nil
}

func (s *MemoryStore) GetTrack(_ context.Context, id string) (*model.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tracks[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	copy := *t
	return &copy, nil
}

func (s *MemoryStore) GetTrackByToken(_ context.Context, tokenID string) (*model.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, t := range s.tracks {
		if t.TokenID == tokenID {
			copy := *t
			return &copy, nil
		}
	}
	return nil, fmt.Errorf("%w: token %s", ErrNotFound, tokenID)
}

func (s *MemoryStore) ListMinted(_ context.Context) ([]model.Track, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tracks := make([]model.Track, 0, len(s.tracks))
	for _, t := range s.tracks {
		if t.Minted {
			tracks = append(tracks, *t)
		}
	}
	sort.Slice(tracks, func(i, j int) bool {
		return tracks[i].CreatedAt.After(tracks[j].CreatedAt)
	})
	return tracks, nil
}

func (s *MemoryStore) MarkMinted(_ context.Context, id string, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tracks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	t.Minted = true
	t.TokenID = tokenID
	return nil
}
