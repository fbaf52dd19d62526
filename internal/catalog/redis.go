package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tunevest/share-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Catalog records change rarely (only on mint), so a short TTL is
// plenty. Ledger state is deliberately outside this type's reach: only
// descriptive track records are ever cached.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary catalog store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, then cache or invalidate) ---

func (s *CachedStore) CreateTrack(ctx context.Context, t *model.Track) error {
	if err := s.primary.CreateTrack(ctx, t); err != nil {
		return err
	}
	s.cacheTrack(ctx, t)
	s.rdb.Del(ctx, mintedListKey())
	return nil
}

func (s *CachedStore) MarkMinted(ctx context.Context, id string, tokenID string) error {
	if err := s.primary.MarkMinted(ctx, id, tokenID); err != nil {
		return err
	}
	// Invalidate; next read re-populates.
	s.rdb.Del(ctx, trackKey(id), tokenKey(tokenID), mintedListKey())
	return nil
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	data, err := s.rdb.Get(ctx, trackKey(id)).Bytes()
	if err == nil {
		var t model.Track
		if json.Unmarshal(data, &t) == nil {
			return &t, nil
		}
	}

	t, err := s.primary.GetTrack(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheTrack(ctx, t)
	return t, nil
}

func (s *CachedStore) GetTrackByToken(ctx context.Context, tokenID string) (*model.Track, error) {
	// Try cache via token→trackID mapping.
	trackID, err := s.rdb.Get(ctx, tokenKey(tokenID)).Result()
	if err == nil {
		return s.GetTrack(ctx, trackID)
	}

	t, err := s.primary.GetTrackByToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	// Cache both the track and the token→ID mapping.
	s.cacheTrack(ctx, t)
	s.rdb.Set(ctx, tokenKey(tokenID), t.ID, s.ttl)
	return t, nil
}

func (s *CachedStore) ListMinted(ctx context.Context) ([]model.Track, error) {
	data, err := s.rdb.Get(ctx, mintedListKey()).Bytes()
	if err == nil {
		var tracks []model.Track
		if json.Unmarshal(data, &tracks) == nil {
			return tracks, nil
		}
	}

	tracks, err := s.primary.ListMinted(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tracks); err == nil {
		s.rdb.Set(ctx, mintedListKey(), data, s.ttl)
	}
	return tracks, nil
}

// --- Cache helpers ---

func (s *CachedStore) cacheTrack(ctx context.Context, t *model.Track) {
	if data, err := json.Marshal(t); err == nil {
		s.rdb.Set(ctx, trackKey(t.ID), data, s.ttl)
	}
}

func trackKey(id string) string { return fmt.Sprintf("track:%s", id) }
func tokenKey(id string) string { return fmt.Sprintf("token:%s", id) }
func mintedListKey() string     { return "tracks:minted" }
