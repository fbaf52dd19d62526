// Package catalog defines the persistence interface for the track catalog.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
//
// The catalog holds only descriptive records: title, artist, cover art, the
// minted flag, and the token ID that links a track to its ledger asset.
// Ledger state (supply, jackpot, round expiry) is never stored here — it is
// read fresh from the ledger on every use.
package catalog

import (
	"context"
	"errors"

	"github.com/tunevest/share-engine/internal/model"
)

// ErrNotFound is returned when no track matches the requested ID or token.
var ErrNotFound = errors.New("catalog: track not found")

// Store is the catalog persistence interface. PostgreSQL is the source of
// truth; Redis provides a read-through cache layer.
type Store interface {
	// CreateTrack persists a new track record.
	CreateTrack(ctx context.Context, track *model.Track) error

	// GetTrack retrieves a track by its ID.
	GetTrack(ctx context.Context, id string) (*model.Track, error)

	// GetTrackByToken retrieves a track by its ledger token ID.
	GetTrackByToken(ctx context.Context, tokenID string) (*model.Track, error)

	// ListMinted returns all minted tracks, newest first. Only minted
	// tracks are investable.
	ListMinted(ctx context.Context) ([]model.Track, error)

	// MarkMinted flips a track to minted once its ledger asset exists.
	MarkMinted(ctx context.Context, id string, tokenID string) error
}
