package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// The investor-share percentage is stored as NUMERIC for exact decimal
// precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed catalog.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) CreateTrack(ctx context.Context, t *model.Track) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tracks (id, token_id, title, artist_name, cover_url, investor_share, minted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7, $8)`,
		t.ID, t.TokenID, t.Title, t.ArtistName, t.CoverURL,
		t.InvestorShare.String(), t.Minted, t.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetTrack(ctx context.Context, id string) (*model.Track, error) {
	return s.queryOne(ctx,
		`SELECT id, token_id, title, artist_name, cover_url,
		        investor_share::TEXT, minted, created_at
		 FROM tracks WHERE id = $1`, id)
}

func (s *PostgresStore) GetTrackByToken(ctx context.Context, tokenID string) (*model.Track, error) {
	return s.queryOne(ctx,
		`SELECT id, token_id, title, artist_name, cover_url,
		        investor_share::TEXT, minted, created_at
		 FROM tracks WHERE token_id = $1`, tokenID)
}

func (s *PostgresStore) ListMinted(ctx context.Context) ([]model.Track, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, token_id, title, artist_name, cover_url,
		        investor_share::TEXT, minted, created_at
		 FROM tracks WHERE minted ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tracks []model.Track
	for rows.Next() {
		var t model.Track
		var share string
		if err := rows.Scan(&t.ID, &t.TokenID, &t.Title, &t.ArtistName, &t.CoverURL,
			&share, &t.Minted, &t.CreatedAt); err != nil {
			return nil, err
		}
		t.InvestorShare, _ = decimal.NewFromString(share)
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

func (s *PostgresStore) MarkMinted(ctx context.Context, id string, tokenID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE tracks SET minted = TRUE, token_id = $2 WHERE id = $1`,
		id, tokenID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *PostgresStore) queryOne(ctx context.Context, sql string, arg any) (*model.Track, error) {
	var t model.Track
	var share string

	err := s.pool.QueryRow(ctx, sql, arg).
		Scan(&t.ID, &t.TokenID, &t.Title, &t.ArtistName, &t.CoverURL,
			&share, &t.Minted, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("get track %v: %w", arg, err)
	}

	t.InvestorShare, _ = decimal.NewFromString(share)
	return &t, nil
}
