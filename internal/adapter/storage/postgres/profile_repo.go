package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ProfileRepo implements ports.ProfileRepository.
type ProfileRepo struct {
	pool Pool
}

// NewProfileRepo creates a new ProfileRepo.
func NewProfileRepo(pool Pool) *ProfileRepo {
	return &ProfileRepo{pool: pool}
}

// Create inserts a new profile.
func (r *ProfileRepo) Create(ctx context.Context, p *domain.Profile) error {
	query := `INSERT INTO profiles (id, username, password_hash, handle, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := r.pool.Exec(ctx, query,
		p.ID, p.Username, p.PasswordHash, p.Handle, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

// GetByID fetches a profile by its peer ID.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	query := `SELECT id, username, password_hash, handle, created_at, updated_at
		FROM profiles WHERE id = $1`

	p := &domain.Profile{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&p.ID, &p.Username, &p.PasswordHash, &p.Handle, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by id: %w", err)
	}
	return p, nil
}

// GetByUsername fetches a profile by username.
func (r *ProfileRepo) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	query := `SELECT id, username, password_hash, handle, created_at, updated_at
		FROM profiles WHERE username = $1`

	p := &domain.Profile{}
	err := r.pool.QueryRow(ctx, query, username).Scan(
		&p.ID, &p.Username, &p.PasswordHash, &p.Handle, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile by username: %w", err)
	}
	return p, nil
}
