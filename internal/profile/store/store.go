package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/MrJamesThe3rd/pocketfin/internal/profile"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts the user or refreshes the identity-owned columns of an existing row.
// display_name and profile_image_url are user-editable, so they are only filled while still empty.
func (s *Store) Upsert(ctx context.Context, p *profile.Profile) (*profile.Profile, error) {
	query := `
		INSERT INTO users (id, user_name, display_name, email, profile_image_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (id) DO UPDATE SET
			user_name         = CASE WHEN excluded.user_name <> '' THEN excluded.user_name ELSE users.user_name END,
			display_name      = CASE WHEN users.display_name = '' THEN excluded.display_name ELSE users.display_name END,
			email             = CASE WHEN excluded.email <> '' THEN excluded.email ELSE users.email END,
			profile_image_url = CASE WHEN users.profile_image_url = '' THEN excluded.profile_image_url ELSE users.profile_image_url END,
			updated_at        = excluded.updated_at
	`

	_, err := s.db.ExecContext(ctx, query,
		p.ID,
		p.UserName,
		p.DisplayName,
		p.Email,
		p.ProfileImageURL,
		time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("upserting user: %w", err)
	}

	return s.Get(ctx, p.ID)
}

func (s *Store) Get(ctx context.Context, id string) (*profile.Profile, error) {
	query := `
		SELECT id, user_name, display_name, email, profile_image_url, created_at, updated_at
		FROM users
		WHERE id = $1
	`

	var p profile.Profile

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.UserName,
		&p.DisplayName,
		&p.Email,
		&p.ProfileImageURL,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, profile.ErrNotFound
		}

		return nil, fmt.Errorf("getting user: %w", err)
	}

	return &p, nil
}

func (s *Store) Update(ctx context.Context, p *profile.Profile) error {
	query := `
		UPDATE users
		SET display_name = $1, profile_image_url = $2, updated_at = $3
		WHERE id = $4
	`

	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, query, p.DisplayName, p.ProfileImageURL, now, p.ID)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return profile.ErrNotFound
	}

	p.UpdatedAt = now

	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}

	return nil
}
