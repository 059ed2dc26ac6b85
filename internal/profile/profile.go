// Package profile mirrors the signed-in identity into the local users table.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrJamesThe3rd/pocketfin/internal/auth"
)

var ErrNotFound = errors.New("profile not found")

type Profile struct {
	ID              string
	UserName        string
	DisplayName     string
	Email           string
	ProfileImageURL string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Repository persists profiles. Upsert keeps stored values for empty incoming fields.
type Repository interface {
	Upsert(ctx context.Context, p *Profile) (*Profile, error)
	Get(ctx context.Context, id string) (*Profile, error)
	Update(ctx context.Context, p *Profile) error
	Delete(ctx context.Context, id string) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Mirror records the identity locally and returns the stored profile.
func (s *Service) Mirror(ctx context.Context, id *auth.Identity) (*Profile, error) {
	if id == nil || id.ID == "" {
		return nil, errors.New("mirroring profile: identity has no subject")
	}

	p, err := s.repo.Upsert(ctx, &Profile{
		ID:              id.ID,
		UserName:        userName(id.Email),
		DisplayName:     id.DisplayName,
		Email:           id.Email,
		ProfileImageURL: id.PictureURL,
	})
	if err != nil {
		return nil, fmt.Errorf("mirroring profile: %w", err)
	}

	return p, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Profile, error) {
	return s.repo.Get(ctx, id)
}

// UpdateParams carries locally editable fields; nil fields are left unchanged.
type UpdateParams struct {
	DisplayName     *string
	ProfileImageURL *string
}

func (s *Service) Update(ctx context.Context, id string, params UpdateParams) (*Profile, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if params.DisplayName != nil {
		p.DisplayName = strings.TrimSpace(*params.DisplayName)
	}

	if params.ProfileImageURL != nil {
		p.ProfileImageURL = strings.TrimSpace(*params.ProfileImageURL)
	}

	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating profile: %w", err)
	}

	return p, nil
}

// Delete drops the local mirror. Ledger entries are kept.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

func userName(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
