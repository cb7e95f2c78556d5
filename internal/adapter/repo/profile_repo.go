package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"astroreports/internal/domain"
	"astroreports/internal/infra"
	"astroreports/internal/sqlinline"
)

// ProfileRepositoryPG implements domain.ProfileRepository backed by PostgreSQL.
type ProfileRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewProfileRepository creates a new ProfileRepositoryPG.
func NewProfileRepository(sql infra.SQLExecutor) *ProfileRepositoryPG {
	return &ProfileRepositoryPG{sql: sql}
}

// GetByUserID fetches the birth profile of a user.
func (r *ProfileRepositoryPG) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p     domain.Profile
		birth []byte
	)
	err := r.sql.QueryRow(ctx, sqlinline.QSelectProfile, userID).Scan(
		&p.UserID,
		&p.Name,
		&p.Locale,
		&birth,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(birth, &p.Birth); err != nil {
		return nil, fmt.Errorf("profile %s: decode birth: %w", userID, err)
	}
	return &p, nil
}

// Upsert inserts or replaces the profile of profile.UserID.
func (r *ProfileRepositoryPG) Upsert(ctx context.Context, profile *domain.Profile) error {
	birth, err := json.Marshal(profile.Birth)
	if err != nil {
		return err
	}
	return r.sql.QueryRow(ctx, sqlinline.QUpsertProfile,
		profile.UserID,
		profile.Name,
		profile.Locale,
		birth,
	).Scan(&profile.CreatedAt, &profile.UpdatedAt)
}

func (r *ProfileRepositoryPG) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QProfileExists, userID).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

var _ domain.ProfileRepository = (*ProfileRepositoryPG)(nil)
