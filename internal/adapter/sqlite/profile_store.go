package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"astroreports/internal/domain"
)

// ProfileStore implements domain.ProfileRepository on SQLite.
type ProfileStore struct {
	db *DB
}

func NewProfileStore(db *DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) GetByUserID(ctx context.Context, userID string) (*domain.Profile, error) {
	var (
		p                    domain.Profile
		birth                string
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, name, locale, birth, created_at, updated_at FROM profiles WHERE user_id = ?`, userID,
	).Scan(&p.UserID, &p.Name, &p.Locale, &birth, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	if err := json.Unmarshal([]byte(birth), &p.Birth); err != nil {
		return nil, fmt.Errorf("profile %s: decode birth: %w", userID, err)
	}
	p.CreatedAt = time.Unix(0, createdAt).UTC()
	p.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &p, nil
}

func (s *ProfileStore) Upsert(ctx context.Context, profile *domain.Profile) error {
	birth, err := json.Marshal(profile.Birth)
	if err != nil {
		return err
	}
	now := s.db.stamp()
	var createdAt int64
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO profiles (user_id, name, locale, birth, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			name = excluded.name, locale = excluded.locale, birth = excluded.birth, updated_at = excluded.updated_at
		RETURNING created_at`,
		profile.UserID, profile.Name, profile.Locale, string(birth), now, now,
	).Scan(&createdAt)
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	profile.CreatedAt = time.Unix(0, createdAt).UTC()
	profile.UpdatedAt = time.Unix(0, now).UTC()
	return nil
}

func (s *ProfileStore) Exists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE user_id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("profile exists: %w", err)
	}
	return exists, nil
}

var _ domain.ProfileRepository = (*ProfileStore)(nil)
