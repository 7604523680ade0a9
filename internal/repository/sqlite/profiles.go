package sqlite

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"jobtracker/internal/errors"
	"jobtracker/internal/models"
)

const profileColumns = `user_id, full_name, phone, location, job_title, company,
	bio, website, linkedin_url, github_url, avatar_url, created_at, updated_at`

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "GetProfile")
	defer span.End()

	var (
		p                    models.Profile
		createdAt, updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE user_id = ?`, userID).Scan(
		&p.UserID, &p.FullName, &p.Phone, &p.Location, &p.JobTitle, &p.Company,
		&p.Bio, &p.Website, &p.LinkedInURL, &p.GitHubURL, &p.AvatarURL, &createdAt, &updatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

// UpsertProfile inserts or replaces the profile keyed by user id. The
// original created_at is kept on conflict.
func (s *Store) UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "UpsertProfile")
	defer span.End()

	if p.UserID == "" {
		return models.Profile{}, errors.Validation("invalid profile", map[string]string{"user_id": "is required"})
	}
	now := toMillis(s.now())
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			full_name = excluded.full_name,
			phone = excluded.phone,
			location = excluded.location,
			job_title = excluded.job_title,
			company = excluded.company,
			bio = excluded.bio,
			website = excluded.website,
			linkedin_url = excluded.linkedin_url,
			github_url = excluded.github_url,
			avatar_url = excluded.avatar_url,
			updated_at = excluded.updated_at`,
		p.UserID, p.FullName, p.Phone, p.Location, p.JobTitle, p.Company,
		p.Bio, p.Website, p.LinkedInURL, p.GitHubURL, p.AvatarURL, now, now,
	)
	if err != nil {
		span.RecordError(err)
		return models.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}

	saved, err := s.GetProfile(ctx, p.UserID)
	if err != nil {
		return models.Profile{}, err
	}
	return *saved, nil
}
