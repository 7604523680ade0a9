package clickhouse

import (
	"context"
	"fmt"
	"time"

	"jobtracker/internal/errors"
	"jobtracker/internal/models"
)

type profileRow struct {
	UserID      string    `ch:"user_id"`
	FullName    string    `ch:"full_name"`
	Phone       string    `ch:"phone"`
	Location    string    `ch:"location"`
	JobTitle    string    `ch:"job_title"`
	Company     string    `ch:"company"`
	Bio         string    `ch:"bio"`
	Website     string    `ch:"website"`
	LinkedInURL string    `ch:"linkedin_url"`
	GitHubURL   string    `ch:"github_url"`
	AvatarURL   string    `ch:"avatar_url"`
	CreatedAt   time.Time `ch:"created_at"`
	UpdatedAt   time.Time `ch:"updated_at"`
}

func (r profileRow) profile() *models.Profile {
	return &models.Profile{
		UserID:      r.UserID,
		FullName:    r.FullName,
		Phone:       r.Phone,
		Location:    r.Location,
		JobTitle:    r.JobTitle,
		Company:     r.Company,
		Bio:         r.Bio,
		Website:     r.Website,
		LinkedInURL: r.LinkedInURL,
		GitHubURL:   r.GitHubURL,
		AvatarURL:   r.AvatarURL,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

const profileColumns = `user_id, full_name, phone, location, job_title, company,
	bio, website, linkedin_url, github_url, avatar_url, created_at, updated_at`

func (s *Store) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "GetProfile")
	defer span.End()

	var rows []profileRow
	query := `SELECT ` + profileColumns + ` FROM profiles FINAL WHERE user_id = ? LIMIT 1`
	if err := s.conn.Select(ctx, &rows, query, userID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("select profile: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].profile(), nil
}

// UpsertProfile writes the profile keyed by user id, keeping the original
// created_at when one exists.
func (s *Store) UpsertProfile(ctx context.Context, p models.Profile) (models.Profile, error) {
	ctx, span := s.tracer.Start(ctx, "UpsertProfile")
	defer span.End()

	if p.UserID == "" {
		return models.Profile{}, errors.Validation("invalid profile", map[string]string{"user_id": "is required"})
	}
	existing, err := s.GetProfile(ctx, p.UserID)
	if err != nil {
		return models.Profile{}, err
	}

	now := s.now()
	p.CreatedAt = now
	if existing != nil {
		p.CreatedAt = existing.CreatedAt
		if !now.After(existing.UpdatedAt) {
			now = existing.UpdatedAt.Add(time.Millisecond)
		}
	}
	p.UpdatedAt = now

	if err := s.conn.Exec(ctx, `INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.FullName, p.Phone, p.Location, p.JobTitle, p.Company,
		p.Bio, p.Website, p.LinkedInURL, p.GitHubURL, p.AvatarURL, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		span.RecordError(err)
		return models.Profile{}, fmt.Errorf("upsert profile: %w", err)
	}
	return p, nil
}
