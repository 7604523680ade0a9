package models

import (
	"encoding/json"
	"strings"
	"time"

	"jobtracker/internal/errors"
)

type Profile struct {
	UserID      string    `json:"user_id"`
	FullName    string    `json:"full_name"`
	Phone       string    `json:"phone"`
	Location    string    `json:"location"`
	JobTitle    string    `json:"job_title"`
	Company     string    `json:"company"`
	Bio         string    `json:"bio"`
	Website     string    `json:"website"`
	LinkedInURL string    `json:"linkedin_url"`
	GitHubURL   string    `json:"github_url"`
	AvatarURL   string    `json:"avatar_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (p Profile) MarshalBinary() ([]byte, error) {
	return json.Marshal(p)
}

func (p *Profile) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, p)
}

// Validate checks the link fields, which must be absolute http(s) URLs
// when set.
func (p Profile) Validate() error {
	fields := map[string]string{}
	for name, value := range map[string]string{
		"website":      p.Website,
		"linkedin_url": p.LinkedInURL,
		"github_url":   p.GitHubURL,
	} {
		if value != "" && !strings.HasPrefix(value, "http://") && !strings.HasPrefix(value, "https://") {
			fields[name] = "must start with http:// or https://"
		}
	}
	if len(fields) > 0 {
		return errors.Validation("invalid profile", fields)
	}
	return nil
}
