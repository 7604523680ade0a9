package models

import (
	"strings"
	"time"

	"jobtracker/internal/errors"
	"jobtracker/internal/pipeline"
)

const MaxRating = 5

type Job struct {
	ID            string          `json:"id"`
	UserID        string          `json:"user_id"`
	Position      string          `json:"position"`
	Company       string          `json:"company"`
	Location      string          `json:"location,omitempty"`
	JobURL        string          `json:"job_url,omitempty"`
	Notes         string          `json:"notes"`
	SalaryMin     *int            `json:"salary_min"`
	SalaryMax     *int            `json:"salary_max"`
	Status        pipeline.Status `json:"status"`
	Rating        int             `json:"rating"`
	DateSaved     time.Time       `json:"date_saved"`
	DateApplied   *time.Time      `json:"date_applied"`
	TestDate      *time.Time      `json:"test_date"`
	InterviewDate *time.Time      `json:"interview_date"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Draft is the user-editable part of a job.
type Draft struct {
	Position      string
	Company       string
	Location      string
	JobURL        string
	Notes         string
	SalaryMin     *int
	SalaryMax     *int
	Status        pipeline.Status
	Rating        int
	DateApplied   *time.Time
	TestDate      *time.Time
	InterviewDate *time.Time
}

// Clone returns a copy that shares no pointers with j.
func (j Job) Clone() Job {
	j.SalaryMin = cloneInt(j.SalaryMin)
	j.SalaryMax = cloneInt(j.SalaryMax)
	j.DateApplied = cloneTime(j.DateApplied)
	j.TestDate = cloneTime(j.TestDate)
	j.InterviewDate = cloneTime(j.InterviewDate)
	return j
}

func (j Job) Draft() Draft {
	c := j.Clone()
	return Draft{
		Position:      c.Position,
		Company:       c.Company,
		Location:      c.Location,
		JobURL:        c.JobURL,
		Notes:         c.Notes,
		SalaryMin:     c.SalaryMin,
		SalaryMax:     c.SalaryMax,
		Status:        c.Status,
		Rating:        c.Rating,
		DateApplied:   c.DateApplied,
		TestDate:      c.TestDate,
		InterviewDate: c.InterviewDate,
	}
}

// Apply overwrites every mutable field of j with the draft's values.
// Identity, ownership and the saved/created timestamps are left alone.
func (j Job) Apply(d Draft) Job {
	j.Position = d.Position
	j.Company = d.Company
	j.Location = d.Location
	j.JobURL = d.JobURL
	j.Notes = d.Notes
	j.SalaryMin = cloneInt(d.SalaryMin)
	j.SalaryMax = cloneInt(d.SalaryMax)
	j.Status = d.Status
	j.Rating = d.Rating
	j.DateApplied = cloneTime(d.DateApplied)
	j.TestDate = cloneTime(d.TestDate)
	j.InterviewDate = cloneTime(d.InterviewDate)
	return j
}

// HasSalary reports whether either salary bound is set.
func (j Job) HasSalary() bool {
	return j.SalaryMin != nil || j.SalaryMax != nil
}

// SalaryCeiling is the larger of the set salary bounds.
func (j Job) SalaryCeiling() (int, bool) {
	switch {
	case j.SalaryMin != nil && j.SalaryMax != nil:
		return max(*j.SalaryMin, *j.SalaryMax), true
	case j.SalaryMax != nil:
		return *j.SalaryMax, true
	case j.SalaryMin != nil:
		return *j.SalaryMin, true
	}
	return 0, false
}

// ActivityDate is date_applied when set, date_saved otherwise.
func (j Job) ActivityDate() time.Time {
	if j.DateApplied != nil {
		return *j.DateApplied
	}
	return j.DateSaved
}

// Validate checks the fields a draft must satisfy before it is submitted.
// Status is not checked here: stored records may carry values outside the
// pipeline and still need to be editable.
func (d Draft) Validate() error {
	fields := map[string]string{}
	if strings.TrimSpace(d.Position) == "" {
		fields["position"] = "is required"
	}
	if strings.TrimSpace(d.Company) == "" {
		fields["company"] = "is required"
	}
	if d.Rating < 0 || d.Rating > MaxRating {
		fields["rating"] = "must be between 0 and 5"
	}
	if d.SalaryMin != nil && *d.SalaryMin < 0 {
		fields["salary_min"] = "must not be negative"
	}
	if d.SalaryMax != nil && *d.SalaryMax < 0 {
		fields["salary_max"] = "must not be negative"
	}
	if d.SalaryMin != nil && d.SalaryMax != nil && *d.SalaryMin > *d.SalaryMax {
		fields["salary_max"] = "must not be below salary_min"
	}
	if len(fields) > 0 {
		return errors.Validation("invalid job", fields)
	}
	return nil
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func IntPtr(v int) *int { return &v }

func TimePtr(v time.Time) *time.Time { return &v }
