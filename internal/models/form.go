package models

import (
	"strconv"
	"strings"
	"time"

	"jobtracker/internal/errors"
	"jobtracker/internal/pipeline"
)

const formDateLayout = "2006-01-02"

// JobForm is the raw text submitted by the add and edit forms. Every field is
// a string so that non-numeric or malformed input can be reported per field.
type JobForm struct {
	Position      string `json:"position"`
	Company       string `json:"company"`
	Location      string `json:"location"`
	JobURL        string `json:"job_url"`
	Notes         string `json:"notes"`
	SalaryMin     string `json:"salary_min"`
	SalaryMax     string `json:"salary_max"`
	Status        string `json:"status"`
	Rating        string `json:"rating"`
	DateApplied   string `json:"date_applied"`
	TestDate      string `json:"test_date"`
	InterviewDate string `json:"interview_date"`
}

// FormFromJob fills a form with a job's current values.
func FormFromJob(j Job) JobForm {
	f := JobForm{
		Position: j.Position,
		Company:  j.Company,
		Location: j.Location,
		JobURL:   j.JobURL,
		Notes:    j.Notes,
		Status:   string(j.Status),
		Rating:   strconv.Itoa(j.Rating),
	}
	if j.SalaryMin != nil {
		f.SalaryMin = strconv.Itoa(*j.SalaryMin)
	}
	if j.SalaryMax != nil {
		f.SalaryMax = strconv.Itoa(*j.SalaryMax)
	}
	f.DateApplied = formatFormDate(j.DateApplied)
	f.TestDate = formatFormDate(j.TestDate)
	f.InterviewDate = formatFormDate(j.InterviewDate)
	return f
}

// Draft parses and validates the form. Blank optional fields become unset.
func (f JobForm) Draft() (Draft, error) {
	fields := map[string]string{}
	d := Draft{
		Position: strings.TrimSpace(f.Position),
		Company:  strings.TrimSpace(f.Company),
		Location: strings.TrimSpace(f.Location),
		JobURL:   strings.TrimSpace(f.JobURL),
		Notes:    strings.TrimSpace(f.Notes),
	}

	d.SalaryMin = parseFormInt(f.SalaryMin, "salary_min", fields)
	d.SalaryMax = parseFormInt(f.SalaryMax, "salary_max", fields)
	if r := parseFormInt(f.Rating, "rating", fields); r != nil {
		d.Rating = *r
	}

	status, ok := pipeline.Parse(f.Status)
	if !ok {
		fields["status"] = "unknown status " + strconv.Quote(f.Status)
	}
	d.Status = status

	d.DateApplied = parseFormDate(f.DateApplied, "date_applied", fields)
	d.TestDate = parseFormDate(f.TestDate, "test_date", fields)
	d.InterviewDate = parseFormDate(f.InterviewDate, "interview_date", fields)

	if err := d.Validate(); err != nil {
		for k, v := range errors.FieldsOf(err) {
			if _, exists := fields[k]; !exists {
				fields[k] = v
			}
		}
	}
	if len(fields) > 0 {
		return Draft{}, errors.Validation("invalid job", fields)
	}
	return d, nil
}

func parseFormInt(raw, field string, fields map[string]string) *int {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	v = strings.ReplaceAll(v, ",", "")
	n, err := strconv.Atoi(v)
	if err != nil {
		fields[field] = "must be a whole number"
		return nil
	}
	return &n
}

func parseFormDate(raw, field string, fields map[string]string) *time.Time {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if t, err := time.Parse(formDateLayout, v); err == nil {
		return &t
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t
	}
	fields[field] = "must be a date (YYYY-MM-DD)"
	return nil
}

func formatFormDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(formDateLayout)
}
