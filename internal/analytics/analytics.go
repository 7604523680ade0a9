// Package analytics computes dashboard statistics over a user's whole job
// collection. Every function is an independent reduction of its input.
package analytics

import (
	"math"
	"slices"
	"time"

	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
)

// TimelineMonths is how many calendar months the timeline keeps.
const TimelineMonths = 6

type StatusCount struct {
	Status pipeline.Status `json:"status"`
	Label  string          `json:"label"`
	Color  string          `json:"color"`
	Count  int             `json:"count"`
}

type MonthCount struct {
	Month time.Time `json:"month"`
	Label string    `json:"label"`
	Count int       `json:"count"`
}

type SalaryBucket struct {
	Label string `json:"label"`
	// Upper is the inclusive upper bound; 0 means unbounded.
	Upper int `json:"upper"`
	Count int `json:"count"`
}

type Summary struct {
	Total          int      `json:"total"`
	Active         int      `json:"active"`
	Accepted       int      `json:"accepted"`
	ConversionRate float64  `json:"conversion_rate"`
	AverageSalary  *float64 `json:"average_salary"`
}

type Report struct {
	Summary        Summary        `json:"summary"`
	Statuses       []StatusCount  `json:"statuses"`
	Pipeline       []StatusCount  `json:"pipeline"`
	Timeline       []MonthCount   `json:"timeline"`
	Salaries       []SalaryBucket `json:"salaries"`
	RecentActivity []models.Job   `json:"recent_activity"`
}

var salaryBounds = []SalaryBucket{
	{Label: "0-50k", Upper: 50000},
	{Label: "50k-75k", Upper: 75000},
	{Label: "75k-100k", Upper: 100000},
	{Label: "100k-125k", Upper: 125000},
	{Label: "125k+"},
}

// Compute runs every reduction over the same collection.
func Compute(jobs []models.Job) Report {
	return Report{
		Summary:        Summarize(jobs),
		Statuses:       StatusDistribution(jobs),
		Pipeline:       PipelineCounts(jobs),
		Timeline:       Timeline(jobs),
		Salaries:       SalaryHistogram(jobs),
		RecentActivity: RecentActivity(jobs, 5),
	}
}

// StatusDistribution counts jobs per status. Known stages come first in
// pipeline order; values outside the pipeline follow in encounter order.
// Stages with no jobs are omitted. Counts always sum to len(jobs).
func StatusDistribution(jobs []models.Job) []StatusCount {
	counts := map[pipeline.Status]int{}
	var unknown []pipeline.Status
	for _, j := range jobs {
		if _, seen := counts[j.Status]; !seen && !pipeline.Valid(j.Status) {
			unknown = append(unknown, j.Status)
		}
		counts[j.Status]++
	}

	var out []StatusCount
	for _, s := range append(pipeline.Statuses(), unknown...) {
		if n := counts[s]; n > 0 {
			out = append(out, statusCount(s, n))
		}
	}
	return out
}

// PipelineCounts returns one entry per pipeline stage, zeros included.
func PipelineCounts(jobs []models.Job) []StatusCount {
	counts := map[pipeline.Status]int{}
	for _, j := range jobs {
		counts[j.Status]++
	}
	stages := pipeline.Statuses()
	out := make([]StatusCount, len(stages))
	for i, s := range stages {
		out[i] = statusCount(s, counts[s])
	}
	return out
}

func statusCount(s pipeline.Status, n int) StatusCount {
	st := pipeline.Describe(s)
	return StatusCount{Status: s, Label: st.Label, Color: st.Color, Count: n}
}

// Timeline counts jobs per calendar month of date_saved and keeps the most
// recent TimelineMonths months that have at least one job, oldest first.
func Timeline(jobs []models.Job) []MonthCount {
	counts := map[time.Time]int{}
	for _, j := range jobs {
		counts[monthOf(j.DateSaved)]++
	}
	months := make([]time.Time, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	slices.SortFunc(months, func(a, b time.Time) int { return a.Compare(b) })
	if len(months) > TimelineMonths {
		months = months[len(months)-TimelineMonths:]
	}

	out := make([]MonthCount, len(months))
	for i, m := range months {
		out[i] = monthCount(m, counts[m])
	}
	return out
}

// FilledTimeline covers the TimelineMonths calendar months ending at the most
// recent month with a job, including months with no jobs.
func FilledTimeline(jobs []models.Job) []MonthCount {
	if len(jobs) == 0 {
		return []MonthCount{}
	}
	counts := map[time.Time]int{}
	var latest time.Time
	for _, j := range jobs {
		m := monthOf(j.DateSaved)
		counts[m]++
		if m.After(latest) {
			latest = m
		}
	}

	out := make([]MonthCount, TimelineMonths)
	for i := range out {
		m := latest.AddDate(0, i-(TimelineMonths-1), 0)
		out[i] = monthCount(m, counts[m])
	}
	return out
}

func monthOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthCount(m time.Time, n int) MonthCount {
	return MonthCount{Month: m, Label: m.Format("Jan 2006"), Count: n}
}

// SalaryHistogram places each job with a salary bound into one of five fixed
// ranges by its higher bound. Jobs without any bound are left out.
func SalaryHistogram(jobs []models.Job) []SalaryBucket {
	out := make([]SalaryBucket, len(salaryBounds))
	copy(out, salaryBounds)
	for _, j := range jobs {
		v, ok := j.SalaryCeiling()
		if !ok {
			continue
		}
		out[salaryBucket(v)].Count++
	}
	return out
}

func salaryBucket(v int) int {
	for i, b := range salaryBounds {
		if b.Upper == 0 || v <= b.Upper {
			return i
		}
	}
	return len(salaryBounds) - 1
}

// Summarize computes the headline metrics.
func Summarize(jobs []models.Job) Summary {
	s := Summary{Total: len(jobs)}
	var salarySum float64
	var salaried int
	for _, j := range jobs {
		if pipeline.IsActive(j.Status) {
			s.Active++
		}
		if j.Status == pipeline.StatusAccepted {
			s.Accepted++
		}
		if v, ok := j.SalaryCeiling(); ok {
			salarySum += float64(v)
			salaried++
		}
	}
	if s.Active > 0 {
		s.ConversionRate = float64(s.Accepted) / float64(s.Active) * 100
	}
	if salaried > 0 {
		avg := salarySum / float64(salaried)
		s.AverageSalary = &avg
	}
	return s
}

// RoundedConversionRate is the conversion rate as a whole percentage.
func (s Summary) RoundedConversionRate() int {
	return int(math.Round(s.ConversionRate))
}

// RecentActivity returns the n most recently saved jobs, newest first.
func RecentActivity(jobs []models.Job, n int) []models.Job {
	out := make([]models.Job, len(jobs))
	for i, j := range jobs {
		out[i] = j.Clone()
	}
	slices.SortStableFunc(out, func(a, b models.Job) int { return b.DateSaved.Compare(a.DateSaved) })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
