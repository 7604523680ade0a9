package analytics

import (
	"testing"
	"time"

	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
)

func saved(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 0, 0, 0, time.UTC)
}

func TestConversionScenario(t *testing.T) {
	jobs := []models.Job{
		{ID: "a", Rating: 0, Status: pipeline.StatusApplied},
		{ID: "b", Rating: 3, Status: pipeline.StatusInterviewing},
		{ID: "c", Rating: 5, Status: pipeline.StatusAccepted},
	}

	s := Summarize(jobs)
	if s.Active != 3 {
		t.Fatalf("expected 3 active, got %d", s.Active)
	}
	if s.Accepted != 1 {
		t.Fatalf("expected 1 accepted, got %d", s.Accepted)
	}
	if s.RoundedConversionRate() != 33 {
		t.Fatalf("expected 33%%, got %v", s.ConversionRate)
	}
	if s.FormatConversionRate() != "33%" {
		t.Fatalf("unexpected formatted rate %q", s.FormatConversionRate())
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Total != 0 || s.ConversionRate != 0 || s.AverageSalary != nil {
		t.Fatalf("unexpected summary %+v", s)
	}
	if s.FormatAverageSalary() != "N/A" {
		t.Fatalf("expected N/A, got %q", s.FormatAverageSalary())
	}
}

func TestSalaryScenario(t *testing.T) {
	jobs := []models.Job{
		{ID: "min-only", SalaryMin: models.IntPtr(80000)},
		{ID: "none"},
	}

	hist := SalaryHistogram(jobs)
	for _, b := range hist {
		want := 0
		if b.Label == "75k-100k" {
			want = 1
		}
		if b.Count != want {
			t.Errorf("bucket %s: expected %d, got %d", b.Label, want, b.Count)
		}
	}

	s := Summarize(jobs)
	if s.AverageSalary == nil || *s.AverageSalary != 80000 {
		t.Fatalf("expected average 80000 over salaried jobs only, got %v", s.AverageSalary)
	}
	if s.FormatAverageSalary() != "$80,000" {
		t.Fatalf("unexpected formatted average %q", s.FormatAverageSalary())
	}
}

func TestSalaryBucketBoundaries(t *testing.T) {
	tests := []struct {
		value int
		want  string
	}{
		{0, "0-50k"},
		{50000, "0-50k"},
		{50001, "50k-75k"},
		{75000, "50k-75k"},
		{100000, "75k-100k"},
		{125000, "100k-125k"},
		{125001, "125k+"},
	}
	for _, tt := range tests {
		if got := salaryBounds[salaryBucket(tt.value)].Label; got != tt.want {
			t.Errorf("salary %d: expected %s, got %s", tt.value, tt.want, got)
		}
	}
}

func TestSalaryUsesHigherBound(t *testing.T) {
	jobs := []models.Job{{SalaryMin: models.IntPtr(130000), SalaryMax: models.IntPtr(70000)}}
	hist := SalaryHistogram(jobs)
	if hist[len(hist)-1].Count != 1 {
		t.Fatalf("expected 125k+ bucket, got %+v", hist)
	}
}

func TestTimelineScenario(t *testing.T) {
	jobs := []models.Job{
		{ID: "1", DateSaved: saved(2024, time.March, 2)},
		{ID: "2", DateSaved: saved(2024, time.March, 28)},
		{ID: "3", DateSaved: saved(2024, time.January, 15)},
	}

	got := Timeline(jobs)
	if len(got) != 2 {
		t.Fatalf("expected 2 months (no synthesized February), got %+v", got)
	}
	if got[0].Label != "Jan 2024" || got[0].Count != 1 {
		t.Fatalf("unexpected first month %+v", got[0])
	}
	if got[1].Label != "Mar 2024" || got[1].Count != 2 {
		t.Fatalf("unexpected second month %+v", got[1])
	}
}

func TestTimelineKeepsMostRecentSixMonths(t *testing.T) {
	var jobs []models.Job
	for m := time.January; m <= time.August; m++ {
		jobs = append(jobs, models.Job{DateSaved: saved(2024, m, 10)})
	}
	got := Timeline(jobs)
	if len(got) != TimelineMonths {
		t.Fatalf("expected %d months, got %d", TimelineMonths, len(got))
	}
	if got[0].Label != "Mar 2024" || got[len(got)-1].Label != "Aug 2024" {
		t.Fatalf("unexpected window %s..%s", got[0].Label, got[len(got)-1].Label)
	}
}

func TestFilledTimeline(t *testing.T) {
	jobs := []models.Job{
		{DateSaved: saved(2024, time.March, 2)},
		{DateSaved: saved(2024, time.January, 15)},
	}
	got := FilledTimeline(jobs)
	if len(got) != TimelineMonths {
		t.Fatalf("expected %d months, got %d", TimelineMonths, len(got))
	}
	wantLabels := []string{"Oct 2023", "Nov 2023", "Dec 2023", "Jan 2024", "Feb 2024", "Mar 2024"}
	wantCounts := []int{0, 0, 0, 1, 0, 1}
	for i := range got {
		if got[i].Label != wantLabels[i] || got[i].Count != wantCounts[i] {
			t.Fatalf("month %d: expected %s=%d, got %s=%d", i, wantLabels[i], wantCounts[i], got[i].Label, got[i].Count)
		}
	}
	if len(FilledTimeline(nil)) != 0 {
		t.Fatal("expected empty timeline for no jobs")
	}
}

func TestStatusDistributionSumLaw(t *testing.T) {
	collections := [][]models.Job{
		nil,
		{{Status: pipeline.StatusApplied}},
		{{Status: pipeline.StatusApplied}, {Status: "test"}, {Status: ""}, {Status: pipeline.StatusAccepted}, {Status: "test"}},
	}
	for _, jobs := range collections {
		sum := 0
		for _, c := range StatusDistribution(jobs) {
			if c.Count == 0 {
				t.Fatalf("zero bucket %q should be omitted", c.Status)
			}
			sum += c.Count
		}
		if sum != len(jobs) {
			t.Fatalf("expected counts to sum to %d, got %d", len(jobs), sum)
		}
	}
}

func TestStatusDistributionOrder(t *testing.T) {
	jobs := []models.Job{
		{Status: "test"},
		{Status: pipeline.StatusAccepted},
		{Status: pipeline.StatusBookmarked},
		{Status: "test"},
	}
	got := StatusDistribution(jobs)
	want := []pipeline.Status{pipeline.StatusBookmarked, pipeline.StatusAccepted, "test"}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %+v", len(want), got)
	}
	for i := range want {
		if got[i].Status != want[i] {
			t.Fatalf("entry %d: expected %q, got %q", i, want[i], got[i].Status)
		}
	}
	if got[2].Count != 2 || got[2].Label != "test" {
		t.Fatalf("unexpected unknown bucket %+v", got[2])
	}
}

func TestPipelineCountsIncludesZeros(t *testing.T) {
	got := PipelineCounts([]models.Job{{Status: pipeline.StatusApplied}})
	if len(got) != 6 {
		t.Fatalf("expected six stages, got %d", len(got))
	}
	if got[2].Status != pipeline.StatusApplied || got[2].Count != 1 || got[0].Count != 0 {
		t.Fatalf("unexpected counts %+v", got)
	}
}

func TestSalaryHistogramLaw(t *testing.T) {
	jobs := []models.Job{
		{SalaryMin: models.IntPtr(10)},
		{SalaryMax: models.IntPtr(200000)},
		{},
		{SalaryMin: models.IntPtr(60000), SalaryMax: models.IntPtr(80000)},
		{},
	}
	sum := 0
	for _, b := range SalaryHistogram(jobs) {
		sum += b.Count
	}
	if sum != 3 {
		t.Fatalf("expected 3 salaried jobs counted, got %d", sum)
	}
}

func TestRecentActivity(t *testing.T) {
	jobs := []models.Job{
		{ID: "old", DateSaved: saved(2024, time.January, 1)},
		{ID: "new", DateSaved: saved(2024, time.May, 1)},
		{ID: "mid", DateSaved: saved(2024, time.March, 1)},
	}
	got := RecentActivity(jobs, 2)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Fatalf("unexpected recent activity %+v", got)
	}
	if jobs[0].ID != "old" {
		t.Fatal("input reordered")
	}
}

func TestFormatSalaryRange(t *testing.T) {
	if got := FormatSalaryRange(models.IntPtr(120000), models.IntPtr(150000)); got != "$120,000 - $150,000" {
		t.Fatalf("unexpected range %q", got)
	}
	if got := FormatSalaryRange(nil, models.IntPtr(90000)); got != "Up to $90,000" {
		t.Fatalf("unexpected range %q", got)
	}
	if got := FormatSalaryRange(nil, nil); got != "Not specified" {
		t.Fatalf("unexpected range %q", got)
	}
}

func TestComputeIsConsistent(t *testing.T) {
	jobs := []models.Job{
		{Status: pipeline.StatusApplied, DateSaved: saved(2024, time.April, 4), SalaryMax: models.IntPtr(55000)},
		{Status: pipeline.StatusAccepted, DateSaved: saved(2024, time.April, 9)},
	}
	r := Compute(jobs)
	if r.Summary.Total != 2 || len(r.Timeline) != 1 || r.Timeline[0].Count != 2 {
		t.Fatalf("unexpected report %+v", r)
	}
	if r.Summary.RoundedConversionRate() != 50 {
		t.Fatalf("expected 50%%, got %v", r.Summary.ConversionRate)
	}
}
