// Package view turns a job collection into the filtered, sorted and grouped
// sequence shown in the job table. Everything here is a pure function of its
// inputs.
package view

import (
	"cmp"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"jobtracker/internal/models"
	"jobtracker/internal/pipeline"
)

type GroupKey string

const (
	GroupNone     GroupKey = "none"
	GroupStatus   GroupKey = "status"
	GroupCompany  GroupKey = "company"
	GroupLocation GroupKey = "location"
)

type SortField string

const (
	SortDefault     SortField = "default"
	SortDateSaved   SortField = "date_saved"
	SortDateApplied SortField = "date_applied"
	SortCompany     SortField = "company"
	SortPosition    SortField = "position"
	SortStatus      SortField = "status"
	SortRating      SortField = "rating"
	SortSalary      SortField = "salary"
)

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// StatusAll disables status filtering.
const StatusAll = "all"

// OtherKey names the bucket for jobs with no value for the grouping field.
const OtherKey = "Other"

type Query struct {
	Search    string
	Status    string
	Group     GroupKey
	Sort      SortField
	Direction Direction
}

type Bucket struct {
	Key   string       `json:"key"`
	Label string       `json:"label"`
	Color string       `json:"color,omitempty"`
	Jobs  []models.Job `json:"jobs"`
}

// DefaultQuery shows every job, newest activity first, ungrouped.
func DefaultQuery() Query {
	return Query{Status: StatusAll, Group: GroupNone, Sort: SortDefault, Direction: Desc}
}

// ParseQuery reads a Query from request parameters. Unrecognised values fall
// back to the defaults.
func ParseQuery(v url.Values) Query {
	q := DefaultQuery()
	q.Search = v.Get("search")
	if s := strings.TrimSpace(v.Get("status")); s != "" && !strings.EqualFold(s, StatusAll) {
		q.Status = s
		if st, ok := pipeline.Parse(s); ok {
			q.Status = string(st)
		}
	}
	switch g := GroupKey(v.Get("group")); g {
	case GroupStatus, GroupCompany, GroupLocation, GroupNone:
		q.Group = g
	}
	switch s := SortField(v.Get("sort")); s {
	case SortDefault, SortDateSaved, SortDateApplied, SortCompany, SortPosition, SortStatus, SortRating, SortSalary:
		q.Sort = s
	}
	switch d := Direction(strings.ToLower(v.Get("dir"))); d {
	case Asc, Desc:
		q.Direction = d
	}
	return q
}

// Project filters, sorts and groups jobs. The input slice is not modified and
// the returned buckets share no pointers with it.
func Project(jobs []models.Job, q Query) []Bucket {
	filtered := Filter(jobs, q.Search, q.Status)
	if len(filtered) == 0 {
		return []Bucket{}
	}
	Sort(filtered, q.Sort, q.Direction)
	return Group(filtered, q.Group)
}

// Filter keeps jobs matching both the search text and the status filter.
func Filter(jobs []models.Job, search, status string) []models.Job {
	needle := fold(search)
	out := make([]models.Job, 0, len(jobs))
	for _, j := range jobs {
		if !matchesStatus(j, status) {
			continue
		}
		if needle != "" && !matchesSearch(j, needle) {
			continue
		}
		out = append(out, j.Clone())
	}
	return out
}

func matchesStatus(j models.Job, status string) bool {
	if status == "" || status == StatusAll {
		return true
	}
	return string(j.Status) == status
}

func matchesSearch(j models.Job, needle string) bool {
	if strings.Contains(fold(j.Position), needle) || strings.Contains(fold(j.Company), needle) {
		return true
	}
	return j.Location != "" && strings.Contains(fold(j.Location), needle)
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// Sort orders jobs in place. Ties keep their original relative order.
func Sort(jobs []models.Job, field SortField, dir Direction) {
	less := comparator(field)
	slices.SortStableFunc(jobs, func(a, b models.Job) int {
		c := less(a, b)
		if dir == Asc {
			return c
		}
		return -c
	})
}

func comparator(field SortField) func(a, b models.Job) int {
	switch field {
	case SortDateSaved:
		return func(a, b models.Job) int { return a.DateSaved.Compare(b.DateSaved) }
	case SortDateApplied:
		return func(a, b models.Job) int { return compareOptionalTime(a.DateApplied, b.DateApplied) }
	case SortCompany:
		return func(a, b models.Job) int { return cmp.Compare(fold(a.Company), fold(b.Company)) }
	case SortPosition:
		return func(a, b models.Job) int { return cmp.Compare(fold(a.Position), fold(b.Position)) }
	case SortStatus:
		return func(a, b models.Job) int { return cmp.Compare(pipeline.Index(a.Status), pipeline.Index(b.Status)) }
	case SortRating:
		return func(a, b models.Job) int { return cmp.Compare(a.Rating, b.Rating) }
	case SortSalary:
		return func(a, b models.Job) int {
			av, aok := a.SalaryCeiling()
			bv, bok := b.SalaryCeiling()
			if aok != bok {
				if aok {
					return 1
				}
				return -1
			}
			return cmp.Compare(av, bv)
		}
	default:
		return func(a, b models.Job) int { return a.ActivityDate().Compare(b.ActivityDate()) }
	}
}

// Unset dates sort before every set date.
func compareOptionalTime(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return a.Compare(*b)
}

// Group partitions sorted jobs by key, keeping sort order within each bucket
// and buckets in the order their keys first appear.
func Group(jobs []models.Job, key GroupKey) []Bucket {
	if len(jobs) == 0 {
		return []Bucket{}
	}
	if key == "" || key == GroupNone {
		return []Bucket{{Key: "all", Label: "All", Jobs: jobs}}
	}

	index := map[string]int{}
	var buckets []Bucket
	for _, j := range jobs {
		k := groupValue(j, key)
		i, ok := index[k]
		if !ok {
			i = len(buckets)
			index[k] = i
			buckets = append(buckets, newBucket(k, key))
		}
		buckets[i].Jobs = append(buckets[i].Jobs, j)
	}
	return buckets
}

func groupValue(j models.Job, key GroupKey) string {
	var v string
	switch key {
	case GroupStatus:
		v = string(j.Status)
	case GroupCompany:
		v = strings.TrimSpace(j.Company)
	case GroupLocation:
		v = strings.TrimSpace(j.Location)
	}
	if v == "" {
		return OtherKey
	}
	return v
}

func newBucket(k string, key GroupKey) Bucket {
	if key == GroupStatus && k != OtherKey {
		st := pipeline.Describe(pipeline.Status(k))
		return Bucket{Key: k, Label: st.Label, Color: st.Color}
	}
	return Bucket{Key: k, Label: k}
}
