// Package pipeline holds the lifecycle stages a job application moves
// through. Projection and analytics both read stage order and display
// metadata from here.
package pipeline

import "strings"

type Status string

const (
	StatusBookmarked   Status = "bookmarked"
	StatusApplying     Status = "applying"
	StatusApplied      Status = "applied"
	StatusInterviewing Status = "interviewing"
	StatusNegotiating  Status = "negotiating"
	StatusAccepted     Status = "accepted"
)

// Default is the status assigned to new jobs.
const Default = StatusBookmarked

type Stage struct {
	Status Status `json:"status"`
	Label  string `json:"label"`
	Color  string `json:"color"`
	Known  bool   `json:"known"`
}

var stages = []Stage{
	{Status: StatusBookmarked, Label: "Bookmarked", Color: "gray", Known: true},
	{Status: StatusApplying, Label: "Applying", Color: "blue", Known: true},
	{Status: StatusApplied, Label: "Applied", Color: "yellow", Known: true},
	{Status: StatusInterviewing, Label: "Interviewing", Color: "purple", Known: true},
	{Status: StatusNegotiating, Label: "Negotiating", Color: "orange", Known: true},
	{Status: StatusAccepted, Label: "Accepted", Color: "green", Known: true},
}

// Older records and forms used these names for the same stages.
var aliases = map[string]Status{
	"saved":     StatusApplying,
	"interview": StatusInterviewing,
}

var active = map[Status]bool{
	StatusApplied:      true,
	StatusInterviewing: true,
	StatusNegotiating:  true,
	StatusAccepted:     true,
}

// Stages returns the canonical stages in pipeline order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

func Statuses() []Status {
	out := make([]Status, len(stages))
	for i, s := range stages {
		out[i] = s.Status
	}
	return out
}

func Valid(s Status) bool {
	return Index(s) < len(stages)
}

// Index returns the pipeline position of s. Unknown statuses sort after
// every known stage.
func Index(s Status) int {
	for i, st := range stages {
		if st.Status == s {
			return i
		}
	}
	return len(stages)
}

// Lookup returns the display metadata for a known status.
func Lookup(s Status) (Stage, bool) {
	i := Index(s)
	if i == len(stages) {
		return Stage{}, false
	}
	return stages[i], true
}

// Describe never fails: unknown values get the default stage's color and
// their raw value as label.
func Describe(s Status) Stage {
	if st, ok := Lookup(s); ok {
		return st
	}
	label := string(s)
	if label == "" {
		label = "Other"
	}
	fallback := stages[0]
	return Stage{Status: s, Label: label, Color: fallback.Color}
}

// Parse normalizes user input into a canonical status.
func Parse(raw string) (Status, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" {
		return Default, true
	}
	if s, ok := aliases[v]; ok {
		return s, true
	}
	s := Status(v)
	if !Valid(s) {
		return s, false
	}
	return s, true
}

// IsActive reports whether s counts as actively pursued or beyond.
func IsActive(s Status) bool {
	return active[s]
}
