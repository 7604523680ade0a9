package analytics

import (
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const notAvailable = "N/A"

var printer = message.NewPrinter(language.English)

// FormatSalary renders a whole-dollar amount with thousands separators.
func FormatSalary(v int) string {
	return printer.Sprintf("$%d", v)
}

// FormatSalaryRange renders a job's salary bounds the way the detail view
// shows them.
func FormatSalaryRange(lo, hi *int) string {
	switch {
	case lo != nil && hi != nil:
		return FormatSalary(*lo) + " - " + FormatSalary(*hi)
	case lo != nil:
		return FormatSalary(*lo) + "+"
	case hi != nil:
		return "Up to " + FormatSalary(*hi)
	}
	return "Not specified"
}

// FormatAverageSalary renders the summary's average salary, or N/A when no
// job has a salary bound.
func (s Summary) FormatAverageSalary() string {
	if s.AverageSalary == nil {
		return notAvailable
	}
	return FormatSalary(int(math.Round(*s.AverageSalary)))
}

func (s Summary) FormatConversionRate() string {
	return printer.Sprintf("%d%%", s.RoundedConversionRate())
}
