// Package posting extracts job fields from pasted posting text so the add
// form can be prefilled. It understands the "Company | Location | Role | ..."
// header line common on job boards and labeled lines such as "Salary: ...".
package posting

import (
	"regexp"
	"strconv"
	"strings"

	"jobtracker/internal/models"
)

type Result struct {
	Form         models.JobForm `json:"form"`
	Technologies []string       `json:"technologies"`
	Remote       bool           `json:"remote"`
}

var (
	dashPattern   = regexp.MustCompile(`[\x{2012}\x{2013}\x{2014}\x{2015}]`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	labelPattern  = regexp.MustCompile(`(?i)^(company|location|position|role|title|salary|compensation|tech stack|technologies|stack)\s*:\s*(.+)$`)
	salaryPattern = regexp.MustCompile(`(?i)\$\s?(\d[\d,]*(?:\.\d+)?)\s*(k)?\s*(?:-|to)\s*\$?\s?(\d[\d,]*(?:\.\d+)?)\s*(k)?`)
	remotePattern = regexp.MustCompile(`(?i)\b(remote|wfh|work[- ]from[- ]home)\b`)
	urlPattern    = regexp.MustCompile(`https?://[^\s|)>\]]+`)
	wordPattern   = regexp.MustCompile(`[a-z0-9+#.]+`)
)

var knownTech = map[string]bool{
	"python": true, "javascript": true, "typescript": true, "java": true,
	"golang": true, "ruby": true, "php": true, "rust": true,
	"react": true, "angular": true, "vue": true, "node": true, "django": true,
	"rails": true, "spring": true, "aws": true, "azure": true, "gcp": true,
	"kubernetes": true, "docker": true, "terraform": true, "sql": true,
	"postgresql": true, "postgres": true, "mysql": true, "mongodb": true,
	"redis": true, "kafka": true, "clickhouse": true,
}

// Parse never fails; fields it cannot find are left blank.
func Parse(text string) Result {
	lines := normalize(text)

	var form models.JobForm
	var labeledTech []string
	for i, line := range lines {
		if i == 0 && strings.Contains(line, "|") {
			parts := splitHeader(line)
			form.Company = at(parts, 0)
			form.Location = at(parts, 1)
			form.Position = at(parts, 2)
			continue
		}
		m := labelPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := strings.TrimSpace(m[2])
		switch strings.ToLower(m[1]) {
		case "company":
			setIfEmpty(&form.Company, value)
		case "location":
			setIfEmpty(&form.Location, value)
		case "position", "role", "title":
			setIfEmpty(&form.Position, value)
		case "tech stack", "technologies", "stack":
			labeledTech = append(labeledTech, strings.Split(value, ",")...)
		}
	}

	body := strings.Join(lines, "\n")
	if lo, hi, ok := salaryRange(body); ok {
		form.SalaryMin = strconv.Itoa(lo)
		form.SalaryMax = strconv.Itoa(hi)
	}
	form.JobURL = urlPattern.FindString(body)

	res := Result{
		Technologies: technologies(labeledTech, body),
		Remote:       remotePattern.MatchString(body),
	}
	if form.Location == "" && res.Remote {
		form.Location = "Remote"
	}
	if len(res.Technologies) > 0 {
		form.Notes = "Stack: " + strings.Join(res.Technologies, ", ")
	}
	res.Form = form
	return res
}

func normalize(text string) []string {
	text = dashPattern.ReplaceAllString(text, "-")
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(spacePattern.ReplaceAllString(line, " "))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitHeader(line string) []string {
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func at(parts []string, i int) string {
	if i < len(parts) {
		return parts[i]
	}
	return ""
}

func setIfEmpty(dst *string, v string) {
	if *dst == "" {
		*dst = v
	}
}

// salaryRange reads the first "$X - $Y" range, honoring a k suffix on
// either bound. A lone k on the upper bound applies to both.
func salaryRange(text string) (int, int, bool) {
	m := salaryPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	lo, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0, 0, false
	}
	hi, err := strconv.ParseFloat(strings.ReplaceAll(m[3], ",", ""), 64)
	if err != nil {
		return 0, 0, false
	}
	loK, hiK := m[2] != "", m[4] != ""
	if hiK {
		hi *= 1000
		if !loK && lo < 1000 {
			loK = true
		}
	}
	if loK {
		lo *= 1000
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	return int(lo), int(hi), true
}

func technologies(labeled []string, body string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, t := range labeled {
		add(t)
	}
	for _, w := range wordPattern.FindAllString(strings.ToLower(body), -1) {
		w = strings.TrimRight(w, ".")
		if knownTech[w] {
			add(w)
		}
	}
	return out
}
