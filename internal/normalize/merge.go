// Package normalize merges listing, summary, and segmenter output into one
// persisted-ready posting record.
package normalize

import (
	"strings"
	"time"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// Employment categories derived from the free-text employment type.
const (
	CategoryFullTime   = "full-time"
	CategoryContract   = "contract"
	CategoryInternship = "internship"
	CategoryPartTime   = "part-time"
)

var categoryRules = []struct {
	contains string
	category string
}{
	{"정규", CategoryFullTime},
	{"계약", CategoryContract},
	{"인턴", CategoryInternship},
	{"파트", CategoryPartTime},
	{"아르바이트", CategoryPartTime},
}

// EmploymentCategory maps Korean employment-type text to a category. Unknown
// text maps to full-time.
func EmploymentCategory(employmentType string) string {
	for _, rule := range categoryRules {
		if strings.Contains(employmentType, rule.contains) {
			return rule.category
		}
	}
	return CategoryFullTime
}

// Merge builds the NormalizedPosting for one stub. Summary-panel conditions win
// over the stub when they are not sentinels; the inline detail location wins
// over the stub when non-empty.
func Merge(stub crawler.PostingStub, summary crawler.SummaryFacts, content crawler.SectionedContent) crawler.NormalizedPosting {
	location := stub.Conditions.Location
	if content.DetailLocation != "" {
		location = content.DetailLocation
	}
	if present(summary.Conditions.Location, crawler.NoLocation) {
		location = summary.Conditions.Location
	}

	employmentType := stub.Conditions.EmploymentType
	if present(summary.Conditions.EmploymentType, crawler.NoEmploymentType) {
		employmentType = summary.Conditions.EmploymentType
	}

	salary := summary.Salary
	if salary == "" {
		salary = crawler.NoSalary
	}
	schedule := summary.Conditions.WorkSchedule
	if schedule == "" {
		schedule = crawler.NoWorkSchedule
	}

	return crawler.NormalizedPosting{
		CompanyName:        stub.CompanyName,
		Title:              stub.Title,
		URL:                stub.URL,
		Description:        content.Description,
		Tasks:              list(content.Sections[crawler.SectionTasks]),
		Requirements:       list(content.Sections[crawler.SectionRequirements]),
		Preferred:          list(content.Sections[crawler.SectionPreferred]),
		Benefits:           list(content.Sections[crawler.SectionBenefits]),
		Process:            list(content.Sections[crawler.SectionProcess]),
		Location:           location,
		EmploymentType:     employmentType,
		EmploymentCategory: EmploymentCategory(employmentType),
		Experience:         stub.Conditions.Experience,
		Education:          stub.Conditions.Education,
		Conditions: crawler.PostingConditions{
			Location:       orDefault(summary.Conditions.Location, crawler.NoLocation),
			EmploymentType: orDefault(summary.Conditions.EmploymentType, crawler.NoEmploymentType),
			WorkSchedule:   schedule,
			DetailLocation: content.DetailLocation,
		},
		Salary:     salary,
		Sector:     stub.Sector,
		Skills:     list(stub.Skills),
		Deadline:   stub.Deadline,
		DeadlineAt: ParseDeadline(stub.Deadline),
		Status:     crawler.StatusActive,
	}
}

// Stamp sets the run identity and harvest time on a merged posting.
func Stamp(p crawler.NormalizedPosting, runID string, at time.Time) crawler.NormalizedPosting {
	p.RunID = runID
	p.HarvestedAt = at.UTC()
	return p
}

// Company derives the company record upserted alongside p.
func Company(p crawler.NormalizedPosting) crawler.Company {
	return crawler.Company{Name: p.CompanyName, Location: p.Location}
}

func present(value, sentinel string) bool {
	return value != "" && value != sentinel
}

func orDefault(value, sentinel string) string {
	if value == "" {
		return sentinel
	}
	return value
}

func list(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
