package detail

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

type summaryField int

const (
	fieldSalary summaryField = iota
	fieldEmploymentType
	fieldLocation
	fieldWorkSchedule
)

// labelRule maps summary labels containing any of Labels to a field.
type labelRule struct {
	Field  summaryField
	Labels []string
	// TrimSuffix is removed from the value, e.g. the map link text.
	TrimSuffix string
}

// summaryRules are evaluated in order; the first rule whose label matches wins.
var summaryRules = []labelRule{
	{Field: fieldSalary, Labels: []string{"급여"}},
	{Field: fieldEmploymentType, Labels: []string{"근무형태"}},
	{Field: fieldLocation, Labels: []string{"근무지역"}, TrimSuffix: "지도"},
	{Field: fieldWorkSchedule, Labels: []string{"근무일시", "근무시간"}},
}

// scanSummary maps label/value rows onto SummaryFacts, then fills sentinels.
func scanSummary(panel *goquery.Selection, sel Selectors) crawler.SummaryFacts {
	var facts crawler.SummaryFacts
	panel.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		label := collapse(row.Find(sel.Label).First().Text())
		value := collapse(row.Find(sel.Value).First().Text())
		if label == "" {
			return
		}
		for _, rule := range summaryRules {
			if !containsAny(label, rule.Labels) {
				continue
			}
			if rule.TrimSuffix != "" {
				value = strings.TrimSpace(strings.TrimSuffix(value, rule.TrimSuffix))
			}
			if value != "" {
				assign(&facts, rule.Field, value)
			}
			return
		}
	})
	fillSentinels(&facts)
	return facts
}

func assign(facts *crawler.SummaryFacts, field summaryField, value string) {
	switch field {
	case fieldSalary:
		facts.Salary = value
	case fieldEmploymentType:
		facts.Conditions.EmploymentType = value
	case fieldLocation:
		facts.Conditions.Location = value
	case fieldWorkSchedule:
		facts.Conditions.WorkSchedule = value
	}
}

// fillSentinels runs once after the scan so every field is populated.
func fillSentinels(facts *crawler.SummaryFacts) {
	defaults := crawler.DefaultSummaryFacts()
	if facts.Salary == "" {
		facts.Salary = defaults.Salary
	}
	if facts.Conditions.Location == "" {
		facts.Conditions.Location = defaults.Conditions.Location
	}
	if facts.Conditions.EmploymentType == "" {
		facts.Conditions.EmploymentType = defaults.Conditions.EmploymentType
	}
	if facts.Conditions.WorkSchedule == "" {
		facts.Conditions.WorkSchedule = defaults.Conditions.WorkSchedule
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// collapse trims s and folds internal whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
