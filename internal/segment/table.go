package segment

import (
	"errors"
	"fmt"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// Rule maps a section to the substrings that open it.
type Rule struct {
	Section  crawler.Section
	Triggers []string
}

// Table is the classifier configuration. Rules are evaluated in slice order
// and the first match wins.
type Table struct {
	Noise          []string
	LocationMarker string
	LocationSep    string
	Rules          []Rule
}

// DefaultTable returns the keyword tables tuned for Saramin posting bodies.
func DefaultTable() Table {
	return Table{
		Noise: []string{
			"모집부문", "기타사항", "근무조건", "근무 조건", "근무형태", "근무 형태",
			"마감일 및 근무지", "근무시간", "근무일시", "유의사항", "기타안내", "상세정보",
			"채용정보", "참고사항", "문의사항", "안내사항", "접수안내", "지원안내", "담당자",
			"문의처", "기업정보", "회사정보", "채용담당", "보훈", "장애",
		},
		LocationMarker: "근무지역",
		LocationSep:    ":",
		Rules: []Rule{
			{Section: crawler.SectionTasks, Triggers: []string{"담당업무", "주요업무", "직무내용"}},
			{Section: crawler.SectionRequirements, Triggers: []string{"자격요건", "필수사항", "공통 자격요건"}},
			{Section: crawler.SectionPreferred, Triggers: []string{"우대사항", "공통 우대사항"}},
			{Section: crawler.SectionBenefits, Triggers: []string{"복리후생", "복지", "혜택", "제도 및 환경", "복지제도"}},
			{Section: crawler.SectionProcess, Triggers: []string{"전형절차", "접수기간 및 방법", "함께하기 위한 방법"}},
		},
	}
}

// TableFromKeywords builds a Table from configuration values. Sections keep the
// fixed priority order; a section missing from triggers falls back to the default.
func TableFromKeywords(noise []string, marker string, triggers map[string][]string) Table {
	table := DefaultTable()
	if noise != nil {
		table.Noise = append([]string(nil), noise...)
	}
	if marker != "" {
		table.LocationMarker = marker
	}
	for i, rule := range table.Rules {
		if custom, ok := triggers[string(rule.Section)]; ok && len(custom) > 0 {
			table.Rules[i].Triggers = append([]string(nil), custom...)
		}
	}
	return table
}

// Validate checks that the table names each known section once and carries no
// empty triggers.
func (t Table) Validate() error {
	if len(t.Rules) == 0 {
		return errors.New("segment: no section rules")
	}
	known := make(map[crawler.Section]struct{})
	for _, s := range crawler.Sections() {
		known[s] = struct{}{}
	}
	seen := make(map[crawler.Section]struct{}, len(t.Rules))
	for _, rule := range t.Rules {
		if _, ok := known[rule.Section]; !ok {
			return fmt.Errorf("segment: unknown section %q", rule.Section)
		}
		if _, dup := seen[rule.Section]; dup {
			return fmt.Errorf("segment: section %q listed twice", rule.Section)
		}
		seen[rule.Section] = struct{}{}
		if len(rule.Triggers) == 0 {
			return fmt.Errorf("segment: section %q has no triggers", rule.Section)
		}
		for _, trig := range rule.Triggers {
			if trig == "" {
				return fmt.Errorf("segment: section %q has an empty trigger", rule.Section)
			}
		}
	}
	for _, n := range t.Noise {
		if n == "" {
			return errors.New("segment: empty noise keyword")
		}
	}
	if t.LocationMarker != "" && t.LocationSep == "" {
		return errors.New("segment: location marker requires a separator")
	}
	return nil
}
