// Package segment classifies the lines of a posting body into named sections.
package segment

import (
	"strings"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// Segmenter applies a Table to line sequences. It holds no per-call state and
// is safe for concurrent use.
type Segmenter struct {
	table Table
}

// New validates table and returns a Segmenter.
func New(table Table) (*Segmenter, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Segmenter{table: table}, nil
}

// Default returns a Segmenter over DefaultTable.
func Default() *Segmenter {
	return &Segmenter{table: DefaultTable()}
}

// Segment walks lines once. Each line is discarded as noise, consumed as the
// inline location fact, appended to the active section, or appended to the
// description, in that priority.
func (s *Segmenter) Segment(lines []string) crawler.SectionedContent {
	out := crawler.NewSectionedContent()
	var (
		current     crawler.Section
		buffer      []string
		description []string
	)
	flush := func() {
		if current != "" && len(buffer) > 0 {
			out.Sections[current] = append(out.Sections[current], buffer...)
		}
		buffer = nil
	}

	for _, line := range lines {
		if s.isNoise(line) {
			out.Discarded = append(out.Discarded, line)
			continue
		}
		if loc, ok := s.inlineLocation(line); ok {
			if loc != "" {
				out.DetailLocation = loc
			}
			out.Discarded = append(out.Discarded, line)
			continue
		}
		if section, ok := s.header(line); ok {
			flush()
			current = section
		}
		if current != "" {
			buffer = append(buffer, line)
			continue
		}
		description = append(description, line)
	}
	flush()

	out.Description = strings.Join(description, "\n")
	return out
}

func (s *Segmenter) isNoise(line string) bool {
	for _, kw := range s.table.Noise {
		if strings.Contains(line, kw) {
			return true
		}
	}
	return false
}

func (s *Segmenter) inlineLocation(line string) (string, bool) {
	if s.table.LocationMarker == "" || !strings.Contains(line, s.table.LocationMarker) {
		return "", false
	}
	_, after, found := strings.Cut(line, s.table.LocationSep)
	if !found {
		return "", false
	}
	return strings.TrimSpace(after), true
}

func (s *Segmenter) header(line string) (crawler.Section, bool) {
	for _, rule := range s.table.Rules {
		for _, trig := range rule.Triggers {
			if strings.Contains(line, trig) {
				return rule.Section, true
			}
		}
	}
	return "", false
}
