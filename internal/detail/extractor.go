// Package detail reads the summary panel and content panel of a posting page.
package detail

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// ErrSummaryMissing is wrapped in a ParseError when the summary container is absent.
var ErrSummaryMissing = errors.New("summary panel not found")

// Selectors locates the summary panel rows.
type Selectors struct {
	Summary string `mapstructure:"summary"`
	Row     string `mapstructure:"row"`
	Label   string `mapstructure:"label"`
	Value   string `mapstructure:"value"`
}

// DefaultSelectors matches the Saramin posting page.
func DefaultSelectors() Selectors {
	return Selectors{Summary: ".jv_summary", Row: "dl", Label: "dt", Value: "dd"}
}

// Segmenter classifies content lines.
type Segmenter interface {
	Segment(lines []string) crawler.SectionedContent
}

// Extractor fetches a rendered posting page and reads both of its panels.
type Extractor struct {
	fetcher   crawler.Fetcher
	segmenter Segmenter
	sel       Selectors
}

// NewExtractor wires an Extractor. Zero-valued selectors fall back to defaults.
func NewExtractor(fetcher crawler.Fetcher, segmenter Segmenter, sel Selectors) *Extractor {
	def := DefaultSelectors()
	if sel.Summary == "" {
		sel.Summary = def.Summary
	}
	if sel.Row == "" {
		sel.Row = def.Row
	}
	if sel.Label == "" {
		sel.Label = def.Label
	}
	if sel.Value == "" {
		sel.Value = def.Value
	}
	return &Extractor{fetcher: fetcher, segmenter: segmenter, sel: sel}
}

// Extract fetches rawURL and returns its summary facts and sectioned content.
// The returned values are always usable: on error they hold sentinel defaults
// and empty sections for whatever could not be read. Fetch failures are
// *crawler.FetchError. A missing summary panel or content frame is a
// *crawler.ParseError, and the other panel is still read.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (crawler.SummaryFacts, crawler.SectionedContent, error) {
	facts := crawler.DefaultSummaryFacts()
	content := crawler.NewSectionedContent()

	page, fetchErr := e.fetcher.Fetch(ctx, crawler.FetchRequest{URL: rawURL, Kind: crawler.FetchDetail})
	if fetchErr != nil && !crawler.IsParseError(fetchErr) {
		return facts, content, fetchErr
	}

	content = e.segmenter.Segment(ContentLines(page.FrameText))

	facts, summaryErr := e.Summary(page)
	return facts, content, errors.Join(fetchErr, summaryErr)
}

// Summary reads the summary panel of page. A page without the panel yields
// sentinel defaults together with a *crawler.ParseError.
func (e *Extractor) Summary(page crawler.RawPage) (crawler.SummaryFacts, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return crawler.DefaultSummaryFacts(), &crawler.ParseError{URL: page.URL, Stage: "summary", Err: err}
	}
	panel := doc.Find(e.sel.Summary).First()
	if panel.Length() == 0 {
		return crawler.DefaultSummaryFacts(), &crawler.ParseError{URL: page.URL, Stage: "summary", Err: ErrSummaryMissing}
	}
	return scanSummary(panel, e.sel), nil
}

// ContentLines splits panel text into trimmed, non-blank lines.
func ContentLines(text string) []string {
	raw := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	lines := make([]string, 0, len(raw))
	for _, line := range raw {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	return lines
}
