// Package listing extracts posting stubs from search results pages.
package listing

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// Selectors locates the parts of a posting card.
type Selectors struct {
	Card      string `mapstructure:"card"`
	Title     string `mapstructure:"title"`
	Company   string `mapstructure:"company"`
	Condition string `mapstructure:"condition"`
	// ConditionItem selects the positional sub-fields inside Condition:
	// location, experience, education, employment type.
	ConditionItem string `mapstructure:"condition_item"`
	Sector        string `mapstructure:"sector"`
	Deadline      string `mapstructure:"deadline"`
}

// DefaultSelectors matches the Saramin results markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Card:          ".item_recruit",
		Title:         ".job_tit a",
		Company:       ".corp_name a",
		Condition:     ".job_condition",
		ConditionItem: "span",
		Sector:        ".job_sector",
		Deadline:      ".job_date .date",
	}
}

// Parser turns listing HTML into posting stubs.
type Parser struct {
	sel    Selectors
	origin *url.URL
}

// NewParser builds a Parser that resolves card links against origin.
func NewParser(sel Selectors, origin string) (*Parser, error) {
	if sel.Card == "" || sel.Title == "" || sel.Company == "" || sel.Condition == "" {
		return nil, fmt.Errorf("listing: card, title, company, and condition selectors are required")
	}
	if sel.ConditionItem == "" {
		sel.ConditionItem = "span"
	}
	base, err := url.Parse(origin)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("listing: invalid origin %q", origin)
	}
	return &Parser{sel: sel, origin: base}, nil
}

// Parse returns the stubs found on page. A page without recognizable cards
// yields an empty slice and no error; cards lacking a title, company, or
// condition block are skipped.
func (p *Parser) Parse(page crawler.RawPage) ([]crawler.PostingStub, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, &crawler.ParseError{URL: page.URL, Stage: "listing", Err: err}
	}

	stubs := make([]crawler.PostingStub, 0)
	doc.Find(p.sel.Card).Each(func(_ int, card *goquery.Selection) {
		if stub, ok := p.parseCard(card); ok {
			stubs = append(stubs, stub)
		}
	})
	return stubs, nil
}

func (p *Parser) parseCard(card *goquery.Selection) (crawler.PostingStub, bool) {
	titleSel := card.Find(p.sel.Title).First()
	companySel := card.Find(p.sel.Company).First()
	condSel := card.Find(p.sel.Condition).First()
	if titleSel.Length() == 0 || companySel.Length() == 0 || condSel.Length() == 0 {
		return crawler.PostingStub{}, false
	}

	title := strings.TrimSpace(titleSel.Text())
	company := strings.TrimSpace(companySel.Text())
	href, _ := titleSel.Attr("href")
	link := p.resolve(strings.TrimSpace(href))
	if title == "" || company == "" || link == "" {
		return crawler.PostingStub{}, false
	}

	stub := crawler.PostingStub{
		Title:       title,
		CompanyName: company,
		URL:         link,
		Conditions:  p.conditions(condSel),
		Skills:      []string{},
	}
	if sector := card.Find(p.sel.Sector).First(); p.sel.Sector != "" && sector.Length() > 0 {
		stub.Sector = strings.TrimSpace(sector.Text())
		stub.Skills = SplitSkills(stub.Sector)
	}
	if deadline := card.Find(p.sel.Deadline).First(); p.sel.Deadline != "" && deadline.Length() > 0 {
		stub.Deadline = strings.TrimSpace(deadline.Text())
	}
	return stub, true
}

func (p *Parser) conditions(sel *goquery.Selection) crawler.StubConditions {
	items := sel.Find(p.sel.ConditionItem)
	at := func(i int) string {
		if i >= items.Length() {
			return ""
		}
		return strings.TrimSpace(items.Eq(i).Text())
	}
	return crawler.StubConditions{
		Location:       at(0),
		Experience:     at(1),
		Education:      at(2),
		EmploymentType: at(3),
	}
}

func (p *Parser) resolve(href string) string {
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return p.origin.ResolveReference(ref).String()
}

// SplitSkills splits a comma-separated sector tag into trimmed, non-empty skills.
func SplitSkills(sector string) []string {
	skills := make([]string, 0)
	for _, part := range strings.Split(sector, ",") {
		if s := strings.Join(strings.Fields(part), " "); s != "" {
			skills = append(skills, s)
		}
	}
	return skills
}
