package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

type postingKey struct {
	company string
	title   string
}

// PostingStore keys companies by name and postings by (company, title),
// matching the Postgres store.
type PostingStore struct {
	mu        sync.RWMutex
	companies map[string]crawler.Company
	postings  map[postingKey]crawler.NormalizedPosting
	// FailCompanies makes UpsertCompany fail for the named companies.
	FailCompanies map[string]error
}

// NewPostingStore constructs an empty PostingStore.
func NewPostingStore() *PostingStore {
	return &PostingStore{
		companies: make(map[string]crawler.Company),
		postings:  make(map[postingKey]crawler.NormalizedPosting),
	}
}

// UpsertCompany inserts or replaces a company by name.
func (s *PostingStore) UpsertCompany(_ context.Context, company crawler.Company) error {
	if company.Name == "" {
		return &crawler.PersistenceError{Entity: "company", Err: fmt.Errorf("name is required")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.FailCompanies[company.Name]; err != nil {
		return &crawler.PersistenceError{Entity: "company", Key: company.Name, Err: err}
	}
	s.companies[company.Name] = company
	return nil
}

// UpsertPosting inserts or overwrites a posting and reports whether it was new.
func (s *PostingStore) UpsertPosting(_ context.Context, p crawler.NormalizedPosting) (bool, error) {
	key := postingKey{company: p.CompanyName, title: p.Title}
	if key.company == "" || key.title == "" {
		return false, &crawler.PersistenceError{Entity: "posting", Key: p.CompanyName + "/" + p.Title, Err: fmt.Errorf("company name and title are required")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.postings[key]
	s.postings[key] = p
	return !exists, nil
}

// Counts returns the number of stored companies and postings.
func (s *PostingStore) Counts(_ context.Context) (crawler.StoreCounts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return crawler.StoreCounts{Companies: int64(len(s.companies)), Postings: int64(len(s.postings))}, nil
}

// Posting returns the stored posting for (company, title).
func (s *PostingStore) Posting(company, title string) (crawler.NormalizedPosting, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.postings[postingKey{company: company, title: title}]
	return p, ok
}

// Company returns the stored company by name.
func (s *PostingStore) Company(name string) (crawler.Company, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.companies[name]
	return c, ok
}

// Close is a no-op.
func (s *PostingStore) Close() {}
