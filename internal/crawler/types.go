package crawler

import (
	"net/http"
	"net/url"
	"time"
)

// FetchKind selects how a page is retrieved from the remote site.
type FetchKind string

// Supported fetch kinds.
const (
	// FetchListing is a static GET of a search results page.
	FetchListing FetchKind = "listing"
	// FetchDetail is a browser-rendered posting page with a framed content panel.
	FetchDetail FetchKind = "detail"
)

// FetchRequest describes a single request issued through the Fetcher.
type FetchRequest struct {
	URL     string
	Kind    FetchKind
	Query   url.Values
	Headers http.Header
}

// RawPage is the fetched (and possibly rendered) representation of a remote page.
type RawPage struct {
	URL        string
	FinalURL   string
	Kind       FetchKind
	StatusCode int
	Headers    http.Header
	Body       []byte
	// FrameText holds the rendered text of the framed content panel for detail pages.
	FrameText string
	Duration  time.Duration
	Rendered  bool
}

// ListingQuery carries the search parameters for one results page.
type ListingQuery struct {
	Keyword      string `json:"keyword"`
	Page         int    `json:"page"`
	PageSize     int    `json:"page_size"`
	Sort         string `json:"sort"`
	LocationCode string `json:"location_code"`
	JobType      string `json:"job_type"`
}

// StubConditions holds the coarse condition block of a listing card.
type StubConditions struct {
	Location       string `json:"location"`
	Experience     string `json:"experience"`
	Education      string `json:"education"`
	EmploymentType string `json:"employment_type"`
}

// PostingStub is the minimal set of facts scraped from a listing card.
type PostingStub struct {
	Title       string         `json:"title"`
	CompanyName string         `json:"company_name"`
	URL         string         `json:"url"`
	Conditions  StubConditions `json:"conditions"`
	Sector      string         `json:"sector"`
	Skills      []string       `json:"skills"`
	Deadline    string         `json:"deadline"`
}

// Sentinel values used when the summary panel does not expose a fact.
const (
	NoSalary         = "급여 정보 없음"
	NoLocation       = "지역 정보 없음"
	NoEmploymentType = "근무형태 정보 없음"
	NoWorkSchedule   = "근무시간 정보 없음"
)

// SummaryConditions is the conditions sub-record of the summary panel.
type SummaryConditions struct {
	Location       string `json:"location"`
	EmploymentType string `json:"employment_type"`
	WorkSchedule   string `json:"work_schedule"`
}

// SummaryFacts are the key/value facts read from a detail page summary panel.
// Every field is always populated, with a sentinel when the panel lacks it.
type SummaryFacts struct {
	Salary     string            `json:"salary"`
	Conditions SummaryConditions `json:"conditions"`
}

// DefaultSummaryFacts returns SummaryFacts with every field set to its sentinel.
func DefaultSummaryFacts() SummaryFacts {
	return SummaryFacts{
		Salary: NoSalary,
		Conditions: SummaryConditions{
			Location:       NoLocation,
			EmploymentType: NoEmploymentType,
			WorkSchedule:   NoWorkSchedule,
		},
	}
}

// Section names one of the recognized content buckets.
type Section string

// Recognized sections, listed in header-matching priority order.
const (
	SectionTasks        Section = "tasks"
	SectionRequirements Section = "requirements"
	SectionPreferred    Section = "preferred"
	SectionBenefits     Section = "benefits"
	SectionProcess      Section = "process"
)

// Sections returns the recognized sections in header-matching priority order.
func Sections() []Section {
	return []Section{SectionTasks, SectionRequirements, SectionPreferred, SectionBenefits, SectionProcess}
}

// SectionedContent is the segmenter output for one content panel.
type SectionedContent struct {
	Sections       map[Section][]string `json:"sections"`
	Description    string               `json:"description"`
	DetailLocation string               `json:"detail_location"`
	// Discarded holds noise and inline-location lines in input order.
	Discarded []string `json:"discarded"`
}

// NewSectionedContent returns a value whose five sections are empty, non-nil slices.
func NewSectionedContent() SectionedContent {
	sections := make(map[Section][]string, 5)
	for _, s := range Sections() {
		sections[s] = []string{}
	}
	return SectionedContent{Sections: sections, Discarded: []string{}}
}

// Lines returns a copy of the given section, never nil.
func (c SectionedContent) Lines(s Section) []string {
	out := make([]string, len(c.Sections[s]))
	copy(out, c.Sections[s])
	return out
}

// PostingStatus is the lifecycle flag stored with a posting.
type PostingStatus string

// StatusActive marks a posting observed on the most recent harvest.
const StatusActive PostingStatus = "active"

// PostingConditions is the merged conditions sub-record of a posting.
type PostingConditions struct {
	Location       string `json:"location"`
	EmploymentType string `json:"employment_type"`
	WorkSchedule   string `json:"work_schedule"`
	DetailLocation string `json:"detail_location"`
}

// NormalizedPosting is the merged record handed to the PostingStore.
type NormalizedPosting struct {
	RunID              string            `json:"run_id"`
	CompanyName        string            `json:"company_name"`
	Title              string            `json:"title"`
	URL                string            `json:"url"`
	Description        string            `json:"description"`
	Tasks              []string          `json:"tasks"`
	Requirements       []string          `json:"requirements"`
	Preferred          []string          `json:"preferred"`
	Benefits           []string          `json:"benefits"`
	Process            []string          `json:"process"`
	Location           string            `json:"location"`
	EmploymentType     string            `json:"employment_type"`
	EmploymentCategory string            `json:"employment_category"`
	Experience         string            `json:"experience"`
	Education          string            `json:"education"`
	Conditions         PostingConditions `json:"conditions"`
	Salary             string            `json:"salary"`
	Sector             string            `json:"sector"`
	Skills             []string          `json:"skills"`
	Deadline           string            `json:"deadline"`
	DeadlineAt         *time.Time        `json:"deadline_at,omitempty"`
	Status             PostingStatus     `json:"status"`
	HarvestedAt        time.Time         `json:"harvested_at"`
}

// Company is upserted by name as a side effect of storing a posting.
type Company struct {
	Name     string `json:"name"`
	Location string `json:"location"`
}

// StoreCounts reports the totals held by a PostingStore.
type StoreCounts struct {
	Companies int64 `json:"companies"`
	Postings  int64 `json:"postings"`
}

// StopReason explains why a run ended.
type StopReason string

// Run stop reasons. All of them are normal termination.
const (
	StopExhausted  StopReason = "exhausted"
	StopMaxPages   StopReason = "max_pages"
	StopCapReached StopReason = "cap_reached"
	StopCanceled   StopReason = "canceled"
)

// RunParams configures a single harvest run.
type RunParams struct {
	RunID       string       `json:"run_id"`
	Query       ListingQuery `json:"query"`
	MaxPages    int          `json:"max_pages"`
	MaxPostings int          `json:"max_postings"`
}

// RunResult aggregates the outcome of a harvest run.
type RunResult struct {
	RunID             string     `json:"run_id"`
	Collected         int        `json:"collected"`
	PagesVisited      int        `json:"pages_visited"`
	PagesFailed       int        `json:"pages_failed"`
	PostingsFailed    int        `json:"postings_failed"`
	DetailUnavailable int        `json:"detail_unavailable"`
	StopReason        StopReason `json:"stop_reason"`
	StartedAt         time.Time  `json:"started_at"`
	FinishedAt        time.Time  `json:"finished_at"`
}

// RunStatus represents the lifecycle state of a background run.
type RunStatus string

// Run status values kept by the RunStore.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// Run is the record the control API exposes for a harvest run.
type Run struct {
	ID        string     `json:"id"`
	Status    RunStatus  `json:"status"`
	Params    RunParams  `json:"params"`
	Result    *RunResult `json:"result,omitempty"`
	ErrorText string     `json:"error_text,omitempty"`
	Submitted time.Time  `json:"submitted_at"`
	Finished  *time.Time `json:"finished_at,omitempty"`
}

// PostingEvent is published after a posting is upserted.
type PostingEvent struct {
	RunID       string    `json:"run_id"`
	CompanyName string    `json:"company_name"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Inserted    bool      `json:"inserted"`
	HarvestedAt time.Time `json:"harvested_at"`
}
