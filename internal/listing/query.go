package listing

import (
	"net/url"
	"strconv"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

// Query encodes q as search endpoint parameters. Empty filters are omitted.
func Query(q crawler.ListingQuery) url.Values {
	v := url.Values{}
	v.Set("searchType", "search")
	v.Set("searchword", q.Keyword)
	page := q.Page
	if page < 1 {
		page = 1
	}
	v.Set("recruitPage", strconv.Itoa(page))
	if q.PageSize > 0 {
		v.Set("recruitPageCount", strconv.Itoa(q.PageSize))
	}
	if q.Sort != "" {
		v.Set("recruitSort", q.Sort)
	}
	if q.LocationCode != "" {
		v.Set("loc_mcd", q.LocationCode)
	}
	if q.JobType != "" {
		v.Set("job_type", q.JobType)
	}
	return v
}
