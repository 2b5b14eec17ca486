package listing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
)

const resultsPage = `<html><body><div id="recruit_info_list">
<div class="item_recruit">
  <div class="area_job">
    <h2 class="job_tit"><a href="/zf_user/jobs/relay/view?rec_idx=101" title="백엔드 개발자">백엔드 개발자 </a></h2>
    <div class="job_date"><span class="date">~ 2025.03.14(금)</span></div>
    <div class="job_condition">
      <span><a>서울</a> <a>강남구</a></span>
      <span>경력 3년↑</span>
      <span>대졸↑</span>
      <span>정규직</span>
    </div>
    <div class="job_sector"><a>Go</a>, <a>Kubernetes</a> ,<a>PostgreSQL</a>, </div>
  </div>
  <div class="area_corp"><strong class="corp_name"><a href="/company/1">(주)에이크미</a></strong></div>
</div>
<div class="item_recruit">
  <div class="area_job">
    <h2 class="job_tit"><a href="https://www.saramin.co.kr/zf_user/jobs/relay/view?rec_idx=102">프론트엔드</a></h2>
    <div class="job_condition"><span>부산</span></div>
  </div>
  <div class="area_corp"><strong class="corp_name"><a>베타랩스</a></strong></div>
</div>
<div class="item_recruit ad">
  <div class="area_job"><h2 class="job_tit"><a href="/ad">광고</a></h2></div>
</div>
<div class="item_recruit">
  <div class="area_job">
    <h2 class="job_tit"><a href="/x">회사 없음</a></h2>
    <div class="job_condition"><span>서울</span></div>
  </div>
</div>
</div></body></html>`

func newTestParser(t *testing.T) *Parser {
	t.Helper()
	p, err := NewParser(DefaultSelectors(), "https://www.saramin.co.kr")
	require.NoError(t, err)
	return p
}

func TestParseExtractsCards(t *testing.T) {
	t.Parallel()

	stubs, err := newTestParser(t).Parse(crawler.RawPage{URL: "https://www.saramin.co.kr/zf_user/search/recruit", Body: []byte(resultsPage)})
	require.NoError(t, err)
	require.Len(t, stubs, 2)

	first := stubs[0]
	require.Equal(t, "백엔드 개발자", first.Title)
	require.Equal(t, "(주)에이크미", first.CompanyName)
	require.Equal(t, "https://www.saramin.co.kr/zf_user/jobs/relay/view?rec_idx=101", first.URL)
	require.Equal(t, "서울 강남구", first.Conditions.Location)
	require.Equal(t, "경력 3년↑", first.Conditions.Experience)
	require.Equal(t, "대졸↑", first.Conditions.Education)
	require.Equal(t, "정규직", first.Conditions.EmploymentType)
	require.Equal(t, []string{"Go", "Kubernetes", "PostgreSQL"}, first.Skills)
	require.Equal(t, "~ 2025.03.14(금)", first.Deadline)

	second := stubs[1]
	require.Equal(t, "https://www.saramin.co.kr/zf_user/jobs/relay/view?rec_idx=102", second.URL)
	require.Equal(t, crawler.StubConditions{Location: "부산"}, second.Conditions)
	require.Empty(t, second.Sector)
	require.Equal(t, []string{}, second.Skills)
	require.Empty(t, second.Deadline)
}

func TestParseNoCardsReturnsEmpty(t *testing.T) {
	t.Parallel()

	stubs, err := newTestParser(t).Parse(crawler.RawPage{Body: []byte(`<html><body><p>검색결과가 없습니다</p></body></html>`)})
	require.NoError(t, err)
	require.NotNil(t, stubs)
	require.Empty(t, stubs)
}

func TestNewParserValidation(t *testing.T) {
	t.Parallel()

	_, err := NewParser(Selectors{}, "https://www.saramin.co.kr")
	require.Error(t, err)

	_, err = NewParser(DefaultSelectors(), "/relative")
	require.ErrorContains(t, err, "invalid origin")
}

func TestSplitSkills(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"웹개발", "서버 개발"}, SplitSkills(" 웹개발 ,\n서버   개발,,"))
	require.Equal(t, []string{}, SplitSkills(""))
}

func TestQuery(t *testing.T) {
	t.Parallel()

	v := Query(crawler.ListingQuery{Keyword: "백엔드", Page: 3, PageSize: 40, Sort: "relation", LocationCode: "101000"})
	require.Equal(t, "search", v.Get("searchType"))
	require.Equal(t, "백엔드", v.Get("searchword"))
	require.Equal(t, "3", v.Get("recruitPage"))
	require.Equal(t, "40", v.Get("recruitPageCount"))
	require.Equal(t, "relation", v.Get("recruitSort"))
	require.Equal(t, "101000", v.Get("loc_mcd"))
	require.False(t, v.Has("job_type"))

	require.Equal(t, "1", Query(crawler.ListingQuery{}).Get("recruitPage"))
}
