package detail

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/jobpost-harvester/internal/crawler"
	"github.com/JakeFAU/jobpost-harvester/internal/segment"
)

const postingPage = `<html><body>
<div class="jv_cont jv_summary">
  <div class="cont">
    <div class="col">
      <dl><dt>경력</dt><dd>경력 3년 이상</dd></dl>
      <dl><dt>근무형태</dt><dd>정규직</dd></dl>
    </div>
    <div class="col">
      <dl><dt>급여</dt><dd>
        회사내규에 따름
      </dd></dl>
      <dl><dt>근무일시</dt><dd>주 5일(월~금) 10:00~19:00</dd></dl>
      <dl><dt>근무지역</dt><dd>서울 강남구 테헤란로 <a href="#">지도</a></dd></dl>
    </div>
  </div>
</div>
<iframe id="iframe_content_0" src="/view-detail"></iframe>
</body></html>`

type fakeFetcher struct {
	page crawler.RawPage
	err  error
	reqs []crawler.FetchRequest
}

func (f *fakeFetcher) Fetch(_ context.Context, req crawler.FetchRequest) (crawler.RawPage, error) {
	f.reqs = append(f.reqs, req)
	return f.page, f.err
}

func TestExtractReadsBothPanels(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: crawler.RawPage{
		URL:       "https://www.saramin.co.kr/zf_user/jobs/relay/view?rec_idx=101",
		Body:      []byte(postingPage),
		FrameText: "  회사소개  \n\n우리는 최고의 회사입니다\r\n담당업무\n백엔드 개발\n  \n근무지역 : 서울 강남구\n문의처: hr@example.com",
	}}
	ext := NewExtractor(fetcher, segment.Default(), Selectors{})

	facts, content, err := ext.Extract(context.Background(), "https://www.saramin.co.kr/zf_user/jobs/relay/view?rec_idx=101")
	require.NoError(t, err)
	require.Len(t, fetcher.reqs, 1)
	require.Equal(t, crawler.FetchDetail, fetcher.reqs[0].Kind)

	require.Equal(t, "회사내규에 따름", facts.Salary)
	require.Equal(t, "정규직", facts.Conditions.EmploymentType)
	require.Equal(t, "서울 강남구 테헤란로", facts.Conditions.Location)
	require.Equal(t, "주 5일(월~금) 10:00~19:00", facts.Conditions.WorkSchedule)

	require.Equal(t, "회사소개\n우리는 최고의 회사입니다", content.Description)
	require.Equal(t, []string{"담당업무", "백엔드 개발"}, content.Sections[crawler.SectionTasks])
	require.Equal(t, "서울 강남구", content.DetailLocation)
}

func TestSummaryWithoutMatchingLabelsYieldsSentinels(t *testing.T) {
	t.Parallel()

	ext := NewExtractor(&fakeFetcher{}, segment.Default(), Selectors{})
	facts, err := ext.Summary(crawler.RawPage{Body: []byte(`<div class="jv_summary"><dl><dt>경력</dt><dd>신입</dd></dl><dl><dt>학력</dt><dd>무관</dd></dl></div>`)})

	require.NoError(t, err)
	require.Equal(t, crawler.DefaultSummaryFacts(), facts)
}

func TestSummaryEmptyValueFallsBackToSentinel(t *testing.T) {
	t.Parallel()

	ext := NewExtractor(&fakeFetcher{}, segment.Default(), Selectors{})
	facts, err := ext.Summary(crawler.RawPage{Body: []byte(`<div class="jv_summary"><dl><dt>급여</dt><dd> </dd></dl><dl><dt>근무지역</dt><dd>지도</dd></dl><dl><dt>근무시간</dt><dd>09:00~18:00</dd></dl></div>`)})

	require.NoError(t, err)
	require.Equal(t, crawler.NoSalary, facts.Salary)
	require.Equal(t, crawler.NoLocation, facts.Conditions.Location)
	require.Equal(t, "09:00~18:00", facts.Conditions.WorkSchedule)
}

func TestExtractMissingSummaryIsParseError(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{page: crawler.RawPage{URL: "u", Body: []byte(`<html><body>삭제된 공고</body></html>`), FrameText: "자격요건\n신입 가능"}}
	facts, content, err := NewExtractor(fetcher, segment.Default(), Selectors{}).Extract(context.Background(), "u")

	require.Error(t, err)
	require.True(t, crawler.IsParseError(err))
	require.ErrorIs(t, err, ErrSummaryMissing)
	require.Equal(t, crawler.DefaultSummaryFacts(), facts)
	require.Equal(t, []string{"자격요건", "신입 가능"}, content.Sections[crawler.SectionRequirements])
}

func TestExtractFetchFailureReturnsDefaults(t *testing.T) {
	t.Parallel()

	fetchErr := &crawler.FetchError{URL: "u", Kind: crawler.FetchDetail, Err: errors.New("frame not found")}
	facts, content, err := NewExtractor(&fakeFetcher{err: fetchErr}, segment.Default(), Selectors{}).Extract(context.Background(), "u")

	require.ErrorIs(t, err, fetchErr)
	require.True(t, crawler.IsFetchError(err))
	require.Equal(t, crawler.DefaultSummaryFacts(), facts)
	require.Equal(t, crawler.NewSectionedContent(), content)
}

func TestExtractMissingFrameStillReadsSummary(t *testing.T) {
	t.Parallel()

	frameErr := &crawler.ParseError{URL: "u", Stage: "frame", Err: errors.New("content frame not found")}
	fetcher := &fakeFetcher{page: crawler.RawPage{URL: "u", Body: []byte(postingPage)}, err: frameErr}

	facts, content, err := NewExtractor(fetcher, segment.Default(), Selectors{}).Extract(context.Background(), "u")

	require.ErrorIs(t, err, frameErr)
	require.True(t, crawler.IsParseError(err))
	require.False(t, crawler.IsFetchError(err))
	require.Equal(t, "회사내규에 따름", facts.Salary)
	require.Equal(t, "정규직", facts.Conditions.EmploymentType)
	require.Equal(t, "서울 강남구 테헤란로", facts.Conditions.Location)
	require.Equal(t, "주 5일(월~금) 10:00~19:00", facts.Conditions.WorkSchedule)
	require.Empty(t, content.Description)
	for _, section := range crawler.Sections() {
		require.Empty(t, content.Lines(section))
	}
}

func TestContentLines(t *testing.T) {
	t.Parallel()

	require.Equal(t, []string{"a", "b c"}, ContentLines("\n  a \r\n\t\n b c  \n"))
	require.Empty(t, ContentLines(""))
}
