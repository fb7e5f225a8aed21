package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/webfetch"
)

type searchHit struct {
	Title string
	URL   string
}

// fakeWeb 模拟搜索引擎及各站点页面
type fakeWeb struct {
	*httptest.Server
	mux *http.ServeMux

	mu     sync.Mutex
	words  []string
	pages  []int
	search func(word string, page int) []searchHit
}

func newFakeWeb(t *testing.T) *fakeWeb {
	t.Helper()
	w := &fakeWeb{mux: http.NewServeMux()}
	w.mux.HandleFunc("/s", w.handleSearch)
	w.Server = httptest.NewServer(w.mux)
	t.Cleanup(w.Close)
	return w
}

func (w *fakeWeb) handleSearch(rw http.ResponseWriter, r *http.Request) {
	word := r.URL.Query().Get("word")
	pn, _ := strconv.Atoi(r.URL.Query().Get("pn"))
	page := pn / searchPageSize

	w.mu.Lock()
	w.words = append(w.words, word)
	w.pages = append(w.pages, page)
	fn := w.search
	w.mu.Unlock()

	var hits []searchHit
	if fn != nil {
		hits = fn(word, page)
	}
	writeHTML(rw, searchPage(hits))
}

func (w *fakeWeb) requests() ([]string, []int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.words...), append([]int(nil), w.pages...)
}

func writeHTML(rw http.ResponseWriter, body string) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = rw.Write([]byte(body))
}

func searchPage(hits []searchHit) string {
	var b strings.Builder
	b.WriteString("<html><body><div id=\"content_left\">")
	for i, h := range hits {
		fmt.Fprintf(&b, `<div class="result-op c-container">
<h3><a href="%s">%s</a></h3>
<div class="c-row"><div class="news-source_Xj4Dv"><span class="c-img"><img src="https://icon.example.com/%d.png"></span></div></div>
<span aria-label="摘要：">成都市今天发布了关于城市发展的最新消息内容</span>
<span aria-label="新闻来源：四川日报">四川日报</span>
<div class="c-img-wrap"><img src="https://img.example.com/%d.jpg"></div>
</div>`, h.URL, h.Title, i, i)
	}
	b.WriteString("</div></body></html>")
	return b.String()
}

// numberedHits 每页 n 条，标题带页码保证唯一
func numberedHits(n int) func(string, int) []searchHit {
	return func(word string, page int) []searchHit {
		hits := make([]searchHit, 0, n)
		for i := 0; i < n; i++ {
			hits = append(hits, searchHit{
				Title: fmt.Sprintf("第%d页第%d条相关新闻标题", page+1, i+1),
				URL:   fmt.Sprintf("https://news.example.com/%d/%d.html", page, i),
			})
		}
		return hits
	}
}

func goqueryDoc(s string) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(s))
}

func testDeps() Deps {
	return Deps{
		Fetcher:  webfetch.New(5 * time.Second),
		Resolver: webfetch.New(5 * time.Second),
		Logger:   zap.NewNop(),
	}
}

func (w *fakeWeb) searchOptions() SearchEngineOptions {
	o := defaultSearchEngineOptions()
	o.BaseURL = w.URL + "/s"
	o.DelayMinMs, o.DelayMaxMs = 0, 0
	return o
}

func assertNormalized(t *testing.T, items []news.Item) {
	t.Helper()
	seen := map[string]bool{}
	for _, it := range items {
		assert.NotEmpty(t, it.Title)
		assert.NotEmpty(t, it.Source)
		assert.True(t, strings.HasPrefix(it.Cover, "http"), "cover %q", it.Cover)
		key := strings.ToLower(it.Title)
		assert.False(t, seen[key], "duplicate title %q", it.Title)
		seen[key] = true
	}
}

func TestSearchEngineBatch(t *testing.T) {
	w := newFakeWeb(t)
	w.search = numberedHits(10)
	c := NewSearchEngineCrawler(w.searchOptions(), testDeps())

	res := c.FetchData(context.Background(), "成都", 10)
	require.Len(t, res.Items, 10)
	assert.Equal(t, StatusOK, res.Status())
	assertNormalized(t, res.Items)

	first := res.Items[0]
	assert.Equal(t, "四川日报", first.Source)
	assert.Equal(t, "https://img.example.com/0.jpg", first.Cover)
	assert.Equal(t, "成都市今天发布了关于城市发展的最新消息内容", first.Summary)

	words, pages := w.requests()
	assert.Equal(t, []string{"成都"}, words)
	assert.Equal(t, []int{0}, pages)
}

func TestSearchEnginePaginationCap(t *testing.T) {
	w := newFakeWeb(t)
	w.search = numberedHits(10)
	c := NewSearchEngineCrawler(w.searchOptions(), testDeps())

	res := c.FetchData(context.Background(), "成都", 100)
	assert.Len(t, res.Items, 50)
	_, pages := w.requests()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, pages)
}

func TestSearchEngineStopsOnShortPage(t *testing.T) {
	w := newFakeWeb(t)
	w.search = numberedHits(3)
	c := NewSearchEngineCrawler(w.searchOptions(), testDeps())

	res := c.FetchData(context.Background(), "", 30)
	assert.Len(t, res.Items, 3)
	words, _ := w.requests()
	assert.Equal(t, []string{"新闻"}, words)
}

func TestSearchEngineIterStopsEarly(t *testing.T) {
	w := newFakeWeb(t)
	w.search = numberedHits(10)
	c := NewSearchEngineCrawler(w.searchOptions(), testDeps())

	n := 0
	for range c.IterData(context.Background(), "成都", 30) {
		n++
		if n == 12 {
			break
		}
	}
	assert.Equal(t, 12, n)
	_, pages := w.requests()
	assert.Equal(t, []int{0, 1}, pages)
}

func TestSearchEngineTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "blocked", http.StatusForbidden)
	}))
	defer srv.Close()

	opts := defaultSearchEngineOptions()
	opts.BaseURL = srv.URL + "/s"
	res := NewSearchEngineCrawler(opts, testDeps()).FetchData(context.Background(), "成都", 10)
	assert.Empty(t, res.Items)
	assert.Equal(t, StatusFailed, res.Status())
	require.Len(t, res.Failures, 1)
	assert.True(t, failure.Is(res.Failures[0], failure.KindTransport))
}

func TestParseSearchResultsFallbacks(t *testing.T) {
	page := `<html><body>
<div class="c-container"><h3><a href="https://a.example.com/1">备用容器里的新闻标题</a></h3>
<div class="c-span-last">备用摘要区域里的文字内容</div><span class="c-color-gray">澎湃新闻</span></div>
<div class="c-container"><h3><a href="https://a.example.com/2">没有摘要也没有来源的标题</a></h3></div>
<div class="c-container"><p>没有标题的块</p></div>
</body></html>`
	doc, err := goqueryDoc(page)
	require.NoError(t, err)

	items := parseSearchResults(doc)
	require.Len(t, items, 2)
	assert.Equal(t, "备用摘要区域里的文字内容", items[0].Summary)
	assert.Equal(t, "澎湃新闻", items[0].Source)
	assert.Equal(t, news.NoSummary, items[1].Summary)
	assert.Equal(t, news.UnknownSource, items[1].Source)
	assert.Empty(t, items[1].Cover)
}

func TestChannelListSupplementsWithSiteSearch(t *testing.T) {
	w := newFakeWeb(t)
	w.mux.HandleFunc("/scyw.htm", func(rw http.ResponseWriter, r *http.Request) {
		writeHTML(rw, `<html><body><div class="scpd_page_box"><ul>
<li><dl><dt><a href="/20240101/abc.htm">成都发布城市更新规划</a></dt><dd>成都市政府发布了新的城市更新规划方案</dd></dl><img class="scpd_auto_pic" src="//img.news.cn/a.jpg"></li>
<li><dl><dt><a href="https://sc.news.cn/b.htm">绵阳举办科技博览会</a></dt><dd>绵阳科技城举办第十届科技博览会</dd></dl></li>
</ul></div></body></html>`)
	})
	w.search = func(word string, page int) []searchHit {
		prefix := "新华社"
		if strings.Contains(word, "site:news.cn") {
			prefix = "新华网"
		}
		return []searchHit{
			{Title: prefix + "站内搜索结果一", URL: "https://www.news.cn/1.htm"},
			{Title: prefix + "站内搜索结果二", URL: "https://www.news.cn/2.htm"},
		}
	}

	opts := defaultChannelListOptions()
	opts.ListURL = w.URL + "/scyw.htm"
	opts.Search = w.searchOptions()
	c := NewChannelListCrawler(opts, testDeps())

	res := c.FetchData(context.Background(), "成都", 30)
	require.Len(t, res.Items, 5)
	assertNormalized(t, res.Items)

	first := res.Items[0]
	assert.Equal(t, "成都发布城市更新规划", first.Title)
	assert.Equal(t, w.URL+"/20240101/abc.htm", first.OriginalURL)
	assert.Equal(t, "https://img.news.cn/a.jpg", first.Cover)
	assert.Equal(t, "新华网", first.Source)

	words, _ := w.requests()
	assert.Equal(t, []string{"site:news.cn 成都", "site:xinhuanet.com 成都"}, words)
}

func TestChannelListMaxCount(t *testing.T) {
	w := newFakeWeb(t)
	w.mux.HandleFunc("/scyw.htm", func(rw http.ResponseWriter, r *http.Request) {
		writeHTML(rw, `<ul><li><a href="/1.htm">第一条频道新闻</a></li><li><a href="/2.htm">第二条频道新闻</a></li></ul>`)
	})
	opts := defaultChannelListOptions()
	opts.ListURL = w.URL + "/scyw.htm"
	opts.Search = w.searchOptions()

	res := NewChannelListCrawler(opts, testDeps()).FetchData(context.Background(), "", 1)
	require.Len(t, res.Items, 1)
	words, _ := w.requests()
	assert.Empty(t, words)
}

func feedHandler(t *testing.T, pages map[int][]map[string]any) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "153", r.URL.Query().Get("pageid"))
		page, _ := strconv.Atoi(r.URL.Query().Get("page"))
		body, _ := json.Marshal(map[string]any{"result": map[string]any{"data": pages[page]}})
		rw.Header().Set("Content-Type", "application/json")
		_, _ = rw.Write(body)
	}
}

func newTestFeed(t *testing.T, w *fakeWeb) Crawler {
	t.Helper()
	c, err := newFeedAPIFactory(map[string]any{
		"api":    w.URL + "/feed",
		"pageid": "153",
		"search": map[string]any{
			"base_url":     w.URL + "/s",
			"delay_min_ms": 0,
			"delay_max_ms": 0,
		},
	}, testDeps())
	require.NoError(t, err)
	return c
}

func TestFeedAPIKeywordFilter(t *testing.T) {
	w := newFakeWeb(t)
	w.mux.HandleFunc("/feed", feedHandler(t, map[int][]map[string]any{
		1: {
			{"title": "成都地铁新线开通运营", "intro": "今天上午新线正式开通", "url": "https://news.sina.com.cn/1.html",
				"media_name": "成都商报", "images": []map[string]string{{"img_url": "https://n.sinaimg.cn/a.jpg"}}},
			{"title": "重庆火锅文化节开幕", "intro": "活动持续三天", "url": "https://news.sina.com.cn/2.html", "images": ""},
			{"title": "四川省举办文化活动", "intro": "活动在成都举行，吸引大量市民", "url": "https://news.sina.com.cn/3.html", "images": ""},
		},
	}))

	res := newTestFeed(t, w).FetchData(context.Background(), "成都", 30)
	require.Len(t, res.Items, 2)
	assertNormalized(t, res.Items)
	assert.Equal(t, "成都商报", res.Items[0].Source)
	assert.Equal(t, "https://n.sinaimg.cn/a.jpg", res.Items[0].Cover)
	assert.Equal(t, "新浪网", res.Items[1].Source)
	assert.Equal(t, news.PlaceholderCover, res.Items[1].Cover)

	words, _ := w.requests()
	assert.Empty(t, words)
}

func TestFeedAPIFallsBackToSiteSearch(t *testing.T) {
	w := newFakeWeb(t)
	w.mux.HandleFunc("/feed", feedHandler(t, map[int][]map[string]any{
		1: {{"title": "重庆火锅文化节开幕", "intro": "活动持续三天", "url": "https://news.sina.com.cn/2.html"}},
	}))
	w.search = numberedHits(3)

	res := newTestFeed(t, w).FetchData(context.Background(), "拉萨", 30)
	assert.Len(t, res.Items, 3)
	words, _ := w.requests()
	assert.Equal(t, []string{"site:sina.com.cn 拉萨"}, words)
}

func TestLinkScanResolvesRedirects(t *testing.T) {
	w := newFakeWeb(t)
	w.mux.HandleFunc("/so", func(rw http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "成都", r.URL.Query().Get("q"))
		writeHTML(rw, `<html><body>
<a href="https://news.ifeng.com/c/1">凤凰网独家报道成都新闻</a>
<a href="https://news.ifeng.com/c/2">短标题</a>
<a href="https://other.example.com/x">其他网站的很长链接文字</a>
</body></html>`)
	})
	w.mux.HandleFunc("/baidu.com/link", func(rw http.ResponseWriter, r *http.Request) {
		http.Redirect(rw, r, "/ifeng.com/c/"+r.URL.Query().Get("id"), http.StatusFound)
	})
	w.mux.HandleFunc("/ifeng.com/c/", func(rw http.ResponseWriter, r *http.Request) {
		writeHTML(rw, "<html><body>article</body></html>")
	})
	w.search = func(word string, page int) []searchHit {
		hits := make([]searchHit, 0, 3)
		for i := 1; i <= 3; i++ {
			hits = append(hits, searchHit{
				Title: fmt.Sprintf("凤凰网搜索补充结果%d", i),
				URL:   fmt.Sprintf("%s/baidu.com/link?id=%d", w.URL, i),
			})
		}
		return hits
	}

	opts := defaultLinkScanOptions()
	opts.SearchPage = w.URL + "/so?q="
	opts.Search = w.searchOptions()
	c := NewLinkScanCrawler(opts, testDeps())

	res := c.FetchData(context.Background(), "成都", 3)
	require.Len(t, res.Items, 3)
	assertNormalized(t, res.Items)
	assert.Equal(t, "凤凰网独家报道成都新闻", res.Items[0].Title)
	assert.Equal(t, news.NoSummary, res.Items[0].Summary)
	for _, it := range res.Items[1:] {
		assert.Contains(t, it.OriginalURL, "/ifeng.com/c/")
		assert.Equal(t, "凤凰网", it.Source)
	}

	words, _ := w.requests()
	assert.Equal(t, []string{"site:ifeng.com 成都"}, words)
}

func TestLinkScanEnoughWithoutSearch(t *testing.T) {
	w := newFakeWeb(t)
	w.mux.HandleFunc("/", func(rw http.ResponseWriter, r *http.Request) {
		writeHTML(rw, `<a href="//news.ifeng.com/c/a">第一条频道页新闻链接</a><a href="//news.ifeng.com/c/b">第二条频道页新闻链接</a>`)
	})
	opts := defaultLinkScanOptions()
	opts.ChannelURL = w.URL + "/"
	opts.Search = w.searchOptions()

	res := NewLinkScanCrawler(opts, testDeps()).FetchData(context.Background(), "", 2)
	require.Len(t, res.Items, 2)
	assert.Equal(t, "https://news.ifeng.com/c/a", res.Items[0].OriginalURL)
	words, _ := w.requests()
	assert.Empty(t, words)
}

func TestResultStatus(t *testing.T) {
	item := []news.Item{{Title: "t"}}
	errs := []error{failure.Empty("x", "")}
	tests := []struct {
		name string
		res  Result
		want Status
	}{
		{"ok", Result{Items: item}, StatusOK},
		{"partial", Result{Items: item, Failures: errs}, StatusPartial},
		{"failed", Result{Failures: errs}, StatusFailed},
		{"empty", Result{}, StatusEmpty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.res.Status())
		})
	}
}

func TestAbsURL(t *testing.T) {
	assert.Equal(t, "https://sc.news.cn/a.htm", absURL("https://sc.news.cn/scyw.htm", "/a.htm"))
	assert.Equal(t, "https://img.news.cn/x.jpg", absURL("https://sc.news.cn/scyw.htm", "//img.news.cn/x.jpg"))
	assert.Equal(t, "http://a.com/b", absURL("https://sc.news.cn/", "http://a.com/b"))
	assert.Equal(t, "", absURL("https://sc.news.cn/", " "))
}
