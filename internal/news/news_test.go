package news

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	assert.Equal(t, "成都 新闻 今日", Sanitize("  成都\u200b \n\t新闻\u200d\r\n今日  "))
	assert.Equal(t, "", Sanitize(""))
	assert.Equal(t, "", Sanitize("\u200b\u200c"))
}

func TestIsNoise(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		minLen int
		want   bool
	}{
		{"empty", "", MinTitleLen, true},
		{"shorter than title min", "成都", MinTitleLen, true},
		{"shorter than body min", "成都新闻", MinBodyLen, true},
		{"twenty cjk chars", strings.Repeat("新", 20), MinTitleLen, false},
		{"twenty cjk chars body", strings.Repeat("闻", 20), MinBodyLen, false},
		{"mostly punctuation", "|| >> << -- ## ab", MinTitleLen, true},
		{"plain english", "Breaking news today", MinBodyLen, false},
		{"zero width padding does not count", "\u200b\u200b成都\u200b", MinTitleLen, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsNoise(c.text, c.minLen))
		})
	}
}

func TestDedupeIdempotent(t *testing.T) {
	items := []Item{
		{Title: "Hello World"},
		{Title: "成都新闻"},
		{Title: "hello world"},
		{Title: "HELLO WORLD"},
		{Title: "另一条"},
		{Title: "成都新闻"},
	}
	once := Dedupe(items)
	require.Len(t, once, 3)
	assert.Equal(t, "Hello World", once[0].Title)
	assert.Equal(t, "成都新闻", once[1].Title)
	assert.Equal(t, "另一条", once[2].Title)
	assert.Equal(t, once, Dedupe(once))
}

func TestEnsureCover(t *testing.T) {
	assert.Equal(t, PlaceholderCover, EnsureCover(""))
	assert.Equal(t, PlaceholderCover, EnsureCover("//img.example.com/a.png"))
	assert.Equal(t, PlaceholderCover, EnsureCover("data:image/png;base64,xxx"))
	assert.Equal(t, "https://x/y.png", EnsureCover("https://x/y.png"))
	assert.Equal(t, "http://x/y.png", EnsureCover(" http://x/y.png "))
}

func TestCleanerClean(t *testing.T) {
	c := Cleaner{DefaultSource: "新华网"}
	in := []Item{
		{Title: "  成都发布\u200b最新规划  ", Summary: "--", OriginalURL: "/relative", Cover: ""},
		{Title: "成都发布最新规划", Summary: "重复标题应被去除"},
		{Title: "短", Summary: "标题过短"},
		{Title: "四川经济稳步增长", Summary: "上半年地区生产总值同比增长", OriginalURL: "https://sc.news.cn/a.htm", Cover: "https://sc.news.cn/a.jpg", Source: "  四川日报 "},
	}

	out := c.Clean(in)
	require.Len(t, out, 2)

	assert.Equal(t, "成都发布最新规划", out[0].Title)
	assert.Equal(t, NoSummary, out[0].Summary)
	assert.Equal(t, "", out[0].OriginalURL)
	assert.Equal(t, PlaceholderCover, out[0].Cover)
	assert.Equal(t, "新华网", out[0].Source)

	assert.Equal(t, "四川日报", out[1].Source)
	assert.Equal(t, "https://sc.news.cn/a.jpg", out[1].Cover)
	for _, it := range out {
		assert.True(t, it.Valid())
	}
}

func TestDisplaySchemaJSON(t *testing.T) {
	it := Item{Title: "标题标题", Summary: "摘要", OriginalURL: "https://a.com", Cover: PlaceholderCover, DeepContent: "正文", DeepCollected: true}
	b, err := json.Marshal(it.Display("默认来源"))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Len(t, m, 5)
	assert.Equal(t, "默认来源", m["source"])

	full, err := json.Marshal(it)
	require.NoError(t, err)
	assert.Contains(t, string(full), `"deep_collected":true`)
}
