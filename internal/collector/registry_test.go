package collector

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/NewsDigest/internal/failure"
	"github.com/LJTian/NewsDigest/internal/news"
)

func TestRegistryBuiltinsAndAliases(t *testing.T) {
	r := NewRegistry(testDeps())
	assert.Equal(t, []string{"baidu", "ifeng", "sina", "xinhua"}, r.Keys())

	tests := map[string]string{
		"baidu":     "baidu",
		" Baidu ":   "baidu",
		"百度":        "baidu",
		"新华网":       "xinhua",
		"news.cn":   "xinhua",
		"xinhuanet": "xinhua",
		"新浪":        "sina",
		"新浪网":       "sina",
		"凤凰":        "ifeng",
		"凤凰网":       "ifeng",
	}
	for key, want := range tests {
		c, err := r.Create(key, nil)
		require.NoError(t, err, key)
		assert.Equal(t, want, c.Name(), key)
	}
	assert.Equal(t, "新浪网", r.DisplayName("新浪"))
}

func TestRegistryUnknownKey(t *testing.T) {
	r := NewRegistry(testDeps())
	_, err := r.Create("toutiao", nil)
	require.Error(t, err)
	assert.Equal(t, failure.KindConfiguration, failure.KindOf(err))
}

func TestRegistryBadOptions(t *testing.T) {
	r := NewRegistry(testDeps())
	_, err := r.Create("sina", map[string]any{"pageid": "abc"})
	require.Error(t, err)
	assert.Equal(t, failure.KindConfiguration, failure.KindOf(err))
}

func TestRegistryOptionsWeaklyTyped(t *testing.T) {
	r := NewRegistry(testDeps())
	c, err := r.Create("sina", map[string]any{"pageid": "99", "lid": 7})
	require.NoError(t, err)
	feed := c.(*FeedAPICrawler)
	assert.Equal(t, 99, feed.opts.PageID)
	assert.Equal(t, 7, feed.opts.LID)
	assert.Equal(t, "https://feed.mix.sina.com.cn/api/roll/get", feed.opts.API)
}

type stubCrawler struct{}

func (stubCrawler) Name() string { return "stub" }
func (stubCrawler) FetchData(context.Context, string, int) Result {
	return Result{}
}
func (stubCrawler) IterData(context.Context, string, int) iter.Seq[news.Item] {
	return func(func(news.Item) bool) {}
}
func (stubCrawler) ToDisplaySchema(items []news.Item) []news.Item { return items }

func TestRegistryRegisterOverride(t *testing.T) {
	r := NewRegistry(testDeps())
	r.Register("stub", "桩", func(map[string]any, Deps) (Crawler, error) { return stubCrawler{}, nil })
	r.Alias("测试", "stub")

	c, err := r.Create("测试", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", c.Name())
	key, ok := r.Resolve("测试")
	assert.True(t, ok)
	assert.Equal(t, "stub", key)
}
