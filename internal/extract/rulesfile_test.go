package extract

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRulesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rules:
  - site_name: 新华网
    site_domain: " News.CN "
    title_selector: "h1"
    content_selector: "#detail"
  - site_name: 凤凰网
    site_domain: ifeng.com
    content_selector: "//div[@class='main_content']//p"
    request_headers:
      Referer: https://www.ifeng.com/
`), 0o644))

	rules, err := LoadRulesFile(path)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "news.cn", rules[0].SiteDomain)
	assert.Equal(t, "#detail", rules[0].ContentSelector)
	assert.Equal(t, "https://www.ifeng.com/", rules[1].RequestHeaders["Referer"])
	assert.True(t, isXPath(rules[1].ContentSelector))
}

func TestParseRulesRequiresDomain(t *testing.T) {
	_, err := ParseRules([]byte("rules:\n  - site_name: 无域名\n"))
	assert.ErrorContains(t, err, "site_domain is required")

	_, err = LoadRulesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
