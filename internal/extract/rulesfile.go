package extract

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRulesFile 读取 YAML 格式的规则种子文件，缺少 site_domain 的条目报错
func LoadRulesFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRules(data)
}

func ParseRules(data []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	for i, r := range f.Rules {
		if strings.TrimSpace(r.SiteDomain) == "" {
			return nil, fmt.Errorf("rule #%d (%s): site_domain is required", i+1, r.SiteName)
		}
		f.Rules[i].SiteDomain = strings.ToLower(strings.TrimSpace(r.SiteDomain))
	}
	return f.Rules, nil
}
