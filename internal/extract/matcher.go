package extract

import (
	"context"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

// Record 需要深度抽取的一条新闻记录
type Record struct {
	ID     string
	Source string
	URL    string
}

// Matcher 为记录挑选抽取规则
type Matcher struct {
	rules  RuleStore
	logger *zap.Logger
}

func NewMatcher(rules RuleStore, logger *zap.Logger) *Matcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Matcher{rules: rules, logger: logger}
}

// Match 先按来源名包含站点名（id 升序，命中即返回），再按域名扫描（后命中者覆盖先命中者）。
// 命中后若规则域名与记录的 host 不同，则把 host 写回规则
func (m *Matcher) Match(ctx context.Context, rec Record) (*Rule, bool) {
	rules, err := m.rules.ListRules(ctx)
	if err != nil {
		m.logger.Warn("list extraction rules failed", zap.Error(err))
		return nil, false
	}
	host := hostOf(rec.URL)

	var matched *Rule
	if src := strings.TrimSpace(rec.Source); src != "" {
		for i := range rules {
			if rules[i].SiteName != "" && strings.Contains(src, rules[i].SiteName) {
				matched = &rules[i]
				break
			}
		}
	}
	if matched == nil && host != "" {
		for i := range rules {
			d := strings.ToLower(strings.TrimSpace(rules[i].SiteDomain))
			if d == "" {
				continue
			}
			if strings.Contains(host, d) || strings.HasSuffix(host, d) {
				matched = &rules[i]
			}
		}
	}
	if matched == nil {
		return nil, false
	}

	rule := *matched
	if host != "" && !strings.EqualFold(rule.SiteDomain, host) {
		healed, err := PatchRule(ctx, m.rules, rule, func(r *Rule) bool {
			if strings.EqualFold(r.SiteDomain, host) {
				return false
			}
			r.SiteDomain = host
			return true
		})
		if err != nil {
			m.logger.Warn("correct rule domain failed",
				zap.Uint("rule_id", rule.ID), zap.String("host", host), zap.Error(err))
		} else {
			m.logger.Info("rule domain corrected",
				zap.Uint("rule_id", rule.ID), zap.String("from", rule.SiteDomain), zap.String("to", host))
			rule = healed
		}
	}
	return &rule, true
}

func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
