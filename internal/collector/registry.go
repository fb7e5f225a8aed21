package collector

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/LJTian/NewsDigest/internal/failure"
)

// Factory 按数据源配置创建爬虫
type Factory func(opts map[string]any, deps Deps) (Crawler, error)

type entry struct {
	factory     Factory
	displayName string
}

// Registry 数据源 key 到爬虫的映射；进程启动时创建一次，显式传给使用方
type Registry struct {
	mu      sync.RWMutex
	entries map[string]entry
	aliases map[string]string
	deps    Deps
}

// NewRegistry 创建注册表并登记内置的四个数据源及其别名
func NewRegistry(deps Deps) *Registry {
	r := &Registry{
		entries: make(map[string]entry),
		aliases: make(map[string]string),
		deps:    deps.withDefaults(),
	}
	r.Register("baidu", "百度新闻", newSearchEngineFactory)
	r.Register("xinhua", "新华网", newChannelListFactory)
	r.Register("sina", "新浪网", newFeedAPIFactory)
	r.Register("ifeng", "凤凰网", newLinkScanFactory)

	for alias, key := range map[string]string{
		"百度":        "baidu",
		"新华":        "xinhua",
		"新华网":       "xinhua",
		"news.cn":   "xinhua",
		"xinhuanet": "xinhua",
		"新浪":        "sina",
		"新浪网":       "sina",
		"凤凰":        "ifeng",
		"凤凰网":       "ifeng",
	} {
		r.Alias(alias, key)
	}
	return r
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Register 登记或覆盖一个数据源
func (r *Registry) Register(key, displayName string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalizeKey(key)] = entry{factory: f, displayName: displayName}
}

// Alias 为已有 key 增加别名
func (r *Registry) Alias(alias, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[normalizeKey(alias)] = normalizeKey(key)
}

// Resolve 返回别名对应的规范 key
func (r *Registry) Resolve(key string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(key)
}

func (r *Registry) resolveLocked(key string) (string, bool) {
	k := normalizeKey(key)
	if _, ok := r.entries[k]; ok {
		return k, true
	}
	if target, ok := r.aliases[k]; ok {
		if _, ok := r.entries[target]; ok {
			return target, true
		}
	}
	return "", false
}

// Create 未登记的 key 返回 KindConfiguration 错误，这是核心里唯一直接失败的地方
func (r *Registry) Create(key string, opts map[string]any) (Crawler, error) {
	r.mu.RLock()
	k, ok := r.resolveLocked(key)
	e := r.entries[k]
	deps := r.deps
	r.mu.RUnlock()

	if !ok {
		return nil, failure.Configuration("collector.create", fmt.Errorf("unregistered crawler key %q", key))
	}
	return e.factory(opts, deps)
}

// DisplayName 规范 key 或别名对应的展示名，未登记时返回 key 本身
func (r *Registry) DisplayName(key string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if k, ok := r.resolveLocked(key); ok {
		return r.entries[k].displayName
	}
	return key
}

// Keys 已登记的规范 key，按字典序
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
