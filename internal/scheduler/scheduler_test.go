package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/news"
	"github.com/LJTian/NewsDigest/internal/service"
)

type fakeRunner struct {
	mu    sync.Mutex
	runs  []string
	saved map[string]int
}

func (f *fakeRunner) RunBatch(_ context.Context, key, keyword string, maxCount int) (service.Batch, error) {
	f.mu.Lock()
	f.runs = append(f.runs, key+":"+keyword)
	f.mu.Unlock()
	switch key {
	case "broken":
		return service.Batch{}, errors.New("unknown source")
	case "empty":
		return service.Batch{Source: key, Status: collector.StatusEmpty}, nil
	}
	items := make([]news.Item, maxCount)
	for i := range items {
		items[i] = news.Item{Title: "title", Source: key}
	}
	return service.Batch{Source: key, Status: collector.StatusOK, Items: items}, nil
}

func (f *fakeRunner) SaveBatch(_ context.Context, keyword string, items []news.Item) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = map[string]int{}
	}
	f.saved[items[0].Source+":"+keyword] += len(items)
	return len(items), nil
}

func TestRunOnceRunsEveryJob(t *testing.T) {
	r := &fakeRunner{}
	jobs := config.ParseCrawlJobs("baidu:成都;sina:;broken:x;empty:")
	s, err := New("*/30 * * * *", jobs, r, 3, nil)
	require.NoError(t, err)

	s.RunOnce()

	sort.Strings(r.runs)
	assert.Equal(t, []string{"baidu:成都", "broken:x", "empty:", "sina:"}, r.runs)
	assert.Equal(t, map[string]int{"baidu:成都": 3, "sina:": 3}, r.saved)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("not a cron", nil, &fakeRunner{}, 3, nil)
	assert.Error(t, err)
}
