// Package stream 把爬虫的惰性采集过程转换成 SSE 事件序列。
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/LJTian/NewsDigest/internal/collector"
	"github.com/LJTian/NewsDigest/internal/news"
)

// DefaultPace 两条之间的默认间隔
const DefaultPace = 350 * time.Millisecond

// 事件名
const (
	EventStatus   = "status"
	EventItem     = "item"
	EventProgress = "progress"
	EventDone     = "done"
	EventError    = "error"
)

// Event 一帧 SSE 数据，Data 为原始文本负载
type Event struct {
	Name string
	Data string
}

// Request 一次流式采集的参数；Pace 小于 0 按 0 处理
type Request struct {
	Keyword  string
	MaxCount int
	Pace     time.Duration
}

// PaceFromMillis 未提供时取默认值，负数按 0
func PaceFromMillis(ms int, provided bool) time.Duration {
	if !provided {
		return DefaultPace
	}
	if ms < 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}

// Progress 已发送条数对应的百分比，完成前最多 99
func Progress(sent, maxCount int) int {
	if maxCount <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(sent) / float64(maxCount)))
	return max(0, min(99, p))
}

// Run 依次发出：开始时一次 status；每条 item(JSON) → progress → status(标题)；结束时 done(条数)。
// 采集过程中 panic 会转成一次 error 事件；emit 失败（客户端断开）时直接停止。
// 返回已发送的条目数
func Run(ctx context.Context, c collector.Crawler, req Request, emit func(Event) error) (sent int, err error) {
	maxCount := req.MaxCount
	if maxCount <= 0 {
		maxCount = collector.DefaultMaxCount
	}
	pace := max(req.Pace, 0)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream panic: %v", r)
			_ = emit(Event{Name: EventError, Data: err.Error()})
		}
	}()

	kw := strings.TrimSpace(req.Keyword)
	start := fmt.Sprintf("开始采集 %s", c.Name())
	if kw != "" {
		start += "，关键词：" + kw
	}
	if err := emit(Event{Name: EventStatus, Data: start}); err != nil {
		return 0, err
	}

	for it := range c.IterData(ctx, kw, maxCount) {
		sent++
		if err := emitItem(emit, it, sent, maxCount); err != nil {
			return sent, err
		}
		if sent >= maxCount {
			break
		}
		if !wait(ctx, pace) {
			return sent, ctx.Err()
		}
	}

	if err := emit(Event{Name: EventDone, Data: strconv.Itoa(sent)}); err != nil {
		return sent, err
	}
	return sent, nil
}

func emitItem(emit func(Event) error, it news.Item, sent, maxCount int) error {
	payload, err := json.Marshal(it)
	if err != nil {
		return err
	}
	if err := emit(Event{Name: EventItem, Data: string(payload)}); err != nil {
		return err
	}
	if err := emit(Event{Name: EventProgress, Data: strconv.Itoa(Progress(sent, maxCount))}); err != nil {
		return err
	}
	return emit(Event{Name: EventStatus, Data: "已获取：" + it.Title})
}

func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// SetHeaders 写 SSE 响应头并关闭反向代理缓冲
func SetHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream; charset=utf-8")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
}

// WriteSSE 按 "event: <name>\ndata: <payload>\n\n" 编码一帧；多行负载拆成多条 data 行
func WriteSSE(w io.Writer, ev Event) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", ev.Name); err != nil {
		return fmt.Errorf("write event name: %w", err)
	}
	for _, line := range strings.Split(ev.Data, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", line); err != nil {
			return fmt.Errorf("write event data: %w", err)
		}
	}
	if _, err := io.WriteString(w, "\n"); err != nil {
		return fmt.Errorf("write event terminator: %w", err)
	}
	return nil
}
