package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/LJTian/NewsDigest/internal/config"
	"github.com/LJTian/NewsDigest/internal/extract"
	"github.com/LJTian/NewsDigest/internal/logger"
	"github.com/LJTian/NewsDigest/internal/news"
)

// 需要脚本渲染的页面：用 headless 浏览器取渲染后的 HTML，再走通用抽取

type extractRequest struct {
	URL      string `json:"url"`
	MaxChars int    `json:"maxChars"`
}

type extractResponse struct {
	OK      bool   `json:"ok"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`
	Error   string `json:"error,omitempty"`
}

func main() {
	config.LoadEnvFiles()
	log := logger.Must(logger.Config{Level: os.Getenv("LOG_LEVEL"), File: os.Getenv("LOG_FILE")})
	defer func() { _ = log.Sync() }()

	// 创建浏览器执行器与顶层上下文，整个进程复用一个 headless 实例
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), chromedp.DefaultExecAllocatorOptions[:]...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	// 预热浏览器，避免首个请求耗时过长
	if err := chromedp.Run(browserCtx); err != nil {
		log.Warn("warmup chromedp failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/extract", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var req extractRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, extractResponse{Error: "invalid json"})
			return
		}
		if !news.IsHTTPURL(req.URL) {
			writeJSON(w, http.StatusBadRequest, extractResponse{Error: "http(s) url is required"})
			return
		}
		if req.MaxChars <= 0 || req.MaxChars > extract.MaxContentRunes {
			req.MaxChars = extract.MaxContentRunes
		}

		ctx, cancel := newTab(browserCtx, 20*time.Second)
		defer cancel()

		res, err := render(ctx, req.URL)
		if err != nil {
			log.Info("render failed", zap.String("url", req.URL), zap.Error(err))
			writeJSON(w, http.StatusOK, extractResponse{Error: err.Error()})
			return
		}
		if res.Empty() {
			writeJSON(w, http.StatusOK, extractResponse{Title: res.Title, Error: "empty content"})
			return
		}

		// rune 级截断，避免中文被截断成半个字符
		content := res.Content
		if rs := []rune(content); len(rs) > req.MaxChars {
			content = string(rs[:req.MaxChars]) + "…"
		}
		writeJSON(w, http.StatusOK, extractResponse{OK: true, Title: res.Title, Content: content})
	})

	addr := ":" + getEnv("PORT", "4000")
	log.Info("browser-scraper listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal("http server error", zap.Error(err))
	}
}

// newTab 每个请求开一个新标签页，并发请求之间互不覆盖
func newTab(browserCtx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	tabCtx, cancelTab := chromedp.NewContext(browserCtx)
	ctx, cancel := context.WithTimeout(tabCtx, timeout)
	return ctx, func() {
		cancel()
		cancelTab()
	}
}

// render 等 body 就绪后取整页 HTML 做通用抽取
func render(ctx context.Context, pageURL string) (extract.Result, error) {
	var html string
	err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.Generic(html), nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
