package extract

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var soupContentAttrRe = regexp.MustCompile(`(?i)content|article|detail`)

// soupExtract 结构化解析不可用时的宽松兜底：逐个 token 扫描，
// 标题取 <title>，正文取第一个 id/class 命中 content|article|detail 的元素，否则取 body 全文
func soupExtract(src string) Result {
	z := html.NewTokenizer(strings.NewReader(src))

	var (
		title     strings.Builder
		captured  strings.Builder
		body      strings.Builder
		inTitle   bool
		inBody    bool
		capDone   bool
		skipDepth int // script/style 内
		capDepth  int // 命中容器后的嵌套深度，0 表示未捕获
	)

	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			// EOF 或残缺文档：都用已读到的内容
			return finishSoup(title.String(), captured.String(), body.String(), capDone || capDepth > 0)

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			name := tok.Data
			switch name {
			case "script", "style", "noscript":
				if tt == html.StartTagToken {
					skipDepth++
				}
				continue
			case "title":
				inTitle = tt == html.StartTagToken
			case "body":
				inBody = true
			}
			if tt == html.SelfClosingTagToken || isVoid(name) {
				continue
			}
			if capDepth > 0 {
				capDepth++
				continue
			}
			if !capDone && hasContentAttr(tok) {
				capDepth = 1
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script", "style", "noscript":
				if skipDepth > 0 {
					skipDepth--
				}
				continue
			case "title":
				inTitle = false
			}
			if capDepth > 0 {
				capDepth--
				if capDepth == 0 {
					capDone = true
				}
			}

		case html.TextToken:
			if skipDepth > 0 {
				continue
			}
			text := string(z.Text())
			if inTitle {
				title.WriteString(text)
				continue
			}
			if capDepth > 0 {
				captured.WriteString(text)
			}
			if inBody {
				body.WriteString(text)
			}
		}
	}
}

func finishSoup(title, captured, body string, hit bool) Result {
	content := ""
	if hit {
		content = CleanText(captured)
	}
	if content == "" {
		content = CleanText(body)
	}
	return Result{Title: collapseSpaces(title), Content: content}
}

func hasContentAttr(tok html.Token) bool {
	for _, a := range tok.Attr {
		if (a.Key == "id" || a.Key == "class") && soupContentAttrRe.MatchString(a.Val) {
			return true
		}
	}
	return false
}

func isVoid(name string) bool {
	switch name {
	case "area", "base", "br", "col", "embed", "hr", "img", "input", "link", "meta", "source", "track", "wbr":
		return true
	}
	return false
}
