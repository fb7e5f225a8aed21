// Package charset 把来自外部网站的原始字节还原成 UTF-8 文本。
//
// 解析顺序：HTTP Content-Type 声明 → 前 8KB 内的 charset= 声明 → chardet 统计探测
// → 固定试探列表 utf-8/gb18030/gbk/gb2312/big5 → 强制 UTF-8（非法字节替换为 U+FFFD）。
// 任何一步失败都只会进入下一步，Resolve 永远返回合法 UTF-8，不返回错误。
package charset

import (
	"bytes"
	"mime"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/saintfish/chardet"
	htmlcharset "golang.org/x/net/html/charset"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

const sniffLen = 8192

// 统计探测的最低可信度，低于该值直接进入试探列表
const minDetectConfidence = 50

// TrialOrder 无可信声明时依次尝试的编码
var TrialOrder = []string{"utf-8", "gb18030", "gbk", "gb2312", "big5"}

var metaCharsetRe = regexp.MustCompile(`(?i)charset\s*=\s*["']?\s*([a-z0-9_\-]+)`)

// chardet 的命名与 WHATWG 标签不完全一致
var detectorAliases = map[string]string{
	"gb-18030": "gb18030",
	"utf8":     "utf-8",
}

// Resolve 把 raw 解码为 UTF-8 字符串
func Resolve(raw []byte, contentType string) string {
	text, _ := resolve(raw, contentType)
	return text
}

// Label 返回 Resolve 最终采用的编码名；强制兜底时为 "utf-8(lossy)"
func Label(raw []byte, contentType string) string {
	_, label := resolve(raw, contentType)
	return label
}

func resolve(raw []byte, contentType string) (string, string) {
	if len(raw) == 0 {
		return "", "utf-8"
	}

	if label := fromContentType(contentType); label != "" {
		if s, ok := decodeStrict(raw, label); ok {
			return s, label
		}
	}

	if label := fromMeta(raw); label != "" {
		if s, ok := decodeStrict(raw, label); ok {
			return s, label
		}
	}

	if label := detect(raw); label != "" {
		if s, ok := decodeStrict(raw, label); ok {
			return s, label
		}
	}

	for _, label := range TrialOrder {
		if s, ok := decodeStrict(raw, label); ok {
			return s, label
		}
	}

	return strings.ToValidUTF8(string(raw), "\uFFFD"), "utf-8(lossy)"
}

func fromContentType(ct string) string {
	ct = strings.TrimSpace(ct)
	if ct == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(ct); err == nil {
		if cs := params["charset"]; cs != "" {
			return normalizeLabel(cs)
		}
		return ""
	}
	// 部分站点返回的 Content-Type 不规范，退回正则
	if m := metaCharsetRe.FindStringSubmatch(ct); len(m) == 2 {
		return normalizeLabel(m[1])
	}
	return ""
}

func fromMeta(raw []byte) string {
	head := raw
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	m := metaCharsetRe.FindSubmatch(head)
	if len(m) != 2 {
		return ""
	}
	return normalizeLabel(string(m[1]))
}

func detect(raw []byte) string {
	res, err := chardet.NewHtmlDetector().DetectBest(raw)
	if err != nil || res == nil || res.Confidence < minDetectConfidence {
		return ""
	}
	label := normalizeLabel(res.Charset)
	// 单字节西文编码能“成功”解码任意字节，交给试探列表处理中文页面
	if isSingleByteWestern(label) {
		return ""
	}
	return label
}

func isSingleByteWestern(label string) bool {
	return strings.HasPrefix(label, "iso-8859") || strings.HasPrefix(label, "windows-125")
}

func normalizeLabel(label string) string {
	label = strings.ToLower(strings.Trim(strings.TrimSpace(label), `"'`))
	if alias, ok := detectorAliases[label]; ok {
		return alias
	}
	return label
}

// decodeStrict 解码出现错误或替换字符即视为失败
func decodeStrict(raw []byte, label string) (string, bool) {
	if label == "utf-8" {
		body := bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))
		if !utf8.Valid(body) {
			return "", false
		}
		return string(body), true
	}

	enc := lookup(label)
	if enc == nil {
		return "", false
	}
	out, err := enc.NewDecoder().Bytes(raw)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) || !utf8.Valid(out) {
		return "", false
	}
	return string(out), true
}

func lookup(label string) encoding.Encoding {
	switch label {
	case "gb18030":
		return simplifiedchinese.GB18030
	case "gbk", "gb2312", "cp936", "x-gbk":
		return simplifiedchinese.GBK
	case "big5", "big5-hkscs":
		return traditionalchinese.Big5
	}
	enc, _ := htmlcharset.Lookup(label)
	return enc
}
