package charset

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// UTF-8 中文被当作 Latin-1 解码后常见的字符（E4-E9 前导字节等）
const mojibakeMarkers = "ÃÂäåæçèéï"

// RepairMojibake 修复“UTF-8 被按 Latin-1 解码”的短文本（标题、摘要）。
// 只有修复后 CJK 字符严格增多且原文含至少两个典型乱码字符时才采用，不要用于整页 HTML。
func RepairMojibake(s string) string {
	if s == "" || countMarkers(s) < 2 {
		return s
	}

	buf := make([]byte, 0, len(s))
	for _, r := range s {
		if r > 0xFF {
			return s
		}
		buf = append(buf, byte(r))
	}
	if !utf8.Valid(buf) {
		return s
	}

	fixed := string(buf)
	if countCJK(fixed) > countCJK(s) {
		return fixed
	}
	return s
}

func countMarkers(s string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(mojibakeMarkers, r) {
			n++
		}
	}
	return n
}

func countCJK(s string) int {
	n := 0
	for _, r := range s {
		if unicode.Is(unicode.Han, r) {
			n++
		}
	}
	return n
}
