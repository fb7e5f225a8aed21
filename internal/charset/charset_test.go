package charset

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
)

const sample = "成都市政府今天发布了最新的城市更新规划，市民关注的交通、教育和医疗问题均有回应。" +
	"根据规划，未来五年将新建学校和医院，并进一步完善地铁线路，提升城市公共服务水平。"

func gbkBytes(t *testing.T, s string) []byte {
	t.Helper()
	b, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte(s))
	require.NoError(t, err)
	return b
}

func TestResolveHeaderCharset(t *testing.T) {
	raw := gbkBytes(t, sample)
	assert.Equal(t, sample, Resolve(raw, "text/html; charset=GBK"))
	assert.Equal(t, "gbk", Label(raw, "text/html; charset=GBK"))
}

func TestResolveMetaCharset(t *testing.T) {
	page := `<html><head><meta http-equiv="Content-Type" content="text/html; charset=gb2312"></head><body>` + sample + `</body></html>`
	raw := gbkBytes(t, page)

	got := Resolve(raw, "text/html")
	assert.Contains(t, got, sample)
	assert.Equal(t, "gb2312", Label(raw, ""))
}

func TestResolveWrongHeaderFallsThrough(t *testing.T) {
	// 头部声明 utf-8，实际是 GBK：严格解码失败后继续后续步骤
	raw := gbkBytes(t, sample)
	got := Resolve(raw, "text/html; charset=utf-8")
	assert.Equal(t, sample, got)
}

func TestResolveNoHints(t *testing.T) {
	raw := gbkBytes(t, sample)
	assert.Equal(t, sample, Resolve(raw, ""))
}

func TestResolveBig5(t *testing.T) {
	const tw = "臺灣新聞報導今日天氣晴朗"
	raw, err := traditionalchinese.Big5.NewEncoder().Bytes([]byte(tw))
	require.NoError(t, err)
	assert.Equal(t, tw, Resolve(raw, "text/html; charset=big5"))
}

func TestResolveUTF8(t *testing.T) {
	assert.Equal(t, sample, Resolve([]byte(sample), ""))
	assert.Equal(t, "utf-8", Label([]byte(sample), ""))
	assert.Equal(t, "abc", Resolve([]byte("\xef\xbb\xbfabc"), ""))
	assert.Equal(t, "", Resolve(nil, "text/html; charset=gbk"))
}

func TestResolveAlwaysValidUTF8(t *testing.T) {
	inputs := [][]byte{
		{0xff, 0xfe, 0xfd},
		{0x80, 0x81, 0x82, 0x83, 0xff},
		{0xc3, 0x28, 0xa0, 0xa1},
		[]byte("plain ascii"),
		gbkBytes(t, sample),
		append([]byte("<meta charset=bogus-enc>"), 0xff, 0x00, 0xfe),
	}
	for _, raw := range inputs {
		for _, ct := range []string{"", "text/html; charset=utf-8", "text/html; charset=gb18030", "text/html; charset=big5", "garbage;;=", "text/html; charset=x-unknown"} {
			got := Resolve(raw, ct)
			assert.True(t, utf8.ValidString(got), "invalid utf-8 for %x with %q", raw, ct)
		}
	}
}

func TestDecodeStrictRejectsReplacement(t *testing.T) {
	_, ok := decodeStrict([]byte{0xff, 0xff}, "gbk")
	assert.False(t, ok)
	_, ok = decodeStrict([]byte("ok"), "no-such-charset")
	assert.False(t, ok)
}

func latin1(s string) string {
	rs := make([]rune, 0, len(s))
	for _, b := range []byte(s) {
		rs = append(rs, rune(b))
	}
	return string(rs)
}

func TestRepairMojibake(t *testing.T) {
	const title = "成都发布最新消息"
	assert.Equal(t, title, RepairMojibake(latin1(title)))

	// 正常文本保持不变
	assert.Equal(t, title, RepairMojibake(title))
	assert.Equal(t, "hello world", RepairMojibake("hello world"))
	// 只有一个乱码特征字符时不修复
	assert.Equal(t, "café", RepairMojibake("café"))
	assert.Equal(t, "", RepairMojibake(""))
}
