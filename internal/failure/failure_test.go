package failure

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"plain error treated as transport", base, KindTransport},
		{"configuration", Configuration("registry.create", base), KindConfiguration},
		{"wrapped parse", fmt.Errorf("outer: %w", Parse("extract", "https://a.com", base)), KindParse},
		{"empty", Empty("extract", "https://a.com"), KindEmpty},
		{"status", Status("fetch", "https://a.com", 404), KindTransport},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, KindOf(c.err))
		})
	}
}

func TestErrorMessageAndUnwrap(t *testing.T) {
	base := errors.New("connection refused")
	err := Transport("crawl.page", "https://www.baidu.com/s", base)

	assert.Equal(t, "crawl.page: transport (https://www.baidu.com/s): connection refused", err.Error())
	assert.ErrorIs(t, err, base)
	assert.True(t, Is(err, KindTransport))
	assert.False(t, Is(err, KindParse))
}
