package collector

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/LJTian/NewsDigest/internal/failure"
)

// decodeOptions 把数据源的 config_json 解到已填好默认值的 target 上，未出现的键保持默认
func decodeOptions(key string, raw map[string]any, target any) error {
	if len(raw) == 0 {
		return nil
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           target,
		TagName:          "mapstructure",
	})
	if err != nil {
		return failure.Configuration("collector.options", err)
	}
	if err := dec.Decode(raw); err != nil {
		return failure.Configuration("collector.options", fmt.Errorf("%s: %w", key, err))
	}
	return nil
}
