// Package flagcodec converts region flag values to and from the text stored
// in the region_flag table. Values are YAML documents so lists, maps and
// scalars keep their structure across a save and load.
package flagcodec

import (
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// Marshal encodes a flag value. The document is stored exactly as yaml.v2
// writes it: block scalars depend on the final line break to keep the
// trailing newlines of a string.
func Marshal(value interface{}) (string, error) {
	out, err := yaml.Marshal(value)
	if err != nil {
		return "", errors.Wrap(err, "marshal flag value")
	}
	return string(out), nil
}

// Unmarshal decodes a stored flag value. Text that is not valid YAML, or that
// decodes to nothing, is returned unchanged as a string so that no stored
// value is dropped. The second result reports whether decoding succeeded.
func Unmarshal(raw string) (interface{}, bool) {
	var v interface{}
	if err := yaml.Unmarshal([]byte(raw), &v); err != nil || v == nil {
		return raw, false
	}
	return normalize(v), true
}

// normalize rewrites the map[interface{}]interface{} values produced by
// yaml.v2 into map[string]interface{}.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
