package sources

import (
	stdjson "encoding/json"
	"strings"
)

// flexValue is a JSON scalar that providers send inconsistently as either
// a string or a number (ids, timestamps, error codes). It decodes both
// without failing the surrounding envelope.
type flexValue string

func (f *flexValue) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := stdjson.Unmarshal(data, &v); err != nil {
			return err
		}
		*f = flexValue(v)
		return nil
	}
	*f = flexValue(s)
	return nil
}

func (f flexValue) String() string {
	return string(f)
}
