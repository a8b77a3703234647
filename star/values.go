package star

import (
	"fmt"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
)

// Values is a list of domain values with an exact, type-preserving JSON
// encoding. Each element is written as a tagged string ("s:CA", "i:1997",
// "f:2.5", "b:true", "n"), so int64 1 and string "1" stay distinct after a
// round trip through any codec.
type Values []any

// EncodeValue returns the tagged text form of a normalized value.
func EncodeValue(v any) string {
	switch x := Normalize(v).(type) {
	case NullValue:
		return "n"
	case string:
		return "s:" + x
	case int64:
		return "i:" + strconv.FormatInt(x, 10)
	case float64:
		return "f:" + strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return "b:" + strconv.FormatBool(x)
	default:
		return "s:" + fmt.Sprint(x)
	}
}

// DecodeValue parses the tagged text form produced by EncodeValue.
func DecodeValue(s string) (any, error) {
	if s == "n" {
		return Null, nil
	}
	tag, body, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("star: malformed value %q", s)
	}
	switch tag {
	case "s":
		return body, nil
	case "i":
		return strconv.ParseInt(body, 10, 64)
	case "f":
		return strconv.ParseFloat(body, 64)
	case "b":
		return strconv.ParseBool(body)
	default:
		return nil, fmt.Errorf("star: unknown value tag %q", tag)
	}
}

// MarshalJSON implements json.Marshaler.
func (vs Values) MarshalJSON() ([]byte, error) {
	if vs == nil {
		return []byte("null"), nil
	}
	enc := make([]string, len(vs))
	for i, v := range vs {
		enc[i] = EncodeValue(v)
	}
	return json.Marshal(enc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (vs *Values) UnmarshalJSON(data []byte) error {
	var enc []string
	if err := json.Unmarshal(data, &enc); err != nil {
		return err
	}
	if enc == nil {
		*vs = nil
		return nil
	}
	out := make(Values, len(enc))
	for i, s := range enc {
		v, err := DecodeValue(s)
		if err != nil {
			return err
		}
		out[i] = v
	}
	*vs = out
	return nil
}
