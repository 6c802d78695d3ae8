package lookup

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/querykit/filterset/schema"
)

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

const dateLayout = "2006-01-02"

// Coerce converts raw text into a value of the given kind. An invalid kind
// passes the text through untouched so that unresolved fields stay
// inspectable until the query surfaces the configuration error.
func Coerce(kind schema.Kind, raw string) (any, error) {
	switch kind {
	case schema.KindInt:
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("not a whole number: %q", raw)
		}
		return n, nil
	case schema.KindFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("not a number: %q", raw)
		}
		return f, nil
	case schema.KindBool:
		return CoerceBool(raw)
	case schema.KindTime:
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("not a timestamp: %q", raw)
	case schema.KindDate:
		t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
		if err != nil {
			return nil, fmt.Errorf("not a date: %q", raw)
		}
		return t, nil
	default:
		return raw, nil
	}
}

// CoerceBool accepts exactly the boolean literals "true", "false", "1" and
// "0", case-insensitively. Everything else is rejected, whatever the
// underlying field kind.
func CoerceBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		return true, nil
	case "false", "0":
		return false, nil
	default:
		return false, fmt.Errorf("not a boolean: %q", raw)
	}
}
