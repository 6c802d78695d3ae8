package lookup

import (
	"fmt"
	"strings"
)

// SplitCSV splits delimiter-separated input into trimmed items. Empty
// input and empty items are rejected; "1,,3" is a malformed list, not a
// list with a gap.
func SplitCSV(raw, delimiter string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("empty value list")
	}

	parts := strings.Split(raw, delimiter)
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			return nil, fmt.Errorf("empty item in value list %q", raw)
		}
		items = append(items, item)
	}
	return items, nil
}
