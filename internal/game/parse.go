package game

import (
	"strconv"
	"strings"
)

// ParseSum reads the entered total. Surrounding whitespace is ignored and only the
// leading signed run of digits counts, so "160.0" reads as 160. ok is false when no
// digits lead the input or the value overflows; such input never matches a sum.
func ParseSum(raw string) (value int, ok bool) {
	s := strings.TrimSpace(raw)

	end := 0
	if end < len(s) && (s[end] == '+' || s[end] == '-') {
		end++
	}
	start := end
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}

	v, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0, false
	}
	return v, true
}
