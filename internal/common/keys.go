package common

import "strings"

// SanitizeKeySegment escapes delimiter characters in counter key segments so
// user-controlled identifiers containing ':' (IPv6 addresses, crafted
// usernames) cannot collide with adjacent buckets. Escaping the escape
// character first keeps the mapping injective.
func SanitizeKeySegment(s string) string {
	s = strings.ReplaceAll(s, "_", "__")
	s = strings.ReplaceAll(s, ":", "_c")
	return s
}
