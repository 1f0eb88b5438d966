package domain

import (
	"cmp"
	"strings"
)

// CompareIDs orders identifiers by prefix, then by the numeric value of their
// trailing digits, so p9999 sorts before p10000. Identifiers without a digit
// suffix compare as plain strings.
func CompareIDs(a, b string) int {
	pa, na := splitID(a)
	pb, nb := splitID(b)
	if pa != pb || na == "" || nb == "" {
		return strings.Compare(a, b)
	}
	ta, tb := strings.TrimLeft(na, "0"), strings.TrimLeft(nb, "0")
	if c := cmp.Compare(len(ta), len(tb)); c != 0 {
		return c
	}
	if c := strings.Compare(ta, tb); c != 0 {
		return c
	}
	// same value, different padding
	return strings.Compare(a, b)
}

func splitID(id string) (prefix, digits string) {
	i := len(id)
	for i > 0 && id[i-1] >= '0' && id[i-1] <= '9' {
		i--
	}
	return id[:i], id[i:]
}
