package store

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	userPrefix = "u"
	postPrefix = "p"
	idWidth    = 4

	maxSuffixDigits = 18
)

// sequence hands out <prefix><zero-padded n> identifiers. It only moves forward.
type sequence struct {
	prefix string
	last   int
}

func (s *sequence) next() string {
	s.last++
	return fmt.Sprintf("%s%0*d", s.prefix, idWidth, s.last)
}

// observe advances the sequence past id when id is this prefix followed by
// decimal digits. Suffixes longer than maxSuffixDigits are ignored so next
// cannot overflow.
func (s *sequence) observe(id string) {
	rest, ok := strings.CutPrefix(id, s.prefix)
	if !ok || rest == "" || len(rest) > maxSuffixDigits {
		return
	}
	for _, c := range rest {
		if c < '0' || c > '9' {
			return
		}
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return
	}
	if n > s.last {
		s.last = n
	}
}
