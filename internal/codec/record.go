package codec

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"feed-engine/internal/domain"
)

const (
	fieldSep = "|"
	listSep  = ","

	minUserFields = 4
	minPostFields = 5
)

// ErrMalformedRecord is matched by every decoding failure.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError describes a persisted line that could not be decoded.
type MalformedRecordError struct {
	Kind   string
	Line   string
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s record %q: %s", e.Kind, e.Line, e.Reason)
}

func (e *MalformedRecordError) Is(target error) bool {
	return target == ErrMalformedRecord
}

// RawFieldOK reports whether v can be written as an unescaped field: ids and
// usernames are stored as-is, so they must be non-empty and free of the field
// and list separators and of control characters.
func RawFieldOK(v string) bool {
	if v == "" {
		return false
	}
	for _, r := range v {
		if unicode.IsControl(r) || strings.ContainsRune(fieldSep+listSep, r) {
			return false
		}
	}
	return true
}

func malformed(kind, line, format string, args ...any) error {
	return &MalformedRecordError{Kind: kind, Line: line, Reason: fmt.Sprintf(format, args...)}
}

// EncodeUser renders userID|username|name|bio|followers|following.
func EncodeUser(u domain.User) string {
	return strings.Join([]string{
		u.ID,
		u.Username,
		Escape(u.Name),
		Escape(u.Bio),
		strings.Join(u.Followers(), listSep),
		strings.Join(u.Following(), listSep),
	}, fieldSep)
}

// DecodeUser parses a line produced by EncodeUser. The follower and following
// fields are optional.
func DecodeUser(line string) (domain.User, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) < minUserFields {
		return domain.User{}, malformed("user", line, "expected at least %d fields, got %d", minUserFields, len(parts))
	}
	if parts[0] == "" {
		return domain.User{}, malformed("user", line, "empty user id")
	}

	var followers, following []string
	if len(parts) > 4 {
		followers = splitList(parts[4])
	}
	if len(parts) > 5 {
		following = splitList(parts[5])
	}
	return domain.RestoreUser(parts[0], parts[1], Unescape(parts[2]), Unescape(parts[3]), followers, following), nil
}

// EncodePost renders postID|userID|timestamp|likes|content.
func EncodePost(p domain.Post) string {
	return strings.Join([]string{
		p.ID,
		p.AuthorID,
		strconv.FormatInt(p.Timestamp, 10),
		strconv.Itoa(p.Likes),
		Escape(p.Content),
	}, fieldSep)
}

func DecodePost(line string) (domain.Post, error) {
	parts := strings.Split(line, fieldSep)
	if len(parts) < minPostFields {
		return domain.Post{}, malformed("post", line, "expected at least %d fields, got %d", minPostFields, len(parts))
	}
	if parts[0] == "" {
		return domain.Post{}, malformed("post", line, "empty post id")
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || ts < 0 {
		return domain.Post{}, malformed("post", line, "invalid timestamp %q", parts[2])
	}
	likes, err := strconv.Atoi(parts[3])
	if err != nil || likes < 0 {
		return domain.Post{}, malformed("post", line, "invalid like count %q", parts[3])
	}

	p := domain.NewPost(parts[0], parts[1], Unescape(parts[4]), ts)
	p.Likes = likes
	return p, nil
}

func splitList(field string) []string {
	if field == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(field, listSep) {
		if id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
