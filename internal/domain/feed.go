package domain

import (
	"cmp"
	"slices"
)

// Feed collects posts for display. Every ordering breaks ties by post ID in
// sequence order so the result is deterministic.
type Feed struct {
	posts []Post
}

func (f *Feed) Add(p Post) {
	f.posts = append(f.posts, p)
}

func (f *Feed) AddAll(posts []Post) {
	f.posts = append(f.posts, posts...)
}

// Posts returns a copy of the feed in its current order.
func (f *Feed) Posts() []Post {
	return slices.Clone(f.posts)
}

func (f *Feed) Len() int { return len(f.posts) }

func (f *Feed) Clear() {
	f.posts = nil
}

// SortByTimestamp orders newest first when desc is set.
func (f *Feed) SortByTimestamp(desc bool) {
	slices.SortFunc(f.posts, func(a, b Post) int {
		c := cmp.Compare(a.Timestamp, b.Timestamp)
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return CompareIDs(a.ID, b.ID)
	})
}

// SortByLikes orders most liked first when desc is set.
func (f *Feed) SortByLikes(desc bool) {
	slices.SortFunc(f.posts, func(a, b Post) int {
		c := cmp.Compare(a.Likes, b.Likes)
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return CompareIDs(a.ID, b.ID)
	})
}
