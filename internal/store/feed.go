package store

import "feed-engine/internal/domain"

// GenerateFeedForUser returns the posts of everyone userID follows, newest
// first, ties broken by post id in sequence order. An unknown user gets an empty feed.
// The feed is rebuilt on every call.
func (s *Store) GenerateFeedForUser(userID string) []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return []domain.Post{}
	}

	var feed domain.Feed
	for _, followee := range u.Following() {
		feed.AddAll(s.postsByAuthor(followee))
	}
	feed.SortByTimestamp(true)
	return feed.Posts()
}
