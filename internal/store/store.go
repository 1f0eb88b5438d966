// Package store owns every user and post. All mutations run under one
// exclusive lock, which also covers notification fan-out and persistence I/O;
// readers take the shared lock. Values handed out are copies.
package store

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/sirupsen/logrus"

	"feed-engine/internal/codec"
	"feed-engine/internal/domain"
	"feed-engine/internal/notify"
	"feed-engine/internal/repository"
)

var (
	// ErrDuplicateID is returned when inserting an entity whose id is taken.
	ErrDuplicateID = errors.New("duplicate identifier")
	// ErrUsernameTaken is returned when inserting a user whose username is taken.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrNotFound is returned when an operation references an unknown user or post.
	ErrNotFound = errors.New("not found")
	// ErrInvalidIdentifier is returned for ids and usernames the record format
	// cannot hold.
	ErrInvalidIdentifier = errors.New("invalid identifier")
)

// CheckIdentifier rejects values that cannot be persisted unescaped: empty
// strings and anything holding '|', ',' or a control character.
func CheckIdentifier(kind, value string) error {
	if !codec.RawFieldOK(value) {
		return fmt.Errorf("%s %q: %w", kind, value, ErrInvalidIdentifier)
	}
	return nil
}

type Store struct {
	mu sync.RWMutex

	users    map[string]*domain.User
	posts    map[string]*domain.Post
	byAuthor map[string][]string
	hub      *notify.Hub

	userIDs sequence
	postIDs sequence

	repo   repository.SnapshotRepository
	logger logrus.FieldLogger
}

func New(repo repository.SnapshotRepository, logger logrus.FieldLogger) *Store {
	s := &Store{
		hub:     notify.NewHub(),
		userIDs: sequence{prefix: userPrefix},
		postIDs: sequence{prefix: postPrefix},
		repo:    repo,
		logger:  logger,
	}
	s.reset()
	s.logger.Info("Store initialized")
	return s
}

func (s *Store) reset() {
	s.users = make(map[string]*domain.User)
	s.posts = make(map[string]*domain.Post)
	s.byAuthor = make(map[string][]string)
}

// NextUserID reserves the next user identifier.
func (s *Store) NextUserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userIDs.next()
}

// NextPostID reserves the next post identifier.
func (s *Store) NextPostID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.postIDs.next()
}

// AddUser inserts u. Both the id and the username must be unused.
func (s *Store) AddUser(u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertUser(u)
}

// CreateUser allocates an id and inserts a new user in one step.
func (s *Store) CreateUser(username, name, bio string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := CheckIdentifier("username", username); err != nil {
		s.logger.Warnf("Rejected username: %v", err)
		return domain.User{}, err
	}
	if s.usernameTaken(username) {
		s.logger.Warnf("Username already exists: %s", username)
		return domain.User{}, fmt.Errorf("username %s: %w", username, ErrUsernameTaken)
	}
	u := domain.NewUser(s.userIDs.next(), username, name, bio)
	if err := s.insertUser(u); err != nil {
		return domain.User{}, err
	}
	return u.Clone(), nil
}

func (s *Store) insertUser(u domain.User) error {
	for _, check := range []struct{ kind, value string }{{"user id", u.ID}, {"username", u.Username}} {
		if err := CheckIdentifier(check.kind, check.value); err != nil {
			s.logger.Warnf("Rejected user: %v", err)
			return err
		}
	}
	if _, ok := s.users[u.ID]; ok {
		s.logger.Warnf("User already exists: %s", u.ID)
		return fmt.Errorf("user %s: %w", u.ID, ErrDuplicateID)
	}
	if s.usernameTaken(u.Username) {
		s.logger.Warnf("Username already exists: %s", u.Username)
		return fmt.Errorf("username %s: %w", u.Username, ErrUsernameTaken)
	}

	stored := u.Clone()
	s.users[u.ID] = &stored
	s.hub.Ensure(u.ID)
	s.userIDs.observe(u.ID)
	s.logger.Infof("User added: %s", u.ID)
	return nil
}

func (s *Store) usernameTaken(username string) bool {
	for _, u := range s.users {
		if u.Username == username {
			return true
		}
	}
	return false
}

// AddPost inserts p and notifies the author's observers before returning.
// The author is not checked.
func (s *Store) AddPost(p domain.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertPost(p)
}

// CreatePost allocates an id and publishes a post for an existing author.
func (s *Store) CreatePost(authorID, content string, ts int64) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[authorID]; !ok {
		s.logger.Errorf("User not found in post creation: %s", authorID)
		return domain.Post{}, fmt.Errorf("author %s: %w", authorID, ErrNotFound)
	}
	p := domain.NewPost(s.postIDs.next(), authorID, content, ts)
	if err := s.insertPost(p); err != nil {
		return domain.Post{}, err
	}
	return p, nil
}

func (s *Store) insertPost(p domain.Post) error {
	for _, check := range []struct{ kind, value string }{{"post id", p.ID}, {"author id", p.AuthorID}} {
		if err := CheckIdentifier(check.kind, check.value); err != nil {
			s.logger.Warnf("Rejected post: %v", err)
			return err
		}
	}
	if _, ok := s.posts[p.ID]; ok {
		s.logger.Warnf("Post already exists: %s", p.ID)
		return fmt.Errorf("post %s: %w", p.ID, ErrDuplicateID)
	}

	stored := p
	s.posts[p.ID] = &stored
	s.byAuthor[p.AuthorID] = append(s.byAuthor[p.AuthorID], p.ID)
	s.postIDs.observe(p.ID)
	s.logger.Infof("Post added: %s", p.ID)

	if subject, ok := s.hub.Subject(p.AuthorID); ok {
		delivered := subject.Notify(p)
		s.logger.Debugf("Post %s delivered to %d observers", p.ID, delivered)
	}
	return nil
}

func (s *Store) GetUser(id string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, false
	}
	return u.Clone(), true
}

func (s *Store) FindUserByUsername(username string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Username == username {
			return u.Clone(), true
		}
	}
	return domain.User{}, false
}

func (s *Store) UserExists(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[id]
	return ok
}

func (s *Store) UsernameExists(username string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.usernameTaken(username)
}

// GetAllUsers returns every user ordered by id.
func (s *Store) GetAllUsers() []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedUsers()
}

func (s *Store) sortedUsers() []domain.User {
	out := make([]domain.User, 0, len(s.users))
	for _, id := range slices.SortedFunc(maps.Keys(s.users), domain.CompareIDs) {
		out = append(out, s.users[id].Clone())
	}
	return out
}

func (s *Store) GetPost(id string) (domain.Post, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[id]
	if !ok {
		return domain.Post{}, false
	}
	return *p, true
}

// GetAllPosts returns every post ordered by id.
func (s *Store) GetAllPosts() []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedPosts()
}

func (s *Store) sortedPosts() []domain.Post {
	out := make([]domain.Post, 0, len(s.posts))
	for _, p := range s.posts {
		out = append(out, *p)
	}
	slices.SortFunc(out, func(a, b domain.Post) int { return domain.CompareIDs(a.ID, b.ID) })
	return out
}

// GetPostsByUser returns the posts of userID in publication order.
func (s *Store) GetPostsByUser(userID string) []domain.Post {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.postsByAuthor(userID)
}

func (s *Store) postsByAuthor(userID string) []domain.Post {
	ids := s.byAuthor[userID]
	out := make([]domain.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, *s.posts[id])
	}
	return out
}

// LikePost increments the like counter of a post.
func (s *Store) LikePost(postID string) (domain.Post, error) {
	return s.updatePost(postID, func(p *domain.Post) { p.Like() })
}

// EditPost replaces the content of a post. Empty content leaves it unchanged.
func (s *Store) EditPost(postID, content string) (domain.Post, error) {
	return s.updatePost(postID, func(p *domain.Post) { p.EditContent(content) })
}

func (s *Store) updatePost(postID string, fn func(*domain.Post)) (domain.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[postID]
	if !ok {
		return domain.Post{}, fmt.Errorf("post %s: %w", postID, ErrNotFound)
	}
	fn(p)
	return *p, nil
}

func (s *Store) UpdateName(userID, name string) (domain.User, error) {
	return s.updateUser(userID, func(u *domain.User) { u.Name = name })
}

func (s *Store) UpdateBio(userID, bio string) (domain.User, error) {
	return s.updateUser(userID, func(u *domain.User) { u.Bio = bio })
}

func (s *Store) updateUser(userID string, fn func(*domain.User)) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	fn(u)
	return u.Clone(), nil
}

// FollowUser makes followerID follow followeeID, updating both users.
// Following oneself or an already followed user succeeds without change.
func (s *Store) FollowUser(followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	follower, followee, err := s.edgeEndpoints(followerID, followeeID, "follow")
	if err != nil {
		return err
	}
	if followerID == followeeID {
		s.logger.Warnf("%s attempted to follow itself", followerID)
		return nil
	}
	follower.Follow(followeeID)
	followee.AddFollower(followerID)
	s.logger.Infof("%s followed %s", followerID, followeeID)
	return nil
}

// UnfollowUser removes the edge from followerID to followeeID on both users.
func (s *Store) UnfollowUser(followerID, followeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	follower, followee, err := s.edgeEndpoints(followerID, followeeID, "unfollow")
	if err != nil {
		return err
	}
	follower.Unfollow(followeeID)
	followee.RemoveFollower(followerID)
	s.logger.Infof("%s unfollowed %s", followerID, followeeID)
	return nil
}

func (s *Store) edgeEndpoints(followerID, followeeID, op string) (*domain.User, *domain.User, error) {
	follower, ok := s.users[followerID]
	if !ok {
		s.logger.Errorf("User not found in %s operation: %s", op, followerID)
		return nil, nil, fmt.Errorf("user %s: %w", followerID, ErrNotFound)
	}
	followee, ok := s.users[followeeID]
	if !ok {
		s.logger.Errorf("User not found in %s operation: %s", op, followeeID)
		return nil, nil, fmt.Errorf("user %s: %w", followeeID, ErrNotFound)
	}
	return follower, followee, nil
}

// RegisterObserverForUser subscribes l to userID's new posts. Listeners run
// while the store's exclusive lock is held and must not call back into the store.
func (s *Store) RegisterObserverForUser(userID string, l notify.Listener) (*notify.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	subject, ok := s.hub.Subject(userID)
	if !ok {
		s.logger.Warnf("Cannot register observer, user not found: %s", userID)
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	sub := subject.Register(l)
	s.logger.Debugf("Observer %s registered for %s", sub.ID, userID)
	return sub, nil
}

func (s *Store) UserCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

func (s *Store) PostCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// ClearAllData drops every entity and subscription. Id sequences keep their
// position so identifiers are never handed out twice.
func (s *Store) ClearAllData() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	s.hub.Reset()
	s.logger.Info("All data cleared")
}

// LoadStats summarizes a LoadAllData call.
type LoadStats struct {
	Users     int
	Posts     int
	Malformed int
	Repaired  int
}

// LoadAllData replaces the in-memory entities with the persisted ones.
// Malformed records are skipped; a read failure is logged and returned, and
// whatever was read is still applied. Subscriptions of users that survive the
// reload are kept.
func (s *Store) LoadAllData(ctx context.Context) (LoadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, loadErr := s.repo.Load(ctx)
	if loadErr != nil {
		s.logger.Errorf("Failed to load data: %v", loadErr)
	}

	s.reset()
	for _, u := range result.Users {
		if _, ok := s.users[u.ID]; ok {
			s.logger.Warnf("Duplicate user %s in storage, keeping the first one", u.ID)
			continue
		}
		stored := u.Clone()
		s.users[u.ID] = &stored
		s.hub.Ensure(u.ID)
		s.userIDs.observe(u.ID)
	}
	s.hub.Retain(func(id string) bool {
		_, ok := s.users[id]
		return ok
	})
	for _, p := range result.Posts {
		if _, ok := s.posts[p.ID]; ok {
			s.logger.Warnf("Duplicate post %s in storage, keeping the first one", p.ID)
			continue
		}
		stored := p
		s.posts[p.ID] = &stored
		s.byAuthor[p.AuthorID] = append(s.byAuthor[p.AuthorID], p.ID)
		s.postIDs.observe(p.ID)
	}
	repaired := s.reconcileEdges()

	stats := LoadStats{
		Users:     len(s.users),
		Posts:     len(s.posts),
		Malformed: result.MalformedCount(),
		Repaired:  repaired,
	}
	s.logger.Infof("Loaded %d users, %d posts (%d malformed records skipped)", stats.Users, stats.Posts, stats.Malformed)
	if loadErr != nil {
		return stats, fmt.Errorf("load data: %w", loadErr)
	}
	return stats, nil
}

// reconcileEdges restores the mirror between following and followers after a
// load: an edge recorded on either side is written to both, and edges that
// point at unknown users or at the user itself are dropped.
func (s *Store) reconcileEdges() int {
	repaired := 0
	for _, id := range slices.SortedFunc(maps.Keys(s.users), domain.CompareIDs) {
		u := s.users[id]
		for _, target := range u.Following() {
			followee, ok := s.users[target]
			if !ok || target == id {
				u.Unfollow(target)
				repaired++
				s.logger.Warnf("Dropped dangling follow edge %s -> %s", id, target)
				continue
			}
			if !followee.HasFollower(id) {
				followee.AddFollower(id)
				repaired++
				s.logger.Warnf("Restored follower edge %s -> %s", id, target)
			}
		}
		for _, source := range u.Followers() {
			follower, ok := s.users[source]
			if !ok || source == id {
				u.RemoveFollower(source)
				repaired++
				s.logger.Warnf("Dropped dangling follower edge %s -> %s", source, id)
				continue
			}
			if !follower.IsFollowing(id) {
				follower.Follow(id)
				repaired++
				s.logger.Warnf("Restored following edge %s -> %s", source, id)
			}
		}
	}
	return repaired
}

// SaveAllData overwrites the persisted state. The exclusive lock is held for
// the whole write, so a slow disk blocks every other mutator.
func (s *Store) SaveAllData(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := domain.Snapshot{
		Users: s.sortedUsers(),
		Posts: s.sortedPosts(),
	}
	// the repository logs its own write failures
	if err := s.repo.Save(ctx, snap); err != nil {
		return fmt.Errorf("save data: %w", err)
	}
	return nil
}
