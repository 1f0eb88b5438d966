package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"unicode"

	"github.com/sirupsen/logrus"

	"feed-engine/internal/clock"
	"feed-engine/internal/domain"
	"feed-engine/internal/notify"
	"feed-engine/internal/store"
)

var (
	// ErrInvalidUsername indicates a username that cannot be stored safely.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrUsernameTaken is returned when signing up with an existing username.
	ErrUsernameTaken = errors.New("username already exists")
	// ErrUserNotFound is returned for unknown user ids and usernames.
	ErrUserNotFound = errors.New("user not found")
	// ErrPostNotFound is returned for unknown post ids.
	ErrPostNotFound = errors.New("post not found")
	// ErrEmptyPost is returned when publishing blank content.
	ErrEmptyPost = errors.New("post cannot be empty")
)

// Stats summarizes the store, and the requesting user when one is given.
type Stats struct {
	Users     int
	Posts     int
	Followers int
	Following int
	OwnPosts  int
}

// FeedService exposes the user facing actions over the store.
type FeedService interface {
	Load(ctx context.Context) (store.LoadStats, error)
	Save(ctx context.Context) error
	SignUp(ctx context.Context, username, name, bio string) (*domain.User, error)
	Login(ctx context.Context, username string) (*domain.User, error)
	Profile(ctx context.Context, userID string) (*domain.User, error)
	EditName(ctx context.Context, userID, name string) (*domain.User, error)
	EditBio(ctx context.Context, userID, bio string) (*domain.User, error)
	Users(ctx context.Context) []domain.User
	CreatePost(ctx context.Context, userID, content string) (*domain.Post, error)
	EditPost(ctx context.Context, userID, postID, content string) (*domain.Post, error)
	MyPosts(ctx context.Context, userID string) ([]domain.Post, error)
	Feed(ctx context.Context, userID string) ([]domain.Post, error)
	Like(ctx context.Context, postID string) (*domain.Post, error)
	Follow(ctx context.Context, userID, username string) error
	Unfollow(ctx context.Context, userID, username string) error
	Stats(ctx context.Context, userID string) (Stats, error)
	Notifications(userID string) int
}

// inbox counts the posts published by the users a follower follows.
type inbox struct {
	counter *notify.Counter
	subs    map[string]*notify.Subscription
}

type feedService struct {
	store    *store.Store
	clock    clock.Clock
	autoSave bool
	logger   logrus.FieldLogger

	mu      sync.Mutex
	inboxes map[string]*inbox
}

func NewFeedService(st *store.Store, clk clock.Clock, autoSave bool, logger logrus.FieldLogger) FeedService {
	return &feedService{
		store:    st,
		clock:    clk,
		autoSave: autoSave,
		logger:   logger,
		inboxes:  make(map[string]*inbox),
	}
}

func (s *feedService) Load(ctx context.Context) (store.LoadStats, error) {
	stats, err := s.store.LoadAllData(ctx)
	s.resubscribe()
	return stats, err
}

func (s *feedService) Save(ctx context.Context) error {
	return s.store.SaveAllData(ctx)
}

// resubscribe rebuilds follower inboxes from the follow graph. Counts already
// accumulated in this process are kept.
func (s *feedService) resubscribe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, in := range s.inboxes {
		for _, sub := range in.subs {
			sub.Cancel()
		}
		in.subs = make(map[string]*notify.Subscription)
	}
	for _, u := range s.store.GetAllUsers() {
		for _, followee := range u.Following() {
			s.subscribeLocked(u.ID, followee)
		}
	}
}

func (s *feedService) subscribeLocked(followerID, followeeID string) {
	in, ok := s.inboxes[followerID]
	if !ok {
		in = &inbox{counter: &notify.Counter{}, subs: make(map[string]*notify.Subscription)}
		s.inboxes[followerID] = in
	}
	if _, ok := in.subs[followeeID]; ok {
		return
	}
	sub, err := s.store.RegisterObserverForUser(followeeID, notify.Weak(in.counter))
	if err != nil {
		s.logger.Warnf("subscribe %s to %s: %v", followerID, followeeID, err)
		return
	}
	in.subs[followeeID] = sub
	s.logger.Debugf("%s subscribed to %s (subscription %s)", followerID, followeeID, sub.ID)
}

func (s *feedService) unsubscribeLocked(followerID, followeeID string) {
	in, ok := s.inboxes[followerID]
	if !ok {
		return
	}
	if sub, ok := in.subs[followeeID]; ok {
		if !sub.Cancel() {
			s.logger.Warnf("subscription %s of %s to %s was already gone", sub.ID, followerID, followeeID)
		}
		delete(in.subs, followeeID)
		s.logger.Debugf("%s unsubscribed from %s (subscription %s)", followerID, followeeID, sub.ID)
	}
}

func (s *feedService) persist(ctx context.Context) {
	if !s.autoSave {
		return
	}
	// the store has already logged the failure; memory stays authoritative
	_ = s.store.SaveAllData(ctx)
}

func (s *feedService) SignUp(ctx context.Context, username, name, bio string) (*domain.User, error) {
	username = strings.TrimSpace(username)
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(username, strings.TrimSpace(name), bio)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrUsernameTaken):
			return nil, ErrUsernameTaken
		case errors.Is(err, store.ErrInvalidIdentifier):
			return nil, fmt.Errorf("%w: %v", ErrInvalidUsername, err)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.persist(ctx)
	return &user, nil
}

// validateUsername applies the store's identifier rule and additionally keeps
// usernames free of whitespace and '%' so they read the same on the command line
// and in the data files.
func validateUsername(username string) error {
	if err := store.CheckIdentifier("username", username); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidUsername, err)
	}
	for _, r := range username {
		if unicode.IsSpace(r) || r == '%' {
			return fmt.Errorf("%w: %q contains %q", ErrInvalidUsername, username, r)
		}
	}
	return nil
}

func (s *feedService) Login(_ context.Context, username string) (*domain.User, error) {
	user, ok := s.store.FindUserByUsername(strings.TrimSpace(username))
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *feedService) Profile(_ context.Context, userID string) (*domain.User, error) {
	user, ok := s.store.GetUser(userID)
	if !ok {
		return nil, ErrUserNotFound
	}
	return &user, nil
}

func (s *feedService) EditName(ctx context.Context, userID, name string) (*domain.User, error) {
	return s.editUser(ctx, userID, func() (domain.User, error) { return s.store.UpdateName(userID, name) })
}

func (s *feedService) EditBio(ctx context.Context, userID, bio string) (*domain.User, error) {
	return s.editUser(ctx, userID, func() (domain.User, error) { return s.store.UpdateBio(userID, bio) })
}

func (s *feedService) editUser(ctx context.Context, userID string, update func() (domain.User, error)) (*domain.User, error) {
	user, err := update()
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	s.persist(ctx)
	return &user, nil
}

func (s *feedService) Users(_ context.Context) []domain.User {
	return s.store.GetAllUsers()
}

func (s *feedService) CreatePost(ctx context.Context, userID, content string) (*domain.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyPost
	}

	post, err := s.store.CreatePost(userID, content, s.clock.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("create post: %w", err)
	}
	s.persist(ctx)
	return &post, nil
}

// EditPost lets an author change the content of one of their posts.
func (s *feedService) EditPost(ctx context.Context, userID, postID, content string) (*domain.Post, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyPost
	}
	existing, ok := s.store.GetPost(postID)
	if !ok || existing.AuthorID != userID {
		return nil, ErrPostNotFound
	}

	post, err := s.store.EditPost(postID, content)
	if err != nil {
		return nil, ErrPostNotFound
	}
	s.persist(ctx)
	return &post, nil
}

func (s *feedService) MyPosts(_ context.Context, userID string) ([]domain.Post, error) {
	if !s.store.UserExists(userID) {
		return nil, ErrUserNotFound
	}
	return s.store.GetPostsByUser(userID), nil
}

func (s *feedService) Feed(_ context.Context, userID string) ([]domain.Post, error) {
	if !s.store.UserExists(userID) {
		return nil, ErrUserNotFound
	}
	return s.store.GenerateFeedForUser(userID), nil
}

func (s *feedService) Like(ctx context.Context, postID string) (*domain.Post, error) {
	post, err := s.store.LikePost(postID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrPostNotFound
		}
		return nil, err
	}
	s.persist(ctx)
	return &post, nil
}

func (s *feedService) Follow(ctx context.Context, userID, username string) error {
	target, ok := s.store.FindUserByUsername(strings.TrimSpace(username))
	if !ok {
		return ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.FollowUser(userID, target.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	if userID != target.ID {
		s.subscribeLocked(userID, target.ID)
	}
	s.persist(ctx)
	return nil
}

func (s *feedService) Unfollow(ctx context.Context, userID, username string) error {
	target, ok := s.store.FindUserByUsername(strings.TrimSpace(username))
	if !ok {
		return ErrUserNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.store.UnfollowUser(userID, target.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	s.unsubscribeLocked(userID, target.ID)
	s.persist(ctx)
	return nil
}

// Stats reports store totals; per-user figures are filled when userID is set.
func (s *feedService) Stats(_ context.Context, userID string) (Stats, error) {
	stats := Stats{
		Users: s.store.UserCount(),
		Posts: s.store.PostCount(),
	}
	if userID == "" {
		return stats, nil
	}
	user, ok := s.store.GetUser(userID)
	if !ok {
		return Stats{}, ErrUserNotFound
	}
	stats.Followers = user.FollowerCount()
	stats.Following = user.FollowingCount()
	stats.OwnPosts = len(s.store.GetPostsByUser(userID))
	return stats, nil
}

// Notifications returns how many posts userID has been notified about in this
// process. The CLI exposes it through the notifications command, which is only
// meaningful inside a batch session.
func (s *feedService) Notifications(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.inboxes[userID]
	if !ok {
		return 0
	}
	return in.counter.Count()
}
