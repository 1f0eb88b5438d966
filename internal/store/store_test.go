package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-engine/internal/domain"
	"feed-engine/internal/notify"
	"feed-engine/internal/repository"
	"feed-engine/internal/repository/flatfile"
)

func newTestStore(t *testing.T) (*Store, string, *test.Hook) {
	t.Helper()
	dir := t.TempDir()
	logger, hook := test.NewNullLogger()
	repo := flatfile.NewRepository(dir, "users.txt", "posts.txt", logger)
	require.NoError(t, repo.Init(context.Background()))
	return New(repo, logger), dir, hook
}

func mustCreateUser(t *testing.T, s *Store, username string) domain.User {
	t.Helper()
	u, err := s.CreateUser(username, strings.ToUpper(username), "")
	require.NoError(t, err)
	return u
}

func assertEdgesMirrored(t *testing.T, s *Store) {
	t.Helper()
	users := s.GetAllUsers()
	byID := make(map[string]domain.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, a := range users {
		for _, b := range a.Following() {
			other := byID[b]
			assert.True(t, other.HasFollower(a.ID), "%s follows %s but is not its follower", a.ID, b)
		}
		for _, b := range a.Followers() {
			other := byID[b]
			assert.True(t, other.IsFollowing(a.ID), "%s has follower %s that does not follow it", a.ID, b)
		}
		assert.False(t, a.IsFollowing(a.ID))
	}
}

func TestCreateUserAssignsSequentialIDs(t *testing.T) {
	s, _, _ := newTestStore(t)

	alice := mustCreateUser(t, s, "alice")
	bob := mustCreateUser(t, s, "bob")

	assert.Equal(t, "u0001", alice.ID)
	assert.Equal(t, "u0002", bob.ID)
	assert.Equal(t, "ALICE", alice.Name)
	assert.Equal(t, 2, s.UserCount())
}

func TestAddUserRejectsDuplicates(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.AddUser(domain.NewUser("u0001", "alice", "Alice", "")))

	err := s.AddUser(domain.NewUser("u0001", "someone", "", ""))
	assert.True(t, errors.Is(err, ErrDuplicateID))

	err = s.AddUser(domain.NewUser("u0002", "alice", "", ""))
	assert.True(t, errors.Is(err, ErrUsernameTaken))

	_, err = s.CreateUser("alice", "", "")
	assert.True(t, errors.Is(err, ErrUsernameTaken))

	assert.Equal(t, 1, s.UserCount())
	u, ok := s.GetUser("u0001")
	require.True(t, ok)
	assert.Equal(t, "Alice", u.Name)
}

func TestRejectsIdentifiersTheRecordFormatCannotHold(t *testing.T) {
	s, _, _ := newTestStore(t)

	for _, username := range []string{"ev|il", "a,b", "line\nbreak", "cr\r", ""} {
		_, err := s.CreateUser(username, "Name", "bio")
		assert.True(t, errors.Is(err, ErrInvalidIdentifier), "username %q", username)
	}
	assert.Zero(t, s.UserCount())
	assert.Equal(t, "u0001", s.NextUserID(), "rejected usernames must not consume ids")

	err := s.AddUser(domain.NewUser("u|2", "bob", "", ""))
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	err = s.AddUser(domain.NewUser("u0003", "ev|il", "", ""))
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))

	err = s.AddPost(domain.NewPost("p,1", "u0003", "x", 1))
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	err = s.AddPost(domain.NewPost("p0001", "u|3", "x", 1))
	assert.True(t, errors.Is(err, ErrInvalidIdentifier))
	assert.Zero(t, s.PostCount())
}

func TestAcceptedUsersSurviveRoundTrip(t *testing.T) {
	s, _, _ := newTestStore(t)
	ctx := context.Background()
	odd, err := s.CreateUser("%7c~odd.name", "Name | with, separators", "bio\nline")
	require.NoError(t, err)
	plain := mustCreateUser(t, s, "plain")
	require.NoError(t, s.FollowUser(plain.ID, odd.ID))
	require.NoError(t, s.SaveAllData(ctx))

	stats, err := s.LoadAllData(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Repaired)
	assert.Zero(t, stats.Malformed)

	got, ok := s.GetUser(odd.ID)
	require.True(t, ok)
	assert.Equal(t, "%7c~odd.name", got.Username)
	assert.Equal(t, "Name | with, separators", got.Name)
	assert.Equal(t, "bio\nline", got.Bio)
	assert.Equal(t, []string{plain.ID}, got.Followers())
}

func TestUsernamesAreCaseSensitive(t *testing.T) {
	s, _, _ := newTestStore(t)
	mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "Alice")

	assert.True(t, s.UsernameExists("alice"))
	assert.True(t, s.UsernameExists("Alice"))
	assert.False(t, s.UsernameExists("ALICE"))
}

func TestAddUserAdvancesSequence(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.AddUser(domain.NewUser("u0041", "alice", "", "")))

	assert.Equal(t, "u0042", s.NextUserID())
}

func TestAddPostRejectsDuplicateID(t *testing.T) {
	s, _, _ := newTestStore(t)
	require.NoError(t, s.AddPost(domain.NewPost("p0001", "u0001", "first", 1)))

	err := s.AddPost(domain.NewPost("p0001", "u0001", "second", 2))
	assert.True(t, errors.Is(err, ErrDuplicateID))
	assert.Equal(t, 1, s.PostCount())

	p, ok := s.GetPost("p0001")
	require.True(t, ok)
	assert.Equal(t, "first", p.Content)
}

func TestCreatePostRequiresAuthor(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, err := s.CreatePost("u0404", "hello", 1)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Zero(t, s.PostCount())
}

func TestLookupsOfMissingEntities(t *testing.T) {
	s, _, _ := newTestStore(t)

	_, ok := s.GetUser("u0001")
	assert.False(t, ok)
	_, ok = s.GetPost("p0001")
	assert.False(t, ok)
	_, ok = s.FindUserByUsername("nobody")
	assert.False(t, ok)
	assert.False(t, s.UserExists("u0001"))
	assert.Empty(t, s.GetPostsByUser("u0001"))
	assert.Empty(t, s.GenerateFeedForUser("u0001"))
}

func TestFollowAndUnfollow(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")
	bob := mustCreateUser(t, s, "bob")

	require.NoError(t, s.FollowUser(alice.ID, bob.ID))

	a, _ := s.GetUser(alice.ID)
	b, _ := s.GetUser(bob.ID)
	assert.Equal(t, []string{bob.ID}, a.Following())
	assert.Equal(t, []string{alice.ID}, b.Followers())
	assert.Empty(t, a.Followers())
	assert.Empty(t, b.Following())

	require.NoError(t, s.FollowUser(alice.ID, bob.ID))
	a, _ = s.GetUser(alice.ID)
	b, _ = s.GetUser(bob.ID)
	assert.Equal(t, 1, a.FollowingCount())
	assert.Equal(t, 1, b.FollowerCount())

	require.NoError(t, s.UnfollowUser(alice.ID, bob.ID))
	a, _ = s.GetUser(alice.ID)
	b, _ = s.GetUser(bob.ID)
	assert.Empty(t, a.Following())
	assert.Empty(t, b.Followers())

	require.NoError(t, s.UnfollowUser(alice.ID, bob.ID))
}

func TestSelfFollowIsNoOp(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")

	require.NoError(t, s.FollowUser(alice.ID, alice.ID))

	a, _ := s.GetUser(alice.ID)
	assert.Empty(t, a.Following())
	assert.Empty(t, a.Followers())
}

func TestFollowUnknownUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")

	assert.True(t, errors.Is(s.FollowUser(alice.ID, "u0404"), ErrNotFound))
	assert.True(t, errors.Is(s.FollowUser("u0404", alice.ID), ErrNotFound))
	assert.True(t, errors.Is(s.UnfollowUser(alice.ID, "u0404"), ErrNotFound))

	a, _ := s.GetUser(alice.ID)
	assert.Empty(t, a.Following())
}

func TestFollowEdgesStayMirrored(t *testing.T) {
	s, _, _ := newTestStore(t)
	var ids []string
	for i := 0; i < 6; i++ {
		ids = append(ids, mustCreateUser(t, s, fmt.Sprintf("user%d", i)).ID)
	}

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 300; i++ {
		a, b := ids[rng.Intn(len(ids))], ids[rng.Intn(len(ids))]
		if rng.Intn(3) == 0 {
			require.NoError(t, s.UnfollowUser(a, b))
		} else {
			require.NoError(t, s.FollowUser(a, b))
		}
	}
	assertEdgesMirrored(t, s)
}

func TestReturnedValuesAreCopies(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")
	mustCreateUser(t, s, "bob")

	alice.Follow("u0002")
	alice.Name = "changed"

	stored, _ := s.GetUser(alice.ID)
	assert.Empty(t, stored.Following())
	assert.Equal(t, "ALICE", stored.Name)

	post, err := s.CreatePost(alice.ID, "hello", 1)
	require.NoError(t, err)
	post.Likes = 100
	all := s.GetAllPosts()
	all[0].Content = "changed"

	stored2, _ := s.GetPost(post.ID)
	assert.Zero(t, stored2.Likes)
	assert.Equal(t, "hello", stored2.Content)
}

func TestEndToEndFeed(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")
	bob := mustCreateUser(t, s, "bob")
	require.Equal(t, "u0001", alice.ID)
	require.Equal(t, "u0002", bob.ID)

	require.NoError(t, s.FollowUser("u0001", "u0002"))
	const ts = int64(1700000000)
	post, err := s.CreatePost("u0002", "hello", ts)
	require.NoError(t, err)
	assert.Equal(t, "p0001", post.ID)

	feed := s.GenerateFeedForUser("u0001")
	assert.Equal(t, []domain.Post{{ID: "p0001", AuthorID: "u0002", Content: "hello", Timestamp: ts, Likes: 0}}, feed)
}

func TestLikeIsUnattributed(t *testing.T) {
	s, _, _ := newTestStore(t)
	mustCreateUser(t, s, "alice")
	bob := mustCreateUser(t, s, "bob")
	post, err := s.CreatePost(bob.ID, "hello", 1)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := s.LikePost(post.ID)
		require.NoError(t, err)
	}

	p, _ := s.GetPost(post.ID)
	assert.Equal(t, 3, p.Likes)

	_, err = s.LikePost("p0404")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEditPostAndProfile(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")
	post, err := s.CreatePost(alice.ID, "draft", 1)
	require.NoError(t, err)

	edited, err := s.EditPost(post.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)

	edited, err = s.EditPost(post.ID, "")
	require.NoError(t, err)
	assert.Equal(t, "final", edited.Content)

	u, err := s.UpdateName(alice.ID, "Alice Liddell")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", u.Name)
	u, err = s.UpdateBio(alice.ID, "down the rabbit hole")
	require.NoError(t, err)
	assert.Equal(t, "down the rabbit hole", u.Bio)
	assert.Equal(t, "alice", u.Username)

	_, err = s.UpdateBio("u0404", "x")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGenerateFeedUnionAndOrder(t *testing.T) {
	s, _, _ := newTestStore(t)
	reader := mustCreateUser(t, s, "reader")
	a := mustCreateUser(t, s, "a")
	b := mustCreateUser(t, s, "b")
	stranger := mustCreateUser(t, s, "stranger")

	require.NoError(t, s.FollowUser(reader.ID, a.ID))
	require.NoError(t, s.FollowUser(reader.ID, b.ID))

	mk := func(author string, ts int64) string {
		p, err := s.CreatePost(author, "x", ts)
		require.NoError(t, err)
		return p.ID
	}
	a1 := mk(a.ID, 100)
	b1 := mk(b.ID, 300)
	mk(stranger.ID, 500)
	a2 := mk(a.ID, 200)
	b2 := mk(b.ID, 200)
	mk(reader.ID, 400)

	feed := s.GenerateFeedForUser(reader.ID)
	var got []string
	for _, p := range feed {
		got = append(got, p.ID)
	}
	// a2 and b2 share a timestamp; the lower id comes first.
	assert.Equal(t, []string{b1, a2, b2, a1}, got)
	assert.Equal(t, "p0004", a2)
	assert.Equal(t, "p0005", b2)
}

func TestFeedTieBreakFollowsSequencePastWidth(t *testing.T) {
	s, _, _ := newTestStore(t)
	reader := mustCreateUser(t, s, "reader")
	author := mustCreateUser(t, s, "author")
	require.NoError(t, s.FollowUser(reader.ID, author.ID))

	require.NoError(t, s.AddPost(domain.NewPost("p10000", author.ID, "later id", 50)))
	require.NoError(t, s.AddPost(domain.NewPost("p9999", author.ID, "earlier id", 50)))

	var got []string
	for _, p := range s.GenerateFeedForUser(reader.ID) {
		got = append(got, p.ID)
	}
	assert.Equal(t, []string{"p9999", "p10000"}, got)

	all := s.GetAllPosts()
	require.Len(t, all, 2)
	assert.Equal(t, "p9999", all[0].ID)
	assert.Equal(t, "p10001", s.NextPostID())
}

func TestPostsByUserInPublicationOrder(t *testing.T) {
	s, _, _ := newTestStore(t)
	a := mustCreateUser(t, s, "a")
	for _, ts := range []int64{30, 10, 20} {
		_, err := s.CreatePost(a.ID, "x", ts)
		require.NoError(t, err)
	}

	posts := s.GetPostsByUser(a.ID)
	require.Len(t, posts, 3)
	assert.Equal(t, []int64{30, 10, 20}, []int64{posts[0].Timestamp, posts[1].Timestamp, posts[2].Timestamp})
}

func TestNotificationFanOut(t *testing.T) {
	s, _, _ := newTestStore(t)
	author := mustCreateUser(t, s, "author")
	other := mustCreateUser(t, s, "other")

	counters := []*notify.Counter{{}, {}, {}}
	for _, c := range counters {
		_, err := s.RegisterObserverForUser(author.ID, notify.Weak(c))
		require.NoError(t, err)
	}
	bystander := &notify.Counter{}
	_, err := s.RegisterObserverForUser(other.ID, notify.Weak(bystander))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		_, err := s.CreatePost(author.ID, "post", int64(i))
		require.NoError(t, err)
	}

	late := &notify.Counter{}
	sub, err := s.RegisterObserverForUser(author.ID, notify.Weak(late))
	require.NoError(t, err)

	for _, c := range counters {
		assert.Equal(t, 4, c.Count())
	}
	assert.Zero(t, late.Count())
	assert.Zero(t, bystander.Count())

	_, err = s.CreatePost(author.ID, "one more", 10)
	require.NoError(t, err)
	assert.Equal(t, 1, late.Count())

	sub.Cancel()
	_, err = s.CreatePost(author.ID, "after cancel", 11)
	require.NoError(t, err)
	assert.Equal(t, 1, late.Count())
	assert.Equal(t, 6, counters[0].Count())
	runtime.KeepAlive(bystander)
}

func TestRegisterObserverUnknownUser(t *testing.T) {
	s, _, _ := newTestStore(t)
	_, err := s.RegisterObserverForUser("u0404", notify.Strong(&notify.Counter{}))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	s, dir, _ := newTestStore(t)
	ctx := context.Background()

	alice := mustCreateUser(t, s, "alice")
	bob := mustCreateUser(t, s, "bob")
	require.NoError(t, s.FollowUser(alice.ID, bob.ID))
	_, err := s.UpdateBio(bob.ID, "pipes | commas , percent %")
	require.NoError(t, err)
	post, err := s.CreatePost(bob.ID, "hello | world", 42)
	require.NoError(t, err)
	_, err = s.LikePost(post.ID)
	require.NoError(t, err)
	require.NoError(t, s.SaveAllData(ctx))

	logger, _ := test.NewNullLogger()
	reloaded := New(flatfile.NewRepository(dir, "users.txt", "posts.txt", logger), logger)
	stats, err := reloaded.LoadAllData(ctx)
	require.NoError(t, err)
	assert.Equal(t, LoadStats{Users: 2, Posts: 1}, stats)

	assert.Equal(t, s.GetAllUsers(), reloaded.GetAllUsers())
	assert.Equal(t, s.GetAllPosts(), reloaded.GetAllPosts())
	assert.Equal(t, s.GenerateFeedForUser(alice.ID), reloaded.GenerateFeedForUser(alice.ID))

	assert.Equal(t, "u0003", reloaded.NextUserID())
	assert.Equal(t, "p0002", reloaded.NextPostID())

	c := &notify.Counter{}
	_, err = reloaded.RegisterObserverForUser(bob.ID, notify.Weak(c))
	require.NoError(t, err)
	_, err = reloaded.CreatePost(bob.ID, "after reload", 43)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Count())
}

func TestLoadAdvancesSequencesPastPersistedIDs(t *testing.T) {
	s, dir, _ := newTestStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.txt"),
		[]byte("u0007|g|G|||\nu0003|c|C|||\nx0099|odd|Odd|||\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts.txt"),
		[]byte("p0012|u0007|1|0|a\np0002|u0003|2|0|b\n"), 0o644))

	_, err := s.LoadAllData(context.Background())
	require.NoError(t, err)

	u, err := s.CreateUser("new", "", "")
	require.NoError(t, err)
	assert.Equal(t, "u0008", u.ID)
	p, err := s.CreatePost(u.ID, "x", 3)
	require.NoError(t, err)
	assert.Equal(t, "p0013", p.ID)
}

func TestLoadToleratesMalformedLines(t *testing.T) {
	s, dir, hook := newTestStore(t)
	users := "u0001|alice|Alice|||\ngarbage\nu0002|bob|Bob|||\n\nu0003\n"
	posts := "p0001|u0001|5|0|hi\np0002|u0001|x|0|bad\nnope\np0003|u0002|6|1|ok\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.txt"), []byte(users), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts.txt"), []byte(posts), 0o644))

	hook.Reset()
	stats, err := s.LoadAllData(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Users)
	assert.Equal(t, 2, stats.Posts)
	assert.Equal(t, 4, stats.Malformed)

	errorsLogged := 0
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 4, errorsLogged)
}

func TestLoadRepairsOneSidedEdges(t *testing.T) {
	s, dir, _ := newTestStore(t)
	users := strings.Join([]string{
		"u0001|alice|Alice|||u0002,u0404",
		"u0002|bob|Bob|||",
		"u0003|carol|Carol|u0002||",
	}, "\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "users.txt"), []byte(users), 0o644))

	stats, err := s.LoadAllData(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Repaired)

	bob, _ := s.GetUser("u0002")
	assert.Equal(t, []string{"u0001"}, bob.Followers())
	assert.Equal(t, []string{"u0003"}, bob.Following())
	assertEdgesMirrored(t, s)
}

func TestLoadReplacesState(t *testing.T) {
	s, _, _ := newTestStore(t)
	mustCreateUser(t, s, "ghost")

	stats, err := s.LoadAllData(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Users)
	assert.False(t, s.UsernameExists("ghost"))

	u := mustCreateUser(t, s, "fresh")
	assert.Equal(t, "u0002", u.ID)
}

func TestClearAllDataKeepsSequences(t *testing.T) {
	s, _, _ := newTestStore(t)
	alice := mustCreateUser(t, s, "alice")
	_, err := s.CreatePost(alice.ID, "x", 1)
	require.NoError(t, err)

	s.ClearAllData()
	assert.Zero(t, s.UserCount())
	assert.Zero(t, s.PostCount())
	_, err = s.RegisterObserverForUser(alice.ID, notify.Strong(&notify.Counter{}))
	assert.True(t, errors.Is(err, ErrNotFound))

	again := mustCreateUser(t, s, "alice")
	assert.Equal(t, "u0002", again.ID)
}

type failingRepository struct {
	repository.SnapshotRepository
	saveErr error
	loadErr error
}

func (f failingRepository) Save(context.Context, domain.Snapshot) error { return f.saveErr }

func (f failingRepository) Load(context.Context) (repository.LoadResult, error) {
	return repository.LoadResult{Users: []domain.User{domain.NewUser("u0001", "alice", "", "")}}, f.loadErr
}

func TestSaveFailureLeavesMemoryIntact(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := New(failingRepository{saveErr: errors.New("disk full")}, logger)
	mustCreateUser(t, s, "alice")

	err := s.SaveAllData(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, 1, s.UserCount())
}

func TestSaveFailureIsLoggedOnce(t *testing.T) {
	s, dir, hook := newTestStore(t)
	mustCreateUser(t, s, "alice")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "users.txt.tmp"), 0o755))
	hook.Reset()

	require.Error(t, s.SaveAllData(context.Background()))

	var errorsLogged int
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel {
			errorsLogged++
		}
	}
	assert.Equal(t, 1, errorsLogged)
	assert.Equal(t, 1, s.UserCount())
}

func TestLoadFailureAppliesPartialResult(t *testing.T) {
	logger, _ := test.NewNullLogger()
	s := New(failingRepository{loadErr: errors.New("permission denied")}, logger)

	stats, err := s.LoadAllData(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, stats.Users)
	assert.True(t, s.UserExists("u0001"))
}

func TestConcurrentMutations(t *testing.T) {
	s, _, _ := newTestStore(t)
	hub := mustCreateUser(t, s, "hub")
	counter := &notify.Counter{}
	_, err := s.RegisterObserverForUser(hub.ID, notify.Weak(counter))
	require.NoError(t, err)

	const workers = 8
	const perWorker = 25
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			u, err := s.CreateUser(fmt.Sprintf("worker%d", w), "", "")
			if !assert.NoError(t, err) {
				return
			}
			for i := 0; i < perWorker; i++ {
				assert.NoError(t, s.FollowUser(u.ID, hub.ID))
				_, err := s.CreatePost(hub.ID, "tick", int64(i))
				assert.NoError(t, err)
				s.GenerateFeedForUser(u.ID)
				s.GetAllUsers()
				if i%5 == 0 {
					assert.NoError(t, s.UnfollowUser(u.ID, hub.ID))
				}
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, workers+1, s.UserCount())
	assert.Equal(t, workers*perWorker, s.PostCount())
	assert.Equal(t, workers*perWorker, counter.Count())
	assertEdgesMirrored(t, s)
}
