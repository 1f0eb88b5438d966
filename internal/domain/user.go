package domain

import "slices"

// User represents a member of the social graph. Follow edges are kept on both
// endpoints; the store is responsible for updating the pair together.
type User struct {
	ID       string
	Username string
	Name     string
	Bio      string

	followers []string
	following []string
}

// NewUser builds a user with no edges. An empty name falls back to the username.
func NewUser(id, username, name, bio string) User {
	if name == "" {
		name = username
	}
	return User{
		ID:       id,
		Username: username,
		Name:     name,
		Bio:      bio,
	}
}

// RestoreUser rebuilds a user from persisted state, edges included.
func RestoreUser(id, username, name, bio string, followers, following []string) User {
	return User{
		ID:        id,
		Username:  username,
		Name:      name,
		Bio:       bio,
		followers: slices.Clone(followers),
		following: slices.Clone(following),
	}
}

func (u *User) Followers() []string { return slices.Clone(u.followers) }
func (u *User) Following() []string { return slices.Clone(u.following) }
func (u *User) FollowerCount() int  { return len(u.followers) }
func (u *User) FollowingCount() int { return len(u.following) }

func (u *User) IsFollowing(id string) bool { return slices.Contains(u.following, id) }
func (u *User) HasFollower(id string) bool { return slices.Contains(u.followers, id) }

// Follow adds target to the following set unless it is already there or is the
// user itself.
func (u *User) Follow(target string) {
	if target == u.ID || u.IsFollowing(target) {
		return
	}
	u.following = append(u.following, target)
}

func (u *User) Unfollow(target string) {
	u.following = remove(u.following, target)
}

func (u *User) AddFollower(id string) {
	if id == u.ID || u.HasFollower(id) {
		return
	}
	u.followers = append(u.followers, id)
}

func (u *User) RemoveFollower(id string) {
	u.followers = remove(u.followers, id)
}

// Clone returns a deep copy so callers cannot reach the store's slices.
func (u User) Clone() User {
	u.followers = slices.Clone(u.followers)
	u.following = slices.Clone(u.following)
	return u
}

func remove(ids []string, id string) []string {
	if i := slices.Index(ids, id); i >= 0 {
		return slices.Delete(ids, i, i+1)
	}
	return ids
}
