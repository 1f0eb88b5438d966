package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp(&env{})
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"feedengine"}, args...))
	return out.String(), err
}

func TestCLIFlow(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FEED_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("FEED_LOG_LEVEL", "info")

	out, err := run(t, "signup", "--name", "Alice", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Your ID is u0001")

	_, err = run(t, "signup", "bob")
	require.NoError(t, err)

	_, err = run(t, "signup", "bob")
	assert.Error(t, err)

	_, err = run(t, "follow", "--as", "alice", "bob")
	require.NoError(t, err)

	out, err = run(t, "post", "--as", "bob", "hello", "world")
	require.NoError(t, err)
	assert.Contains(t, out, "Post p0001 created")

	out, err = run(t, "like", "p0001")
	require.NoError(t, err)
	assert.Contains(t, out, "1 likes")

	out, err = run(t, "feed", "--as", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "[p0001] u0002")
	assert.Contains(t, out, "hello world")

	out, err = run(t, "stats", "--as", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "Total users: 2")
	assert.Contains(t, out, "Followers: 1")

	users, err := os.ReadFile(filepath.Join(dir, "data", "users.txt"))
	require.NoError(t, err)
	assert.Equal(t, "u0001|alice|Alice|||u0002\nu0002|bob|bob||u0001|\n", string(users))

	logs, err := os.ReadFile(filepath.Join(dir, "data", "logs.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(logs), "["))
	assert.Contains(t, string(logs), "INFO: User added: u0001")
}

func TestCLIUnknownUser(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FEED_DATA_DIR", dir)
	t.Setenv("FEED_LOG_LEVEL", "error")

	_, err := run(t, "feed", "--as", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user not found")

	out, err := run(t, "feed", "--as", "ghost", "--sort", "likes")
	require.Error(t, err)
	assert.NotContains(t, out, "Your feed")
}

func TestBatchSessionDeliversNotifications(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FEED_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("FEED_LOG_LEVEL", "error")

	script := filepath.Join(dir, "session.txt")
	require.NoError(t, os.WriteFile(script, []byte(`# two users, one follow
signup alice
signup bob
follow --as alice bob
post --as bob first post
like p0404
post --as bob second post
notifications --as alice
notifications --as bob
`), 0o644))

	out, err := run(t, "batch", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 6")
	assert.Contains(t, out, "You have 2 new post notifications")
	assert.Contains(t, out, "You have 0 new post notifications")

	out, err = run(t, "posts", "--as", "bob")
	require.NoError(t, err)
	assert.Contains(t, out, "second post")
}

func TestBatchRejectsNesting(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("FEED_DATA_DIR", dir)
	t.Setenv("FEED_LOG_LEVEL", "error")

	script := filepath.Join(dir, "nested.txt")
	require.NoError(t, os.WriteFile(script, []byte("batch other.txt\n"), 0o644))

	_, err := run(t, "batch", script)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested batch")
}
