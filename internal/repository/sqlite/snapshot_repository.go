package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"feed-engine/internal/codec"
	"feed-engine/internal/domain"
	"feed-engine/internal/repository"
)

const createUsersTable = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	name TEXT NOT NULL,
	bio TEXT NOT NULL,
	followers TEXT NOT NULL,
	following TEXT NOT NULL
);
`

const createPostsTable = `
CREATE TABLE IF NOT EXISTS posts (
	id TEXT PRIMARY KEY,
	author_id TEXT NOT NULL,
	content TEXT NOT NULL,
	timestamp INTEGER NOT NULL,
	likes INTEGER NOT NULL
);
`

// SnapshotRepository stores the snapshot in two tables. Edge lists are kept
// comma-joined, as in the flat files.
type SnapshotRepository struct {
	db     *sql.DB
	path   string
	logger logrus.FieldLogger
}

func NewSnapshotRepository(db *sql.DB, path string, logger logrus.FieldLogger) *SnapshotRepository {
	return &SnapshotRepository{db: db, path: path, logger: logger}
}

var _ repository.SnapshotRepository = (*SnapshotRepository)(nil)

func (r *SnapshotRepository) Init(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, createPostsTable); err != nil {
		return fmt.Errorf("create posts table: %w", err)
	}
	return nil
}

func (r *SnapshotRepository) Files() []string {
	return []string{r.path}
}

func (r *SnapshotRepository) Load(ctx context.Context) (repository.LoadResult, error) {
	var result repository.LoadResult

	users, malformed, err := r.loadUsers(ctx)
	if err != nil {
		r.logger.Errorf("Failed to read users table: %v", err)
		return result, err
	}
	result.Users = users
	for _, m := range malformed {
		result.Malformed = multierror.Append(result.Malformed, m)
	}
	r.logger.Infof("Loaded %d users", len(users))

	posts, malformed, err := r.loadPosts(ctx)
	if err != nil {
		r.logger.Errorf("Failed to read posts table: %v", err)
		return result, err
	}
	result.Posts = posts
	for _, m := range malformed {
		result.Malformed = multierror.Append(result.Malformed, m)
	}
	r.logger.Infof("Loaded %d posts", len(posts))

	return result, nil
}

func (r *SnapshotRepository) loadUsers(ctx context.Context) ([]domain.User, []error, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, username, name, bio, followers, following
FROM users
ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	var (
		users     []domain.User
		malformed []error
	)
	for rows.Next() {
		var id, username, name, bio, followers, following string
		if err := rows.Scan(&id, &username, &name, &bio, &followers, &following); err != nil {
			return nil, nil, fmt.Errorf("scan user: %w", err)
		}
		if id == "" {
			err := &codec.MalformedRecordError{Kind: "user", Line: username, Reason: "empty user id"}
			r.logger.Errorf("Failed to deserialize user: %v", err)
			malformed = append(malformed, err)
			continue
		}
		users = append(users, domain.RestoreUser(id, username, name, bio, splitIDs(followers), splitIDs(following)))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, malformed, nil
}

func (r *SnapshotRepository) loadPosts(ctx context.Context) ([]domain.Post, []error, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, author_id, content, timestamp, likes
FROM posts
ORDER BY id`)
	if err != nil {
		return nil, nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()

	var (
		posts     []domain.Post
		malformed []error
	)
	for rows.Next() {
		var p domain.Post
		if err := rows.Scan(&p.ID, &p.AuthorID, &p.Content, &p.Timestamp, &p.Likes); err != nil {
			return nil, nil, fmt.Errorf("scan post: %w", err)
		}
		if p.ID == "" || p.Timestamp < 0 || p.Likes < 0 {
			err := &codec.MalformedRecordError{Kind: "post", Line: p.ID, Reason: "invalid id, timestamp or like count"}
			r.logger.Errorf("Failed to deserialize post: %v", err)
			malformed = append(malformed, err)
			continue
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, malformed, nil
}

// Save replaces every row in a single transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snap domain.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		r.logger.Errorf("Failed to begin snapshot transaction: %v", err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
			r.logger.Errorf("Failed to save snapshot: %v", err)
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM users`); err != nil {
		return fmt.Errorf("clear users: %w", err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM posts`); err != nil {
		return fmt.Errorf("clear posts: %w", err)
	}

	for _, u := range snap.Users {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO users (id, username, name, bio, followers, following)
VALUES (?, ?, ?, ?, ?, ?)`,
			u.ID,
			u.Username,
			u.Name,
			u.Bio,
			strings.Join(u.Followers(), ","),
			strings.Join(u.Following(), ","),
		); err != nil {
			return fmt.Errorf("insert user %s: %w", u.ID, err)
		}
	}

	for _, p := range snap.Posts {
		if _, err = tx.ExecContext(ctx, `
INSERT INTO posts (id, author_id, content, timestamp, likes)
VALUES (?, ?, ?, ?, ?)`,
			p.ID,
			p.AuthorID,
			p.Content,
			p.Timestamp,
			p.Likes,
		); err != nil {
			return fmt.Errorf("insert post %s: %w", p.ID, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	r.logger.Infof("Saved %d users", len(snap.Users))
	r.logger.Infof("Saved %d posts", len(snap.Posts))
	return nil
}

func splitIDs(field string) []string {
	if field == "" {
		return nil
	}
	return strings.Split(field, ",")
}
