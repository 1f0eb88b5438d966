package flatfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"feed-engine/internal/codec"
	"feed-engine/internal/domain"
	"feed-engine/internal/repository"
)

const maxLineSize = 16 << 20

// Repository keeps users and posts in two line-oriented text files.
type Repository struct {
	dir       string
	usersPath string
	postsPath string
	logger    logrus.FieldLogger
}

func NewRepository(dir, usersFile, postsFile string, logger logrus.FieldLogger) *Repository {
	return &Repository{
		dir:       dir,
		usersPath: filepath.Join(dir, usersFile),
		postsPath: filepath.Join(dir, postsFile),
		logger:    logger,
	}
}

var _ repository.SnapshotRepository = (*Repository)(nil)

func (r *Repository) Init(_ context.Context) error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	return nil
}

func (r *Repository) Files() []string {
	return []string{r.usersPath, r.postsPath}
}

func (r *Repository) Load(_ context.Context) (repository.LoadResult, error) {
	var (
		result  repository.LoadResult
		readErr *multierror.Error
	)

	users, malformed, err := loadFile(r, "user", r.usersPath, codec.DecodeUser)
	result.Users = users
	result.Malformed = multierror.Append(result.Malformed, malformed...)
	if err != nil {
		readErr = multierror.Append(readErr, err)
	}

	posts, malformed, err := loadFile(r, "post", r.postsPath, codec.DecodePost)
	result.Posts = posts
	result.Malformed = multierror.Append(result.Malformed, malformed...)
	if err != nil {
		readErr = multierror.Append(readErr, err)
	}

	if result.MalformedCount() == 0 {
		result.Malformed = nil
	}
	return result, readErr.ErrorOrNil()
}

func loadFile[T any](r *Repository, kind, path string, decode func(string) (T, error)) ([]T, []error, error) {
	name := filepath.Base(path)
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		r.logger.Warnf("%s not found, starting fresh", name)
		return nil, nil, nil
	}
	if err != nil {
		r.logger.Errorf("Failed to open %s: %v", name, err)
		return nil, nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer file.Close()

	var (
		items     []T
		malformed []error
	)
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		item, err := decode(line)
		if err != nil {
			r.logger.Errorf("Failed to deserialize %s: %v", kind, err)
			malformed = append(malformed, err)
			continue
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		r.logger.Errorf("Failed to read %s: %v", name, err)
		return items, malformed, fmt.Errorf("read %s: %w", name, err)
	}

	r.logger.Infof("Loaded %d %ss", len(items), kind)
	return items, malformed, nil
}

// Save rewrites both files. A failure on one file is logged and reported but
// does not stop the other from being written.
func (r *Repository) Save(_ context.Context, snap domain.Snapshot) error {
	var result *multierror.Error

	userLines := make([]string, len(snap.Users))
	for i, u := range snap.Users {
		userLines[i] = codec.EncodeUser(u)
	}
	if err := r.writeFile(r.usersPath, userLines); err != nil {
		result = multierror.Append(result, err)
	} else {
		r.logger.Infof("Saved %d users", len(userLines))
	}

	postLines := make([]string, len(snap.Posts))
	for i, p := range snap.Posts {
		postLines[i] = codec.EncodePost(p)
	}
	if err := r.writeFile(r.postsPath, postLines); err != nil {
		result = multierror.Append(result, err)
	} else {
		r.logger.Infof("Saved %d posts", len(postLines))
	}

	return result.ErrorOrNil()
}

func (r *Repository) writeFile(path string, lines []string) error {
	name := filepath.Base(path)
	tmp := path + ".tmp"

	file, err := os.Create(tmp)
	if err != nil {
		r.logger.Errorf("Failed to open %s for writing: %v", name, err)
		return fmt.Errorf("open %s for writing: %w", name, err)
	}

	w := bufio.NewWriter(file)
	for _, line := range lines {
		w.WriteString(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		file.Close()
		_ = os.Remove(tmp)
		r.logger.Errorf("Failed to write %s: %v", name, err)
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmp)
		r.logger.Errorf("Failed to close %s: %v", name, err)
		return fmt.Errorf("close %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		r.logger.Errorf("Failed to replace %s: %v", name, err)
		return fmt.Errorf("replace %s: %w", name, err)
	}
	return nil
}
