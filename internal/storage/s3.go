package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	ErrBucketRequired = errors.New("storage bucket is required")
	ErrNoFiles        = errors.New("no files to upload")
)

// Client is the subset of the S3 API used for backups. *s3.Client satisfies it.
type Client interface {
	manager.UploadAPIClient
	s3.ListObjectsV2APIClient
}

// S3Service uploads snapshot files to Amazon S3 (or compatible APIs).
type S3Service struct {
	client   Client
	uploader *manager.Uploader
}

func NewS3Service(client Client) *S3Service {
	return &S3Service{
		client:   client,
		uploader: manager.NewUploader(client),
	}
}

// UploadFiles stores every file under <KeyPrefix>/<base name> and returns the
// s3:// location of the prefix. Missing files abort the upload before anything
// is sent.
func (s *S3Service) UploadFiles(ctx context.Context, files []string, opts UploadOptions) (string, error) {
	if opts.Bucket == "" {
		return "", ErrBucketRequired
	}
	if len(files) == 0 {
		return "", ErrNoFiles
	}

	type uploadFile struct {
		path string
		key  string
		size int64
	}

	keyPrefix := strings.Trim(opts.KeyPrefix, "/")
	if keyPrefix == "" {
		keyPrefix = fmt.Sprintf("snapshot-%d", time.Now().Unix())
	}

	uploads := make([]uploadFile, 0, len(files))
	var totalSize int64
	for _, path := range files {
		fi, err := os.Stat(path)
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", path, err)
		}
		if fi.IsDir() {
			return "", fmt.Errorf("%s is a directory", path)
		}
		uploads = append(uploads, uploadFile{
			path: path,
			key:  keyPrefix + "/" + filepath.Base(path),
			size: fi.Size(),
		})
		totalSize += fi.Size()
	}

	progress := newProgressReporter(totalSize, opts.ProgressCallback)
	if progress != nil {
		progress.report(0)
	}

	for _, file := range uploads {
		f, err := os.Open(file.path)
		if err != nil {
			return "", fmt.Errorf("open file %s: %w", file.path, err)
		}
		var reader io.Reader = f
		if progress != nil {
			reader = io.TeeReader(f, progress)
		}
		_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(opts.Bucket),
			Key:    aws.String(file.key),
			Body:   reader,
			ACL:    types.ObjectCannedACLPrivate,
		})
		closeErr := f.Close()
		if err != nil {
			return "", fmt.Errorf("upload %s: %w", file.path, err)
		}
		if closeErr != nil {
			return "", fmt.Errorf("close file %s: %w", file.path, closeErr)
		}
	}

	if progress != nil {
		progress.flush()
	}

	return fmt.Sprintf("s3://%s/%s", opts.Bucket, keyPrefix), nil
}

// ListObjects lists the backups stored under prefix in key order.
func (s *S3Service) ListObjects(ctx context.Context, bucket, prefix string) ([]ObjectInfo, error) {
	if bucket == "" {
		return nil, ErrBucketRequired
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(bucket)}
	if trimmed := strings.Trim(prefix, "/ "); trimmed != "" {
		input.Prefix = aws.String(trimmed + "/")
	}

	var objects []ObjectInfo
	pages := s3.NewListObjectsV2Paginator(s.client, input)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range page.Contents {
			objects = append(objects, ObjectInfo{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: obj.LastModified,
			})
		}
	}
	return objects, nil
}

var _ Service = (*S3Service)(nil)

type progressReporter struct {
	total    int64
	done     int64
	cb       func(done, total int64)
	mu       sync.Mutex
	lastFire time.Time
}

func newProgressReporter(total int64, cb func(done, total int64)) *progressReporter {
	if cb == nil {
		return nil
	}
	return &progressReporter{
		total: total,
		cb:    cb,
	}
}

func (p *progressReporter) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done += int64(len(b))
	now := time.Now()
	if now.Sub(p.lastFire) >= 200*time.Millisecond || p.done == p.total {
		p.lastFire = now
		p.cb(p.done, p.total)
	}

	return len(b), nil
}

func (p *progressReporter) report(done int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done = done
	p.lastFire = time.Now()
	p.cb(p.done, p.total)
}

func (p *progressReporter) flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cb(p.done, p.total)
}
