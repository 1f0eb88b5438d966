package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"feed-engine/internal/clock"
	"feed-engine/internal/config"
	"feed-engine/internal/logging"
	"feed-engine/internal/repository"
	"feed-engine/internal/repository/flatfile"
	"feed-engine/internal/repository/sqlite"
	"feed-engine/internal/service"
	"feed-engine/internal/storage"
	"feed-engine/internal/store"
)

// env holds what every command needs once the store has been loaded.
type env struct {
	cfg     config.Config
	logger  *logrus.Logger
	repo    repository.SnapshotRepository
	svc     service.FeedService
	closers []io.Closer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := &env{}
	app := newApp(e)
	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp(e *env) *cli.App {
	return &cli.App{
		Name:  "feedengine",
		Usage: "local social feed: users, posts, follows and feeds kept in flat files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config-dir",
				Usage: "extra directory searched for config.{yaml,json,toml}",
			},
			&cli.StringFlag{
				Name:    "data-dir",
				Usage:   "overrides data.dir",
				EnvVars: []string{"FEED_DATA_DIR"},
			},
		},
		Before: func(c *cli.Context) error {
			return e.open(c)
		},
		After: func(c *cli.Context) error {
			e.close()
			return nil
		},
		Commands: commands(e),
	}
}

func (e *env) open(c *cli.Context) error {
	var paths []string
	if dir := c.String("config-dir"); dir != "" {
		paths = append(paths, dir)
	}
	cfg, err := config.Load(paths...)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dir := c.String("data-dir"); dir != "" {
		cfg.Data.Dir = dir
	}
	e.cfg = cfg

	logger, logFile, err := logging.New(logging.Config{
		File:  cfg.LogPath(),
		Level: cfg.Log.Level,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	e.logger = logger
	e.closers = append(e.closers, logFile)

	repo, err := e.buildRepository()
	if err != nil {
		return err
	}
	if err := repo.Init(c.Context); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	e.repo = repo

	st := store.New(repo, logger)
	e.svc = service.NewFeedService(st, clock.System{}, cfg.Persistence.AutoSave, logger)
	stats, err := e.svc.Load(c.Context)
	if err != nil {
		logger.Warnf("load data: %v", err)
	}
	if stats.Repaired > 0 {
		logger.Warnf("repaired %d one-sided follow edges", stats.Repaired)
	}
	return nil
}

func (e *env) buildRepository() (repository.SnapshotRepository, error) {
	cfg := e.cfg
	switch cfg.Persistence.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(cfg.Persistence.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		e.closers = append(e.closers, dbCloser{db})
		return sqlite.NewSnapshotRepository(db, cfg.Persistence.SQLitePath, e.logger), nil
	default:
		return flatfile.NewRepository(cfg.Data.Dir, cfg.Data.UsersFile, cfg.Data.PostsFile, e.logger), nil
	}
}

func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i].Close(); err != nil && e.logger != nil {
			e.logger.Warnf("close: %v", err)
		}
	}
	e.closers = nil
}

type dbCloser struct{ db *sql.DB }

func (d dbCloser) Close() error { return d.db.Close() }

func buildStorage(ctx context.Context, cfg config.Config, logger logrus.FieldLogger) (storage.Service, error) {
	if cfg.Backup.Bucket == "" {
		return nil, storage.ErrBucketRequired
	}

	loadOpts := []func(*awscfg.LoadOptions) error{
		awscfg.WithRegion(cfg.Backup.Region),
	}
	if cfg.AWS.Profile != "" {
		loadOpts = append(loadOpts, awscfg.WithSharedConfigProfile(cfg.AWS.Profile))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Backup.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Backup.Endpoint)
			o.UsePathStyle = true
		}
	})
	logger.Infof("using s3 bucket %s (region %s)", cfg.Backup.Bucket, cfg.Backup.Region)
	return storage.NewS3Service(client), nil
}
