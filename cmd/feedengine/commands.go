package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"feed-engine/internal/clock"
	"feed-engine/internal/domain"
	"feed-engine/internal/storage"
)

func asFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "as",
		Usage:    "username acting on the store",
		Required: true,
	}
}

func commands(e *env) []*cli.Command {
	return []*cli.Command{
		{
			Name:      "signup",
			Usage:     "create a user",
			ArgsUsage: "<username>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "display name, defaults to the username"},
				&cli.StringFlag{Name: "bio"},
			},
			Action: func(c *cli.Context) error {
				u, err := e.svc.SignUp(c.Context, c.Args().First(), c.String("name"), c.String("bio"))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Account created successfully! Your ID is %s\n", u.ID)
				return nil
			},
		},
		{
			Name:      "login",
			Usage:     "look up a user by username",
			ArgsUsage: "<username>",
			Action: func(c *cli.Context) error {
				u, err := e.svc.Login(c.Context, c.Args().First())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Welcome back, %s!\n", u.Name)
				return nil
			},
		},
		{
			Name:      "post",
			Usage:     "publish a post",
			ArgsUsage: "<content...>",
			Flags:     []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				p, err := e.svc.CreatePost(c.Context, u.ID, strings.Join(c.Args().Slice(), " "))
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Post %s created\n", p.ID)
				return nil
			},
		},
		{
			Name:      "edit-post",
			Usage:     "replace the content of one of your posts",
			ArgsUsage: "<post-id> <content...>",
			Flags:     []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				args := c.Args().Slice()
				if len(args) < 2 {
					return cli.Exit("post id and content are required", 2)
				}
				p, err := e.svc.EditPost(c.Context, u.ID, args[0], strings.Join(args[1:], " "))
				if err != nil {
					return err
				}
				printPosts(c.App.Writer, []domain.Post{*p})
				return nil
			},
		},
		{
			Name:  "posts",
			Usage: "list your posts",
			Flags: []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				posts, err := e.svc.MyPosts(c.Context, u.ID)
				if err != nil {
					return err
				}
				printPosts(c.App.Writer, posts)
				return nil
			},
		},
		{
			Name:  "feed",
			Usage: "show posts from the users you follow",
			Flags: []cli.Flag{
				asFlag(),
				&cli.StringFlag{Name: "sort", Value: "recent", Usage: "recent or likes"},
			},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				posts, err := e.svc.Feed(c.Context, u.ID)
				if err != nil {
					return err
				}
				switch c.String("sort") {
				case "recent":
				case "likes":
					var feed domain.Feed
					feed.AddAll(posts)
					feed.SortByLikes(true)
					posts = feed.Posts()
				default:
					return cli.Exit(fmt.Sprintf("unknown sort %q", c.String("sort")), 2)
				}
				if len(posts) == 0 {
					fmt.Fprintln(c.App.Writer, "Your feed is empty. Follow someone to see their posts.")
					return nil
				}
				printPosts(c.App.Writer, posts)
				return nil
			},
		},
		{
			Name:      "follow",
			Usage:     "follow a user",
			ArgsUsage: "<username>",
			Flags:     []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				if err := e.svc.Follow(c.Context, u.ID, c.Args().First()); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "You are now following %s\n", c.Args().First())
				return nil
			},
		},
		{
			Name:      "unfollow",
			Usage:     "stop following a user",
			ArgsUsage: "<username>",
			Flags:     []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				if err := e.svc.Unfollow(c.Context, u.ID, c.Args().First()); err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "You unfollowed %s\n", c.Args().First())
				return nil
			},
		},
		{
			Name:      "like",
			Usage:     "like a post",
			ArgsUsage: "<post-id>",
			Action: func(c *cli.Context) error {
				p, err := e.svc.Like(c.Context, c.Args().First())
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "Post %s now has %d likes\n", p.ID, p.Likes)
				return nil
			},
		},
		{
			Name:      "profile",
			Usage:     "show a user profile",
			ArgsUsage: "<username>",
			Action: func(c *cli.Context) error {
				u, err := e.svc.Login(c.Context, c.Args().First())
				if err != nil {
					return err
				}
				printProfile(c.App.Writer, u)
				return nil
			},
		},
		{
			Name:      "edit-name",
			Usage:     "change your display name",
			ArgsUsage: "<name...>",
			Flags:     []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				u, err = e.svc.EditName(c.Context, u.ID, strings.Join(c.Args().Slice(), " "))
				if err != nil {
					return err
				}
				printProfile(c.App.Writer, u)
				return nil
			},
		},
		{
			Name:      "edit-bio",
			Usage:     "change your bio",
			ArgsUsage: "<bio...>",
			Flags:     []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				u, err = e.svc.EditBio(c.Context, u.ID, strings.Join(c.Args().Slice(), " "))
				if err != nil {
					return err
				}
				printProfile(c.App.Writer, u)
				return nil
			},
		},
		{
			Name:  "stats",
			Usage: "show store statistics",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "as", Usage: "include figures for this username"},
			},
			Action: func(c *cli.Context) error {
				var userID string
				if c.String("as") != "" {
					u, err := e.actor(c)
					if err != nil {
						return err
					}
					userID = u.ID
				}
				stats, err := e.svc.Stats(c.Context, userID)
				if err != nil {
					return err
				}
				w := c.App.Writer
				fmt.Fprintf(w, "Total users: %d\nTotal posts: %d\n", stats.Users, stats.Posts)
				if userID != "" {
					fmt.Fprintf(w, "Your posts: %d\nFollowers: %d\nFollowing: %d\n", stats.OwnPosts, stats.Followers, stats.Following)
				}
				return nil
			},
		},
		{
			Name:  "notifications",
			Usage: "count posts published by followed users during this session",
			Flags: []cli.Flag{asFlag()},
			Action: func(c *cli.Context) error {
				u, err := e.actor(c)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "You have %d new post notifications\n", e.svc.Notifications(u.ID))
				return nil
			},
		},
		{
			Name:      "batch",
			Usage:     "run one command per line from a file, or stdin, in a single session",
			ArgsUsage: "[file]",
			Action: func(c *cli.Context) error {
				return e.runBatch(c)
			},
		},
		{
			Name:  "users",
			Usage: "list every user",
			Action: func(c *cli.Context) error {
				for _, u := range e.svc.Users(c.Context) {
					fmt.Fprintf(c.App.Writer, "%s  @%s  %s\n", u.ID, u.Username, u.Name)
				}
				return nil
			},
		},
		{
			Name:  "backup",
			Usage: "upload the persisted snapshot to object storage",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "list", Usage: "list existing backups instead of uploading"},
			},
			Action: func(c *cli.Context) error {
				svc, err := buildStorage(c.Context, e.cfg, e.logger)
				if err != nil {
					return err
				}
				if c.Bool("list") {
					objects, err := svc.ListObjects(c.Context, e.cfg.Backup.Bucket, e.cfg.Backup.KeyPrefix)
					if err != nil {
						return err
					}
					for _, obj := range objects {
						fmt.Fprintf(c.App.Writer, "%s\t%d\n", obj.Key, obj.Size)
					}
					return nil
				}

				if err := e.svc.Save(c.Context); err != nil {
					return fmt.Errorf("save before backup: %w", err)
				}
				prefix := strings.Trim(e.cfg.Backup.KeyPrefix, "/") + "/" + time.Now().UTC().Format("20060102T150405Z")
				location, err := svc.UploadFiles(c.Context, e.repo.Files(), storage.UploadOptions{
					Bucket:    e.cfg.Backup.Bucket,
					KeyPrefix: prefix,
					ProgressCallback: func(done, total int64) {
						e.logger.Debugf("backup progress %d/%d bytes", done, total)
					},
				})
				if err != nil {
					return err
				}
				e.logger.Infof("Backup uploaded to %s", location)
				fmt.Fprintln(c.App.Writer, location)
				return nil
			},
		},
	}
}

var errNoActor = errors.New("--as is required")

// actor resolves the --as username to the acting user.
func (e *env) actor(c *cli.Context) (*domain.User, error) {
	username := c.String("as")
	if username == "" {
		return nil, errNoActor
	}
	u, err := e.svc.Login(c.Context, username)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", username, err)
	}
	return u, nil
}

func printPosts(w io.Writer, posts []domain.Post) {
	for _, p := range posts {
		fmt.Fprintf(w, "[%s] %s (%s)\n  %s\n  likes: %d\n", p.ID, p.AuthorID, clock.Format(p.Timestamp), p.Content, p.Likes)
	}
}

func printProfile(w io.Writer, u *domain.User) {
	fmt.Fprintf(w, "%s (@%s) %s\n", u.Name, u.Username, u.ID)
	if u.Bio != "" {
		fmt.Fprintf(w, "%s\n", u.Bio)
	}
	fmt.Fprintf(w, "Followers: %d  Following: %d\n", u.FollowerCount(), u.FollowingCount())
}
