package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverFlatFile = "flatfile"
	DriverSQLite   = "sqlite"
)

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Data struct {
		Dir       string
		UsersFile string
		PostsFile string
	}
	Log struct {
		File  string
		Level string
	}
	Persistence struct {
		Driver     string
		SQLitePath string
		AutoSave   bool
	}
	Backup struct {
		Bucket    string
		KeyPrefix string
		Region    string
		Endpoint  string
	}
	AWS struct {
		Profile string
	}
}

// LogPath resolves the log file against the data dir unless it is absolute.
func (c Config) LogPath() string {
	if c.Log.File == "" || filepath.IsAbs(c.Log.File) {
		return c.Log.File
	}
	return filepath.Join(c.Data.Dir, c.Log.File)
}

// Load reads configuration from environment variables and optional config files.
// Paths in the optional list are tried before the working directory.
func Load(configPaths ...string) (Config, error) {
	// variables already set in the environment win over .env
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("FEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("data.dir", "data")
	v.SetDefault("data.usersfile", "users.txt")
	v.SetDefault("data.postsfile", "posts.txt")
	v.SetDefault("log.file", "logs.txt")
	v.SetDefault("log.level", "info")
	v.SetDefault("persistence.driver", DriverFlatFile)
	v.SetDefault("persistence.sqlitepath", "data/feed.db")
	v.SetDefault("persistence.autosave", true)
	v.SetDefault("backup.bucket", "")
	v.SetDefault("backup.keyprefix", "feed-engine")
	v.SetDefault("backup.region", "us-east-1")
	v.SetDefault("backup.endpoint", "")
	v.SetDefault("aws.profile", "")

	v.SetConfigName("config")
	for _, p := range configPaths {
		v.AddConfigPath(p)
	}
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	switch cfg.Persistence.Driver {
	case DriverFlatFile, DriverSQLite:
	default:
		return Config{}, fmt.Errorf("unknown persistence driver %q", cfg.Persistence.Driver)
	}

	return cfg, nil
}
