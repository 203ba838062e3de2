package config

import (
	"path/filepath"
	"time"

	homedir "github.com/mitchellh/go-homedir"
)

// S3Config selects an S3 bucket for collection backups. It is read from
// JSON only; an empty Bucket disables S3 backups.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// Config holds runtime settings for the ankisync CLI.
//
// Fields:
//   - DataDir: holds the collection, the media folder and index, backups and the log.
//   - SyncURL: custom sync server; empty keeps the stored choice.
//   - MediaEnabled: run a media sync after each collection sync.
//   - Compress: gzip request bodies.
//   - HTTPTimeout: per-request timeout of the HTTP client.
//   - BackupKeep: local backups kept before a full download.
type Config struct {
	DataDir      string
	SyncURL      string
	MediaEnabled bool
	Compress     bool
	HTTPTimeout  time.Duration
	BackupKeep   int
	Debug        bool
	S3           S3Config
}

const defaultDataDir = "~/.ankisync"

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DataDir = defaultDataDir
	c.MediaEnabled = true
	c.Compress = true
	c.HTTPTimeout = 5 * time.Minute
	c.BackupKeep = 8
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	cfg.DataDir = expand(cfg.DataDir)
	return cfg
}

func expand(dir string) string {
	p, err := homedir.Expand(dir)
	if err != nil {
		return filepath.Clean(dir)
	}
	return p
}

func (c *Config) CollectionPath() string { return filepath.Join(c.DataDir, "collection.anki2") }

func (c *Config) MediaDir() string { return filepath.Join(c.DataDir, "collection.media") }

func (c *Config) MediaDBPath() string { return filepath.Join(c.DataDir, "collection.media.db") }

func (c *Config) BackupDir() string { return filepath.Join(c.DataDir, "backups") }

func (c *Config) LogPath() string { return filepath.Join(c.DataDir, "ankisync.log") }
