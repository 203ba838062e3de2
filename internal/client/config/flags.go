package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/ankisync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-d string   data directory
//	-s string   custom sync server URL
//	-m bool     media sync enabled
//	-z bool     gzip request bodies
//	-t int      HTTP timeout in seconds
//	-b int      local backups to keep
//	-v bool     debug logging
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-d", "-s", "-t", "-b"}, "-m", "-z", "-v")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "data directory")
	fs.StringVar(&cfg.SyncURL, "s", cfg.SyncURL, "custom sync server url")
	fs.BoolVar(&cfg.MediaEnabled, "m", cfg.MediaEnabled, "sync media")
	fs.BoolVar(&cfg.Compress, "z", cfg.Compress, "gzip request bodies")
	fs.BoolVar(&cfg.Debug, "v", cfg.Debug, "debug logging")
	timeout := fs.Int("t", int(cfg.HTTPTimeout.Seconds()), "http timeout (in seconds)")
	fs.IntVar(&cfg.BackupKeep, "b", cfg.BackupKeep, "local backups to keep")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.HTTPTimeout = time.Duration(*timeout) * time.Second
}
