// Package config loads runtime configuration for the ankisync CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// A leading "~" in the data directory is expanded to the user's home.
//
// Supported flags
//
//	-d string   data directory (default ~/.ankisync)
//	-s string   custom sync server URL
//	-m bool     media sync enabled (default true)
//	-z bool     gzip request bodies (default true)
//	-t int      HTTP timeout (seconds)
//	-b int      local backups kept before a full download
//	-v bool     debug logging
//
// # JSON schema
//
// The JSON loader uses timex.Duration for intervals, so values can be either
// strings like "90s" or integer nanoseconds. S3 backup settings are only
// read from JSON:
//
//	{
//	  "data_dir": "~/anki",
//	  "sync_url": "https://sync.example.com/sync/",
//	  "media_enabled": true,
//	  "http_timeout": "90s",
//	  "backup_keep": 4,
//	  "s3_bucket": "anki-backups",
//	  "s3_region": "eu-central-1"
//	}
//
// Note: This package does not read environment variables directly; use the
// JSON file or flags to configure values.
package config
