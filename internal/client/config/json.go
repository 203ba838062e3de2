package config

import (
	"os"

	"github.com/dmitrijs2005/ankisync/internal/flagx"
	"github.com/dmitrijs2005/ankisync/internal/timex"
	"github.com/segmentio/encoding/json"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. Pointer and
// zero-valued fields left out of the file keep the value from defaults.
type JsonConfig struct {
	DataDir      string         `json:"data_dir"`
	SyncURL      string         `json:"sync_url"`
	MediaEnabled *bool          `json:"media_enabled"`
	Compress     *bool          `json:"compress"`
	HTTPTimeout  timex.Duration `json:"http_timeout"`
	BackupKeep   *int           `json:"backup_keep"`
	Debug        bool           `json:"debug"`

	S3Bucket    string `json:"s3_bucket"`
	S3Region    string `json:"s3_region"`
	S3Endpoint  string `json:"s3_endpoint"`
	S3AccessKey string `json:"s3_access_key"`
	S3SecretKey string `json:"s3_secret_key"`
}

// parseJson overlays Config with values loaded from a JSON file named by
// -c or -config. Without either flag nothing changes. Read and decode
// errors panic.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags(os.Args[1:])
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.DataDir != "" {
		cfg.DataDir = jc.DataDir
	}
	if jc.SyncURL != "" {
		cfg.SyncURL = jc.SyncURL
	}
	if jc.MediaEnabled != nil {
		cfg.MediaEnabled = *jc.MediaEnabled
	}
	if jc.Compress != nil {
		cfg.Compress = *jc.Compress
	}
	if jc.HTTPTimeout.Duration > 0 {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
	if jc.BackupKeep != nil {
		cfg.BackupKeep = *jc.BackupKeep
	}
	cfg.Debug = cfg.Debug || jc.Debug
	cfg.S3 = S3Config{
		Bucket:    jc.S3Bucket,
		Region:    jc.S3Region,
		Endpoint:  jc.S3Endpoint,
		AccessKey: jc.S3AccessKey,
		SecretKey: jc.S3SecretKey,
	}
}
