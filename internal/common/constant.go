// Package common contains protocol constants, the sync error taxonomy and
// small helpers shared by the client packages.
package common

const (
	// SyncVersion is the collection sync protocol version sent with meta.
	SyncVersion = 10

	// ChunkSize is the number of rows streamed per chunk.
	ChunkSize = 250

	// MaxClockSkew is the largest tolerated difference between server and
	// client wall clocks, in seconds.
	MaxClockSkew = 300

	// SyncZipCount and SyncZipSize bound a single media zip bundle.
	SyncZipCount = 25
	SyncZipSize  = 2560 * 1024

	// MaxMediaFileSize is the largest media file considered for sync.
	MaxMediaFileSize = 100 * 1024 * 1024

	// StatusOK is the plain response body of a successful full upload and
	// of a passing media sanity check.
	StatusOK = "OK"

	// UpgradeRequiredBody is returned by the server instead of a collection
	// when the client is too old to read it.
	UpgradeRequiredBody = "upgradeRequired"
)
