package client

import (
	"context"
	"io"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
)

// CollectionServer is the collection sync endpoint, one method per verb.
type CollectionServer interface {
	HostKey(ctx context.Context, user, password string) (string, error)
	Meta(ctx context.Context) (*MetaResponse, error)
	Start(ctx context.Context, minUsn int, localIsNewer bool, graves models.Graves) (models.Graves, error)
	ApplyChanges(ctx context.Context, changes models.Changes) (models.Changes, error)
	Chunk(ctx context.Context) (models.Chunk, error)
	ApplyChunk(ctx context.Context, chunk models.Chunk) error
	SanityCheck(ctx context.Context, counts models.SanityCounts) (*SanityResponse, error)
	Finish(ctx context.Context) (int64, error)
	Abort(ctx context.Context) error

	// Download streams the full collection into dst.
	Download(ctx context.Context, dst io.Writer) (int64, error)
	// Upload sends the full collection and returns the server's reply.
	Upload(ctx context.Context, src io.Reader) (string, error)
}

// MediaServer is the media sync endpoint.
type MediaServer interface {
	Begin(ctx context.Context) (*BeginResponse, error)
	MediaChanges(ctx context.Context, lastUsn int) ([]models.MediaChange, error)
	// DownloadFiles returns a zip holding the requested files.
	DownloadFiles(ctx context.Context, files []string) ([]byte, error)
	// UploadChanges sends a zip built by the media store and returns the
	// number of entries processed and the server's new last USN.
	UploadChanges(ctx context.Context, zip []byte) (processed, lastUsn int, err error)
	MediaSanity(ctx context.Context, localCount int64) (string, error)
}
