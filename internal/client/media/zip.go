package media

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strconv"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/common"
	"github.com/dmitrijs2005/ankisync/internal/cryptox"
	"github.com/segmentio/encoding/json"
	"github.com/spf13/afero"
	"golang.org/x/text/unicode/norm"
)

const metaEntry = "_meta"

// ChangesZip bundles the next batch of dirty entries for uploadChanges: at
// most common.SyncZipCount entries, stopping once the data passes
// common.SyncZipSize. Files are stored as "0", "1", ... and _meta lists
// [fname, zipName] pairs, with an empty zipName for a deletion. It returns
// the zip and the entries it covers, in order, each with the checksum that
// was recorded when it was bundled; none means nothing is left to send.
func (s *Store) ChangesZip(ctx context.Context) ([]byte, []models.MediaEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty, err := s.repo.Dirty(ctx, common.SyncZipCount)
	if err != nil {
		return nil, nil, err
	}
	if len(dirty) == 0 {
		return nil, nil, nil
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	meta := make([][2]string, 0, len(dirty))
	sent := make([]models.MediaEntry, 0, len(dirty))
	var size int64

	for i, e := range dirty {
		name := norm.NFC.String(e.Fname)

		if e.Deleted() {
			meta = append(meta, [2]string{name, ""})
			sent = append(sent, models.MediaEntry{Fname: e.Fname})
		} else {
			n, err := s.addToZip(zw, strconv.Itoa(i), e.Fname)
			switch {
			case errors.Is(err, fs.ErrNotExist):
				// gone since it was recorded; send the deletion instead
				if err := s.repo.Upsert(ctx, models.MediaEntry{Fname: e.Fname, Dirty: true}); err != nil {
					return nil, nil, err
				}
				meta = append(meta, [2]string{name, ""})
				sent = append(sent, models.MediaEntry{Fname: e.Fname})
			case err != nil:
				return nil, nil, err
			default:
				meta = append(meta, [2]string{name, strconv.Itoa(i)})
				sent = append(sent, models.MediaEntry{Fname: e.Fname, Csum: e.Csum})
				size += n
			}
		}
		if size >= common.SyncZipSize {
			break
		}
	}

	b, err := json.Marshal(meta)
	if err != nil {
		return nil, nil, fmt.Errorf("encode media zip meta: %w", err)
	}
	w, err := zw.Create(metaEntry)
	if err != nil {
		return nil, nil, fmt.Errorf("create media zip meta: %w", err)
	}
	if _, err := w.Write(b); err != nil {
		return nil, nil, fmt.Errorf("write media zip meta: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, nil, fmt.Errorf("close media zip: %w", err)
	}
	return buf.Bytes(), sent, nil
}

func (s *Store) addToZip(zw *zip.Writer, zipName, fname string) (int64, error) {
	f, err := s.fs.Open(s.path(fname))
	if err != nil {
		return 0, err
	}
	defer f.Close()
	w, err := zw.Create(zipName)
	if err != nil {
		return 0, fmt.Errorf("create media zip entry for %s: %w", fname, err)
	}
	n, err := io.Copy(w, f)
	if err != nil {
		return 0, fmt.Errorf("zip %s: %w", fname, err)
	}
	return n, nil
}

// AddFilesFromZip extracts a downloadFiles bundle into the folder. Its
// _meta maps zip entry names to file names. Extracted files are recorded
// clean. It returns the number of files written.
func (s *Store) AddFilesFromZip(ctx context.Context, data []byte) (int, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("%w: bad media zip: %w", common.ErrMediaServer, err)
	}

	names := map[string]string{}
	for _, f := range zr.File {
		if f.Name != metaEntry {
			continue
		}
		b, err := readZipEntry(f, common.MaxMediaFileSize)
		if err != nil {
			return 0, err
		}
		if err := json.Unmarshal(b, &names); err != nil {
			return 0, fmt.Errorf("%w: bad media zip meta: %w", common.ErrMediaServer, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, f := range zr.File {
		if f.Name == metaEntry {
			continue
		}
		fname, ok := names[f.Name]
		if !ok {
			return count, fmt.Errorf("%w: zip entry %q missing from meta", common.ErrMediaServer, f.Name)
		}
		fname = norm.NFC.String(fname)
		if HasIllegal(fname) {
			return count, fmt.Errorf("%w: illegal media file name %q", common.ErrMediaServer, fname)
		}

		b, err := readZipEntry(f, maxFileSize)
		if err != nil {
			return count, err
		}
		if err := afero.WriteFile(s.fs, s.path(fname), b, 0o660); err != nil {
			return count, fmt.Errorf("%w: write %s: %w", common.ErrSDAccess, fname, err)
		}
		fi, err := s.fs.Stat(s.path(fname))
		if err != nil {
			return count, fmt.Errorf("%w: stat %s: %w", common.ErrSDAccess, fname, err)
		}
		e := models.MediaEntry{Fname: fname, Csum: cryptox.ChecksumBytes(b), Mtime: fi.ModTime().Unix()}
		if err := s.repo.Upsert(ctx, e); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// readZipEntry reads one entry, refusing anything over limit bytes rather
// than keeping a truncated copy.
func readZipEntry(f *zip.File, limit int64) ([]byte, error) {
	if f.UncompressedSize64 > uint64(limit) {
		return nil, fmt.Errorf("%w: zip entry %s is %d bytes", common.ErrMediaServer, f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open zip entry %s: %w", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(io.LimitReader(rc, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read zip entry %s: %w", f.Name, err)
	}
	if int64(len(b)) > limit {
		return nil, fmt.Errorf("%w: zip entry %s is over %d bytes", common.ErrMediaServer, f.Name, limit)
	}
	return b, nil
}
