package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/records"
)

// cursor pages through the unsynced rows of one table by id.
type cursor struct {
	table records.Table
	after int64
}

func newQueue() []*cursor {
	return []*cursor{{table: records.Revlog}, {table: records.Cards}, {table: records.Notes}}
}

// next adds up to limit rows to ch, stamped with usn, and returns how many
// it added.
func (c *cursor) next(ctx context.Context, repo records.Repository, limit, usn int, ch *models.Chunk) (int, error) {
	switch c.table {
	case records.Revlog:
		rows, err := repo.DirtyRevlog(ctx, c.after, limit)
		if err != nil {
			return 0, err
		}
		for i := range rows {
			rows[i].Usn = usn
		}
		if len(rows) > 0 {
			c.after = rows[len(rows)-1].ID
		}
		ch.Revlog = rows
		return len(rows), nil

	case records.Cards:
		rows, err := repo.DirtyCards(ctx, c.after, limit)
		if err != nil {
			return 0, err
		}
		for i := range rows {
			rows[i].Usn = usn
		}
		if len(rows) > 0 {
			c.after = rows[len(rows)-1].ID
		}
		ch.Cards = rows
		return len(rows), nil

	case records.Notes:
		rows, err := repo.DirtyNotes(ctx, c.after, limit)
		if err != nil {
			return 0, err
		}
		for i := range rows {
			rows[i].Usn = usn
		}
		if len(rows) > 0 {
			c.after = rows[len(rows)-1].ID
		}
		ch.Notes = rows
		return len(rows), nil
	}
	return 0, fmt.Errorf("unknown table %q", c.table)
}

// nextChunk fills one chunk of at most size rows from the work queue. A
// table leaves the queue once a page comes back short, and its remaining
// usn -1 rows are stamped with maxUsn.
func nextChunk(ctx context.Context, repo records.Repository, sess *session, size int) (models.Chunk, error) {
	var ch models.Chunk
	left := size
	for len(sess.queue) > 0 && left > 0 {
		cur := sess.queue[0]
		n, err := cur.next(ctx, repo, left, sess.maxUsn, &ch)
		if err != nil {
			return ch, err
		}
		if n < left {
			if err := repo.StampDirty(ctx, cur.table, sess.maxUsn); err != nil {
				return ch, err
			}
			sess.queue = sess.queue[1:]
		}
		left -= n
	}
	ch.Done = len(sess.queue) == 0
	return ch, nil
}

func applyChunk(ctx context.Context, repo records.Repository, ch models.Chunk) error {
	if _, err := repo.MergeRevlog(ctx, ch.Revlog); err != nil {
		return err
	}
	if _, err := repo.MergeCards(ctx, ch.Cards); err != nil {
		return err
	}
	_, err := repo.MergeNotes(ctx, ch.Notes)
	return err
}
