package syncer

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/ankisync/internal/client/collection"
	"github.com/dmitrijs2005/ankisync/internal/client/models"
	"github.com/dmitrijs2005/ankisync/internal/client/repositories/objects"
	"github.com/segmentio/encoding/json"
)

func (s *Syncer) smallObjects(ctx context.Context, st *collection.Store, sess *session, conf json.RawMessage, crt int64) error {
	s.stage(StageObjects)
	local, err := localChanges(ctx, st.Objects, sess.maxUsn)
	if err != nil {
		return dbErr(err)
	}
	if sess.lnewer {
		local.Conf = conf
		local.Crt = &crt
	}

	if err := s.checkpoint(ctx); err != nil {
		return err
	}
	remote, err := s.server.ApplyChanges(ctx, local)
	if err != nil {
		return err
	}
	if err := mergeObjects(ctx, st.Objects, remote, sess.maxUsn); err != nil {
		return err
	}

	if len(remote.Conf) == 0 && remote.Crt == nil {
		return nil
	}
	h, err := st.Header(ctx)
	if err != nil {
		return dbErr(err)
	}
	if len(remote.Conf) > 0 {
		h.Conf = remote.Conf
	}
	if remote.Crt != nil {
		h.Crt = *remote.Crt
	}
	return dbErr(st.SaveHeader(ctx, h))
}

// localChanges collects the unsynced objects, stamped with usn both in the
// payload and in storage.
func localChanges(ctx context.Context, repo objects.Repository, usn int) (models.Changes, error) {
	ch := models.Changes{Tags: []string{}}

	ms, err := repo.DirtyModels(ctx)
	if err != nil {
		return ch, err
	}
	for i := range ms {
		ms[i].Usn = usn
	}
	ch.Models = ms

	decks, err := repo.DirtyDecks(ctx)
	if err != nil {
		return ch, err
	}
	for i := range decks {
		decks[i].Usn = usn
	}
	confs, err := repo.DirtyDeckConfigs(ctx)
	if err != nil {
		return ch, err
	}
	for i := range confs {
		confs[i].Usn = usn
	}
	ch.Decks = models.DeckChanges{Decks: decks, Configs: confs}

	tags, err := repo.DirtyTags(ctx)
	if err != nil {
		return ch, err
	}
	ch.Tags = append(ch.Tags, tags...)

	return ch, repo.StampDirty(ctx, usn)
}

// mergeObjects applies the server's objects last-write-wins by mod. A newer
// note type whose field or template count differs from the local one means
// the schema changed without a full sync; the merge stops with
// errSchemaDrift.
func mergeObjects(ctx context.Context, repo objects.Repository, remote models.Changes, usn int) error {
	for i := range remote.Models {
		r := &remote.Models[i]
		l, err := repo.GetModel(ctx, r.ID)
		if err != nil {
			return dbErr(err)
		}
		if l != nil && r.Mod <= l.Mod {
			continue
		}
		if l != nil && (len(l.Fields) != len(r.Fields) || len(l.Templates) != len(r.Templates)) {
			return fmt.Errorf("%w: model %d", errSchemaDrift, r.ID)
		}
		if err := repo.SaveModel(ctx, r); err != nil {
			return dbErr(err)
		}
	}

	for i := range remote.Decks.Decks {
		r := &remote.Decks.Decks[i]
		l, err := repo.GetDeck(ctx, r.ID)
		if err != nil {
			return dbErr(err)
		}
		if l == nil || r.Mod > l.Mod {
			if err := repo.SaveDeck(ctx, r); err != nil {
				return dbErr(err)
			}
		}
	}

	for i := range remote.Decks.Configs {
		r := &remote.Decks.Configs[i]
		l, err := repo.GetDeckConfig(ctx, r.ID)
		if err != nil {
			return dbErr(err)
		}
		if l == nil || r.Mod > l.Mod {
			if err := repo.SaveDeckConfig(ctx, r); err != nil {
				return dbErr(err)
			}
		}
	}

	return dbErr(repo.RegisterTags(ctx, remote.Tags, usn))
}
