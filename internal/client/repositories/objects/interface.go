// Package objects stores the small collection objects: note types
// (models), decks, deck options and tags. Each object is kept as its JSON
// document next to copies of its id, mod and usn so dirty lookups do not
// need to parse JSON.
package objects

import (
	"context"

	"github.com/dmitrijs2005/ankisync/internal/client/models"
)

// Kind names one of the JSON object tables.
type Kind string

const (
	Models      Kind = "models"
	Decks       Kind = "decks"
	DeckConfigs Kind = "deck_config"
)

type Repository interface {
	Models(ctx context.Context) ([]models.Model, error)
	// GetModel, GetDeck and GetDeckConfig return nil, nil when missing.
	GetModel(ctx context.Context, id int64) (*models.Model, error)
	SaveModel(ctx context.Context, m *models.Model) error
	DirtyModels(ctx context.Context) ([]models.Model, error)

	Decks(ctx context.Context) ([]models.Deck, error)
	GetDeck(ctx context.Context, id int64) (*models.Deck, error)
	SaveDeck(ctx context.Context, d *models.Deck) error
	DeleteDeck(ctx context.Context, id int64) error
	DirtyDecks(ctx context.Context) ([]models.Deck, error)

	DeckConfigs(ctx context.Context) ([]models.DeckConfig, error)
	GetDeckConfig(ctx context.Context, id int64) (*models.DeckConfig, error)
	SaveDeckConfig(ctx context.Context, c *models.DeckConfig) error
	DirtyDeckConfigs(ctx context.Context) ([]models.DeckConfig, error)

	Tags(ctx context.Context) ([]models.Tag, error)
	DirtyTags(ctx context.Context) ([]string, error)
	// RegisterTags records tags that are not known yet with the given usn.
	// Known tags keep their usn.
	RegisterTags(ctx context.Context, tags []string, usn int) error

	// StampDirty sets usn on every object and tag with usn = -1.
	StampDirty(ctx context.Context, usn int) error
	// ResetUsn sets usn on every object and tag.
	ResetUsn(ctx context.Context, usn int) error
	Count(ctx context.Context, kind Kind) (int64, error)
	// CountDirty counts objects and tags with usn = -1.
	CountDirty(ctx context.Context) (int64, error)
}
