// Package library holds the user's bookmarks and offline downloads. Both
// are sets of technique ids kept by a reconcile.Collection; downloads also
// carry the technique content needed to read a sheet offline.
package library

import (
	"context"
	"time"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/reconcile"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

const (
	BookmarksTable = "bookmarks"
	DownloadsTable = "downloads"
)

// Finder resolves technique content by id.
type Finder interface {
	Find(ctx context.Context, id string) (models.Technique, bool, error)
}

// DownloadGate caps the number of downloads.
type DownloadGate interface {
	CanDownload(current int) error
}

type Options struct {
	TTL     time.Duration
	Timeout time.Duration
}

// idCodec stores a bare technique id in a (user_id, technique_id) row.
type idCodec struct{}

func (idCodec) Key(id string) string { return id }

func (idCodec) ToRow(id, userID string) gateway.Row {
	return gateway.Row{"user_id": userID, "technique_id": id}
}

func (idCodec) FromRow(r gateway.Row) (string, error) {
	id := r.String("technique_id")
	if id == "" {
		return "", errMissingID
	}
	return id, nil
}

type Library struct {
	Bookmarks *Bookmarks
	Downloads *Downloads
}

func New(s *store.Store, gw gateway.Gateway, id reconcile.Identity, catalog Finder, gate DownloadGate, opts Options, l logging.Logger) *Library {
	if l == nil {
		l = logging.Discard()
	}
	return &Library{
		Bookmarks: NewBookmarks(s, gw, id, opts, l),
		Downloads: NewDownloads(s, gw, id, catalog, gate, opts, l),
	}
}
