package library

import (
	"context"
	"errors"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/reconcile"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

var errMissingID = errors.New("row without technique_id")

type Bookmarks struct {
	coll *reconcile.Collection[string]
}

func NewBookmarks(s *store.Store, gw gateway.Gateway, id reconcile.Identity, opts Options, l logging.Logger) *Bookmarks {
	return &Bookmarks{coll: reconcile.New[string](s, gw, id, idCodec{}, reconcile.Options{
		Name:      "bookmarks",
		Table:     BookmarksTable,
		LocalKey:  store.KeyBookmarks,
		KeyColumn: "technique_id",
		OrderBy:   "created_at",
		TTL:       opts.TTL,
		Timeout:   opts.Timeout,
	}, l)}
}

func (b *Bookmarks) Mode() reconcile.Mode { return b.coll.Mode() }

func (b *Bookmarks) IDs(ctx context.Context) ([]string, error) {
	return b.coll.List(ctx)
}

func (b *Bookmarks) Contains(ctx context.Context, id string) (bool, error) {
	return b.coll.Contains(ctx, id)
}

// Toggle flips the bookmark and reports whether id is bookmarked afterwards.
func (b *Bookmarks) Toggle(ctx context.Context, id string) (bool, error) {
	return b.coll.Toggle(ctx, id, reconcile.ToggleEffects{})
}

func (b *Bookmarks) Add(ctx context.Context, id string) error {
	return b.coll.Put(ctx, id)
}

func (b *Bookmarks) Remove(ctx context.Context, id string) error {
	return b.coll.Remove(ctx, id)
}

func (b *Bookmarks) Clear(ctx context.Context) error {
	return b.coll.Clear(ctx)
}

// ImportLocal copies bookmarks made while signed out into the account.
func (b *Bookmarks) ImportLocal(ctx context.Context) (int, error) {
	return b.coll.ImportLocal(ctx)
}

func (b *Bookmarks) Invalidate() { b.coll.Invalidate() }
