package library

import (
	"context"
	"fmt"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/reconcile"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

type content = map[string]models.Technique

// Downloads keeps the downloaded id set and its content cache in step: an id
// is listed only while its content is stored.
//
// Local mode writes both keys in one transaction. Remote mode writes content
// before the id and rolls it back when the remote write fails; removal and
// clear drop content only after the remote side confirmed. Each remote user
// has their own content key so local-mode downloads stay intact.
type Downloads struct {
	coll    *reconcile.Collection[string]
	store   *store.Store
	catalog Finder
	gate    DownloadGate
	logger  logging.Logger
}

func NewDownloads(s *store.Store, gw gateway.Gateway, id reconcile.Identity, catalog Finder, gate DownloadGate, opts Options, l logging.Logger) *Downloads {
	if l == nil {
		l = logging.Discard()
	}
	return &Downloads{
		coll: reconcile.New[string](s, gw, id, idCodec{}, reconcile.Options{
			Name:      "downloads",
			Table:     DownloadsTable,
			LocalKey:  store.KeyDownloads,
			KeyColumn: "technique_id",
			OrderBy:   "created_at",
			TTL:       opts.TTL,
			Timeout:   opts.Timeout,
		}, l),
		store:   s,
		catalog: catalog,
		gate:    gate,
		logger:  l.With("module", "downloads"),
	}
}

func contentKey(uid string, remote bool) string {
	if !remote {
		return store.KeyOfflineContent
	}
	return store.RemoteCacheKey(store.KeyOfflineContent, uid)
}

func (d *Downloads) activeContentKey() string {
	uid, remote := d.coll.RemoteUser()
	return contentKey(uid, remote)
}

func (d *Downloads) Mode() reconcile.Mode { return d.coll.Mode() }

// Add downloads t. Adding an id that is already downloaded refreshes its
// content and does not count against the limit.
func (d *Downloads) Add(ctx context.Context, t models.Technique) error {
	ids, err := d.coll.List(ctx)
	if err != nil {
		return err
	}
	if !contains(ids, t.ID) && d.gate != nil {
		if err := d.gate.CanDownload(len(ids)); err != nil {
			return err
		}
	}

	key := d.activeContentKey()
	var prev *models.Technique
	eff := reconcile.Effect{
		Local: func(ctx context.Context, tx *store.Tx) error {
			c := store.Load(ctx, tx, store.KeyOfflineContent, content{})
			c[t.ID] = t
			return tx.Set(ctx, store.KeyOfflineContent, c)
		},
		Before: func(ctx context.Context) error {
			c := store.Load(ctx, d.store, key, content{})
			if old, ok := c[t.ID]; ok {
				prev = &old
			}
			c[t.ID] = t
			return d.store.Set(ctx, key, c)
		},
		Undo: func(ctx context.Context) error {
			c := store.Load(ctx, d.store, key, content{})
			if prev != nil {
				c[t.ID] = *prev
			} else {
				delete(c, t.ID)
			}
			return d.store.Set(ctx, key, c)
		},
	}
	if err := d.coll.Put(ctx, t.ID, eff); err != nil {
		return fmt.Errorf("download %s: %w", t.ID, err)
	}
	d.logger.Debug(ctx, "technique downloaded", "id", t.ID, "mode", d.coll.Mode().String())
	return nil
}

// Remove deletes the id first, then its content.
func (d *Downloads) Remove(ctx context.Context, id string) error {
	key := d.activeContentKey()
	drop := func(ctx context.Context, rw store.ReadWriter) error {
		c := store.Load(ctx, rw, key, content{})
		delete(c, id)
		return rw.Set(ctx, key, c)
	}
	err := d.coll.Remove(ctx, id, reconcile.Effect{
		Local: func(ctx context.Context, tx *store.Tx) error { return drop(ctx, tx) },
		After: func(ctx context.Context) error { return drop(ctx, d.store) },
	})
	if err != nil {
		return fmt.Errorf("remove download %s: %w", id, err)
	}
	return nil
}

// Clear removes every download. Remotely the rows go first and the content
// cache is only dropped once that is confirmed.
func (d *Downloads) Clear(ctx context.Context) error {
	key := d.activeContentKey()
	err := d.coll.Clear(ctx, reconcile.Effect{
		Local: func(ctx context.Context, tx *store.Tx) error { return tx.Delete(ctx, key) },
		After: func(ctx context.Context) error { return d.store.Delete(ctx, key) },
	})
	if err != nil {
		return fmt.Errorf("clear downloads: %w", err)
	}
	return nil
}

func (d *Downloads) IDs(ctx context.Context) ([]string, error) {
	items, err := d.List(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(items))
	for i, t := range items {
		ids[i] = t.ID
	}
	return ids, nil
}

func (d *Downloads) Contains(ctx context.Context, id string) (bool, error) {
	_, ok, err := d.Get(ctx, id)
	return ok, err
}

// Get returns the downloaded content of id.
func (d *Downloads) Get(ctx context.Context, id string) (models.Technique, bool, error) {
	items, err := d.List(ctx)
	if err != nil {
		return models.Technique{}, false, err
	}
	for _, t := range items {
		if t.ID == id {
			return t, true, nil
		}
	}
	return models.Technique{}, false, nil
}

// List returns the downloaded techniques in the order they were downloaded
// (the collection's created_at order). Content without an id
// is pruned; ids without content are filled from the catalog, or left out of
// the result when the catalog does not know them.
func (d *Downloads) List(ctx context.Context) ([]models.Technique, error) {
	ids, err := d.coll.List(ctx)
	if err != nil {
		return nil, err
	}
	key := d.activeContentKey()
	c := store.Load(ctx, d.store, key, content{})

	dirty := false
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	for id := range c {
		if _, ok := wanted[id]; !ok {
			delete(c, id)
			dirty = true
		}
	}

	out := make([]models.Technique, 0, len(ids))
	for _, id := range ids {
		t, ok := c[id]
		if !ok {
			t, ok = d.resolve(ctx, id)
			if !ok {
				continue
			}
			c[id] = t
			dirty = true
		}
		out = append(out, t)
	}

	if dirty {
		if err := d.store.Set(ctx, key, c); err != nil {
			d.logger.Warn(ctx, "persisting reconciled content failed", "error", err)
		}
	}
	return out, nil
}

func (d *Downloads) resolve(ctx context.Context, id string) (models.Technique, bool) {
	if d.catalog == nil {
		d.logger.Warn(ctx, "download without content omitted", "id", id)
		return models.Technique{}, false
	}
	t, ok, err := d.catalog.Find(ctx, id)
	if err != nil || !ok {
		d.logger.Warn(ctx, "download without content omitted", "id", id, "error", err)
		return models.Technique{}, false
	}
	return t, true
}

// ImportLocal copies local-mode downloads, with their content, into the
// signed-in account.
func (d *Downloads) ImportLocal(ctx context.Context) (int, error) {
	uid, remote := d.coll.RemoteUser()
	if !remote {
		return 0, reconcile.ErrNotRemote
	}
	local := store.Load(ctx, d.store, store.KeyOfflineContent, content{})
	key := contentKey(uid, true)
	c := store.Load(ctx, d.store, key, content{})
	for id, t := range local {
		c[id] = t
	}
	if err := d.store.Set(ctx, key, c); err != nil {
		return 0, err
	}
	return d.coll.ImportLocal(ctx)
}

func (d *Downloads) Invalidate() { d.coll.Invalidate() }

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
