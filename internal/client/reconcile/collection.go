package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

var (
	ErrNotRemote = errors.New("collection is not in remote mode")
	ErrNotFound  = errors.New("item not found")
)

type Mode int

const (
	Local Mode = iota
	Remote
)

func (m Mode) String() string {
	if m == Remote {
		return "remote"
	}
	return "local"
}

// Identity tells a collection which remote user, if any, is active.
type Identity interface {
	RemoteUserID() (string, bool)
}

type IdentityFunc func() (string, bool)

func (f IdentityFunc) RemoteUserID() (string, bool) { return f() }

// GatewayIdentity derives the identity straight from a gateway session.
func GatewayIdentity(gw gateway.Gateway) Identity {
	return IdentityFunc(func() (string, bool) {
		if !gw.Ready() {
			return "", false
		}
		s, ok := gw.Session()
		if !ok || s.UserID == "" {
			return "", false
		}
		return s.UserID, true
	})
}

// Codec maps items to remote rows and back.
type Codec[T any] interface {
	Key(item T) string
	ToRow(item T, userID string) gateway.Row
	FromRow(row gateway.Row) (T, error)
}

type Options struct {
	// Name identifies the collection in logs and snapshot keys.
	Name string
	// Table is the remote collection.
	Table string
	// LocalKey is the store key holding the local-mode list.
	LocalKey string
	// KeyColumn and OwnerColumn address one item remotely.
	KeyColumn   string
	OwnerColumn string
	// ConflictColumns for upserts; defaults to OwnerColumn, KeyColumn.
	ConflictColumns []string
	OrderBy         string
	Desc            bool
	TTL             time.Duration
	Timeout         time.Duration
	Now             func() time.Time
}

// Effect attaches side writes to one mutation.
type Effect struct {
	// Local runs inside the local-mode transaction.
	Local func(ctx context.Context, tx *store.Tx) error
	// Before runs ahead of the remote write; Undo reverts it if the remote
	// write fails.
	Before func(ctx context.Context) error
	Undo   func(ctx context.Context) error
	// After runs once the remote write succeeded.
	After func(ctx context.Context) error
}

type ToggleEffects struct {
	Add    Effect
	Remove Effect
}

type cached struct {
	raw []byte
	at  time.Time
}

type Collection[T any] struct {
	opts   Options
	store  *store.Store
	gw     gateway.Gateway
	id     Identity
	codec  Codec[T]
	logger logging.Logger

	mu    sync.Mutex
	cache map[string]cached
	// gen moves on every Invalidate; a fetch that started under an older
	// generation must not publish its rows.
	gen    uint64
	flight singleflight.Group
	// snap orders snapshot writes of fetches against confirmed writes.
	snap sync.Mutex
	// wide is held shared by single-key mutations and exclusively by
	// whole-collection ones.
	wide  sync.RWMutex
	locks keyLock
}

func New[T any](s *store.Store, gw gateway.Gateway, id Identity, codec Codec[T], opts Options, l logging.Logger) *Collection[T] {
	if opts.OwnerColumn == "" {
		opts.OwnerColumn = "user_id"
	}
	if len(opts.ConflictColumns) == 0 {
		opts.ConflictColumns = []string{opts.OwnerColumn, opts.KeyColumn}
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if l == nil {
		l = logging.Discard()
	}
	return &Collection[T]{
		opts:   opts,
		store:  s,
		gw:     gw,
		id:     id,
		codec:  codec,
		logger: l.With("module", "reconcile", "collection", opts.Name),
		cache:  map[string]cached{},
	}
}

// Mode reports which source is active right now.
func (c *Collection[T]) Mode() Mode {
	_, remote := c.remoteUser()
	if remote {
		return Remote
	}
	return Local
}

// RemoteUser returns the user id the remote mode is bound to.
func (c *Collection[T]) RemoteUser() (string, bool) {
	return c.remoteUser()
}

func (c *Collection[T]) remoteUser() (string, bool) {
	if c.gw == nil || !c.gw.Ready() {
		return "", false
	}
	return c.id.RemoteUserID()
}

func (c *Collection[T]) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.Timeout > 0 {
		return context.WithTimeout(ctx, c.opts.Timeout)
	}
	return context.WithCancel(ctx)
}

// List returns the active collection.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	uid, remote := c.remoteUser()
	if !remote {
		return c.Local(ctx), nil
	}
	return c.fetch(ctx, uid)
}

// Local returns the local-mode list whatever the active mode is.
func (c *Collection[T]) Local(ctx context.Context) []T {
	return store.Load(ctx, c.store, c.opts.LocalKey, []T{})
}

func (c *Collection[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T
	items, err := c.List(ctx)
	if err != nil {
		return zero, false, err
	}
	for _, it := range items {
		if c.codec.Key(it) == key {
			return it, true, nil
		}
	}
	return zero, false, nil
}

func (c *Collection[T]) Contains(ctx context.Context, key string) (bool, error) {
	_, ok, err := c.Get(ctx, key)
	return ok, err
}

// Keys lists the keys of the active collection.
func (c *Collection[T]) Keys(ctx context.Context) ([]string, error) {
	items, err := c.List(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(items))
	for i, it := range items {
		keys[i] = c.codec.Key(it)
	}
	return keys, nil
}

func (c *Collection[T]) fetch(ctx context.Context, uid string) ([]T, error) {
	if raw, ok := c.fresh(uid); ok {
		return decode[T](raw)
	}

	gen := c.generation()
	v, err, _ := c.flight.Do(fmt.Sprintf("%s@%d", uid, gen), func() (any, error) {
		if raw, ok := c.fresh(uid); ok {
			return raw, nil
		}
		fctx, cancel := c.withTimeout(context.WithoutCancel(ctx))
		defer cancel()
		return c.fetchRemote(fctx, uid, gen)
	})
	if err != nil {
		snap, found := c.snapshot(ctx, uid)
		if !found {
			return nil, fmt.Errorf("%s: %w", c.opts.Name, err)
		}
		c.logger.Warn(ctx, "remote read failed, serving snapshot", "error", err)
		return snap, nil
	}
	return decode[T](v.([]byte))
}

func (c *Collection[T]) fresh(uid string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.cache[uid]
	if !ok || c.opts.Now().Sub(entry.at) >= c.opts.TTL {
		return nil, false
	}
	return entry.raw, true
}

func (c *Collection[T]) generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

func (c *Collection[T]) fetchRemote(ctx context.Context, uid string, gen uint64) ([]byte, error) {
	var opts []gateway.SelectOption
	if c.opts.OrderBy != "" {
		opts = append(opts, gateway.OrderBy(c.opts.OrderBy, c.opts.Desc))
	}
	rows, err := c.gw.Select(ctx, c.opts.Table, gateway.Filter{c.opts.OwnerColumn: uid}, opts...)
	if err != nil {
		return nil, err
	}

	items := make([]T, 0, len(rows))
	for _, r := range rows {
		it, err := c.codec.FromRow(r)
		if err != nil {
			c.logger.Warn(ctx, "skipping undecodable row", "error", err)
			continue
		}
		items = append(items, it)
	}

	raw, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode %s cache: %w", c.opts.Name, err)
	}

	c.snap.Lock()
	defer c.snap.Unlock()
	c.mu.Lock()
	current := c.gen == gen
	if current {
		c.cache[uid] = cached{raw: raw, at: c.opts.Now()}
	}
	c.mu.Unlock()
	if !current {
		// a write landed while this read was in flight
		c.logger.Debug(ctx, "discarding fetch overtaken by a write")
		return raw, nil
	}

	if err := c.store.Set(ctx, store.RemoteCacheKey(c.opts.Name, uid), items); err != nil {
		c.logger.Warn(ctx, "persisting snapshot failed", "error", err)
	}
	c.logger.Debug(ctx, "fetched remote collection", "items", len(items))
	return raw, nil
}

func (c *Collection[T]) snapshot(ctx context.Context, uid string) ([]T, bool) {
	var items []T
	ok, err := c.store.Get(ctx, store.RemoteCacheKey(c.opts.Name, uid), &items)
	if err != nil || !ok {
		return nil, false
	}
	if items == nil {
		items = []T{}
	}
	return items, true
}

// patchSnapshot keeps the persisted snapshot in step with a confirmed remote
// write, so a later offline read does not resurrect stale state.
func (c *Collection[T]) patchSnapshot(ctx context.Context, uid string, fn func([]T) []T) {
	items, ok := c.snapshot(ctx, uid)
	if !ok {
		return
	}
	if err := c.store.Set(ctx, store.RemoteCacheKey(c.opts.Name, uid), fn(items)); err != nil {
		c.logger.Warn(ctx, "patching snapshot failed", "error", err)
	}
}

// Invalidate drops every in-memory remote cache entry so the next read
// refetches.
func (c *Collection[T]) Invalidate() {
	c.mu.Lock()
	c.cache = map[string]cached{}
	c.gen++
	c.mu.Unlock()
}

// confirm drops the caches after a successful remote write and patches the
// snapshot with it.
func (c *Collection[T]) confirm(ctx context.Context, patch func(context.Context)) {
	c.snap.Lock()
	defer c.snap.Unlock()
	c.Invalidate()
	patch(ctx)
}

// Put adds item, replacing any item with the same key.
func (c *Collection[T]) Put(ctx context.Context, item T, eff ...Effect) error {
	c.wide.RLock()
	defer c.wide.RUnlock()
	unlock := c.locks.lock(c.codec.Key(item))
	defer unlock()
	return c.put(ctx, item, merge(eff))
}

// Remove deletes the item with key; removing an absent key is not an error.
func (c *Collection[T]) Remove(ctx context.Context, key string, eff ...Effect) error {
	c.wide.RLock()
	defer c.wide.RUnlock()
	unlock := c.locks.lock(key)
	defer unlock()
	return c.remove(ctx, key, merge(eff))
}

// Toggle removes item if present and adds it otherwise. It reports whether
// the item is present afterwards.
func (c *Collection[T]) Toggle(ctx context.Context, item T, eff ToggleEffects) (bool, error) {
	key := c.codec.Key(item)
	c.wide.RLock()
	defer c.wide.RUnlock()
	unlock := c.locks.lock(key)
	defer unlock()

	present, err := c.Contains(ctx, key)
	if err != nil {
		return false, err
	}
	if present {
		return false, c.remove(ctx, key, eff.Remove)
	}
	return true, c.put(ctx, item, eff.Add)
}

func (c *Collection[T]) put(ctx context.Context, item T, eff Effect) error {
	key := c.codec.Key(item)
	uid, remote := c.remoteUser()
	if !remote {
		return c.store.Update(ctx, func(tx *store.Tx) error {
			items := replaceOrAppend(store.Load(ctx, tx, c.opts.LocalKey, []T{}), item, key, c.codec)
			if eff.Local != nil {
				if err := eff.Local(ctx, tx); err != nil {
					return err
				}
			}
			return tx.Set(ctx, c.opts.LocalKey, items)
		})
	}

	return c.remoteWrite(ctx, eff, func(ctx context.Context) error {
		_, err := c.gw.Upsert(ctx, c.opts.Table, []gateway.Row{c.codec.ToRow(item, uid)}, c.opts.ConflictColumns...)
		return err
	}, func(ctx context.Context) {
		c.patchSnapshot(ctx, uid, func(items []T) []T {
			return replaceOrAppend(items, item, key, c.codec)
		})
	})
}

func (c *Collection[T]) remove(ctx context.Context, key string, eff Effect) error {
	uid, remote := c.remoteUser()
	if !remote {
		return c.store.Update(ctx, func(tx *store.Tx) error {
			items := without(store.Load(ctx, tx, c.opts.LocalKey, []T{}), key, c.codec)
			if eff.Local != nil {
				if err := eff.Local(ctx, tx); err != nil {
					return err
				}
			}
			return tx.Set(ctx, c.opts.LocalKey, items)
		})
	}

	return c.remoteWrite(ctx, eff, func(ctx context.Context) error {
		_, err := c.gw.Delete(ctx, c.opts.Table, gateway.Filter{c.opts.OwnerColumn: uid, c.opts.KeyColumn: key})
		return err
	}, func(ctx context.Context) {
		c.patchSnapshot(ctx, uid, func(items []T) []T { return without(items, key, c.codec) })
	})
}

// Clear empties the active collection. In remote mode the remote rows go
// first; Effect.After (the local side) only runs once they are confirmed.
// No other mutation of the collection runs while Clear does.
func (c *Collection[T]) Clear(ctx context.Context, eff ...Effect) error {
	c.wide.Lock()
	defer c.wide.Unlock()

	e := merge(eff)
	uid, remote := c.remoteUser()
	if !remote {
		return c.store.Update(ctx, func(tx *store.Tx) error {
			if e.Local != nil {
				if err := e.Local(ctx, tx); err != nil {
					return err
				}
			}
			return tx.Delete(ctx, c.opts.LocalKey)
		})
	}

	return c.remoteWrite(ctx, e, func(ctx context.Context) error {
		_, err := c.gw.Delete(ctx, c.opts.Table, gateway.Filter{c.opts.OwnerColumn: uid})
		return err
	}, func(ctx context.Context) {
		c.patchSnapshot(ctx, uid, func([]T) []T { return []T{} })
	})
}

func (c *Collection[T]) remoteWrite(ctx context.Context, eff Effect, write func(context.Context) error, confirmed func(context.Context)) error {
	if eff.Before != nil {
		if err := eff.Before(ctx); err != nil {
			return err
		}
	}

	wctx, cancel := c.withTimeout(ctx)
	err := write(wctx)
	cancel()
	if err != nil {
		if eff.Undo != nil {
			if uerr := eff.Undo(ctx); uerr != nil {
				c.logger.Error(ctx, "undo after failed remote write", "error", uerr)
				err = errors.Join(err, uerr)
			}
		}
		return fmt.Errorf("%s: remote write: %w", c.opts.Name, err)
	}

	c.confirm(ctx, confirmed)

	if eff.After != nil {
		return eff.After(ctx)
	}
	return nil
}

// ImportLocal upserts every local-mode item into the remote collection of
// the current user. The local copy is left in place. Safe to repeat.
func (c *Collection[T]) ImportLocal(ctx context.Context) (int, error) {
	c.wide.Lock()
	defer c.wide.Unlock()
	uid, remote := c.remoteUser()
	if !remote {
		return 0, ErrNotRemote
	}
	items := c.Local(ctx)
	if len(items) == 0 {
		return 0, nil
	}
	rows := make([]gateway.Row, len(items))
	for i, it := range items {
		rows[i] = c.codec.ToRow(it, uid)
	}

	wctx, cancel := c.withTimeout(ctx)
	defer cancel()
	if _, err := c.gw.Upsert(wctx, c.opts.Table, rows, c.opts.ConflictColumns...); err != nil {
		return 0, fmt.Errorf("%s: import: %w", c.opts.Name, err)
	}
	c.confirm(ctx, func(ctx context.Context) {
		c.patchSnapshot(ctx, uid, func(existing []T) []T {
			for _, it := range items {
				existing = replaceOrAppend(existing, it, c.codec.Key(it), c.codec)
			}
			return existing
		})
	})
	c.logger.Info(ctx, "imported local items", "items", len(items))
	return len(items), nil
}

// UpdateLocal applies fn to the local-mode item with key.
func (c *Collection[T]) UpdateLocal(ctx context.Context, key string, fn func(item *T) error) error {
	c.wide.RLock()
	defer c.wide.RUnlock()
	unlock := c.locks.lock(key)
	defer unlock()
	return c.store.Update(ctx, func(tx *store.Tx) error {
		items := store.Load(ctx, tx, c.opts.LocalKey, []T{})
		for i := range items {
			if c.codec.Key(items[i]) == key {
				if err := fn(&items[i]); err != nil {
					return err
				}
				return tx.Set(ctx, c.opts.LocalKey, items)
			}
		}
		return fmt.Errorf("%s %q: %w", c.opts.Name, key, ErrNotFound)
	})
}

func merge(effs []Effect) Effect {
	switch len(effs) {
	case 0:
		return Effect{}
	case 1:
		return effs[0]
	}
	panic("reconcile: at most one Effect per mutation")
}

func replaceOrAppend[T any](items []T, item T, key string, codec Codec[T]) []T {
	for i := range items {
		if codec.Key(items[i]) == key {
			items[i] = item
			return items
		}
	}
	return append(items, item)
}

func without[T any](items []T, key string, codec Codec[T]) []T {
	out := items[:0]
	for _, it := range items {
		if codec.Key(it) != key {
			out = append(out, it)
		}
	}
	return out
}

func decode[T any](raw []byte) ([]T, error) {
	items := []T{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, err
	}
	return items, nil
}
