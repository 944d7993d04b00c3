// Package catalog supplies the technique sheets. The embedded provider ships
// with the binary, the remote one reads the public techniques collection,
// and Cached keeps the last successful list in the local store so the app
// can read sheets offline.
package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

var ErrUnavailable = errors.New("catalog unavailable")

type Provider interface {
	Techniques(ctx context.Context) ([]models.Technique, error)
}

//go:embed techniques.json
var embedded []byte

// Embedded serves the catalog bundled into the binary.
type Embedded struct{}

func (Embedded) Techniques(context.Context) ([]models.Technique, error) {
	var out []models.Technique
	if err := json.Unmarshal(embedded, &out); err != nil {
		return nil, fmt.Errorf("embedded catalog: %w", err)
	}
	return out, nil
}

const Table = "techniques"

// Remote reads the techniques collection through the gateway.
type Remote struct {
	gw gateway.Gateway
}

func NewRemote(gw gateway.Gateway) *Remote {
	return &Remote{gw: gw}
}

func (r *Remote) Techniques(ctx context.Context) ([]models.Technique, error) {
	rows, err := r.gw.Select(ctx, Table, nil, gateway.OrderBy("id", false))
	if err != nil {
		return nil, err
	}
	out := make([]models.Technique, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromRow(row))
	}
	return out, nil
}

// FromRow maps a techniques row. Tips and warnings come from their own
// columns.
func FromRow(r gateway.Row) models.Technique {
	return models.Technique{
		ID:           r.String("id"),
		Category:     r.String("category"),
		Difficulty:   r.String("difficulty"),
		Title:        r.String("title"),
		Description:  r.String("description"),
		Steps:        r.Strings("steps"),
		Warnings:     r.Strings("warnings"),
		Tips:         r.Strings("tips"),
		TimeEstimate: r.String("time_estimate"),
	}
}

// Cached wraps a provider with the "catalog" store key as fallback.
type Cached struct {
	provider Provider
	store    *store.Store
	logger   logging.Logger
}

func NewCached(p Provider, s *store.Store, l logging.Logger) *Cached {
	if l == nil {
		l = logging.Discard()
	}
	return &Cached{provider: p, store: s, logger: l.With("module", "catalog")}
}

func (c *Cached) Techniques(ctx context.Context) ([]models.Technique, error) {
	list, err := c.provider.Techniques(ctx)
	if err == nil {
		if serr := c.store.Set(ctx, store.KeyCatalog, list); serr != nil {
			c.logger.Warn(ctx, "caching catalog failed", "error", serr)
		}
		return list, nil
	}

	var cached []models.Technique
	ok, gerr := c.store.Get(ctx, store.KeyCatalog, &cached)
	if gerr != nil || !ok {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	c.logger.Warn(ctx, "catalog provider failed, serving cached list", "error", err)
	return cached, nil
}

// Find returns the technique with id.
func (c *Cached) Find(ctx context.Context, id string) (models.Technique, bool, error) {
	list, err := c.Techniques(ctx)
	if err != nil {
		return models.Technique{}, false, err
	}
	for _, t := range list {
		if t.ID == id {
			return t, true, nil
		}
	}
	return models.Technique{}, false, nil
}
