package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/gateway/gatewaytest"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

type flakyProvider struct {
	list []models.Technique
	err  error
}

func (f *flakyProvider) Techniques(context.Context) ([]models.Technique, error) {
	return f.list, f.err
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmbedded_Loads(t *testing.T) {
	list, err := Embedded{}.Techniques(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, list)
	for _, tq := range list {
		assert.NotEmpty(t, tq.ID)
		assert.NotEmpty(t, tq.Title)
		assert.NotEmpty(t, tq.Steps)
	}
}

func TestFromRow_TipsAndWarningsIndependent(t *testing.T) {
	tq := FromRow(gateway.Row{
		"id":       "1",
		"title":    "Bow Drill",
		"steps":    []any{"a", "b"},
		"warnings": []any{"hot"},
		"tips":     []any{"cedar"},
	})
	assert.Equal(t, []string{"hot"}, tq.Warnings)
	assert.Equal(t, []string{"cedar"}, tq.Tips)
	assert.Equal(t, []string{"a", "b"}, tq.Steps)
}

func TestRemote_ReadsPublicCollectionWithoutSession(t *testing.T) {
	gw := gatewaytest.NewMemory()
	gw.Seed(Table, gateway.Row{"id": "2", "title": "Water"}, gateway.Row{"id": "1", "title": "Fire"})

	list, err := NewRemote(gw).Techniques(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "1", list[0].ID)
}

func TestCached_FallsBackToStoredList(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	p := &flakyProvider{list: []models.Technique{{ID: "1", Title: "Fire"}}}
	c := NewCached(p, s, nil)

	list, err := c.Techniques(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	p.err = errors.New("offline")
	list, err = c.Techniques(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Fire", list[0].Title)

	tq, ok, err := c.Find(ctx, "1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Fire", tq.Title)

	_, ok, err = c.Find(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCached_NoCacheSurfacesError(t *testing.T) {
	c := NewCached(&flakyProvider{err: errors.New("offline")}, newStore(t), nil)
	_, err := c.Techniques(context.Background())
	require.ErrorIs(t, err, ErrUnavailable)
}
