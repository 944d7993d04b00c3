package conversations

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/gateway/gatewaytest"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/reconcile"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

type fixture struct {
	gw    *gatewaytest.Memory
	convs *Store
	now   time.Time
}

func newFixture(t *testing.T, remote bool) *fixture {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{gw: gatewaytest.NewMemory(), now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	f.convs = New(s, f.gw, reconcile.GatewayIdentity(f.gw), Options{Now: func() time.Time { return f.now }}, nil)
	if remote {
		f.gw.AddAccount("ana@example.com", "pw")
		_, err := f.gw.SignIn(context.Background(), "ana@example.com", "pw")
		require.NoError(t, err)
	}
	return f
}

func ptr[T any](v T) *T { return &v }

func assertOrdered(t *testing.T, c models.Conversation) {
	t.Helper()
	for i := 1; i < len(c.Messages); i++ {
		assert.True(t, c.Messages[i-1].CreatedAt.Before(c.Messages[i].CreatedAt), "message %d not after %d", i, i-1)
	}
	for _, m := range c.Messages {
		assert.False(t, c.UpdatedAt.Before(m.CreatedAt), "updated_at behind message %s", m.ID)
	}
}

func TestCreate_FirstMessageOnly(t *testing.T) {
	for _, remote := range []bool{false, true} {
		t.Run(map[bool]string{false: "local", true: "remote"}[remote], func(t *testing.T) {
			f := newFixture(t, remote)
			ctx := context.Background()

			conv, err := f.convs.Create(ctx, "Bonjour", "Comment faire du feu ?", nil)
			require.NoError(t, err)

			got, err := f.convs.Get(ctx, conv.ID)
			require.NoError(t, err)
			assert.Equal(t, "Bonjour", got.Title)
			require.Len(t, got.Messages, 1)
			assert.Equal(t, models.RoleUser, got.Messages[0].Role)
			assert.Equal(t, "Comment faire du feu ?", got.Messages[0].Content)
			assert.True(t, got.UpdatedAt.Equal(got.CreatedAt))
		})
	}
}

func TestCreate_WithReplyAndDefaultTitle(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	conv, err := f.convs.Create(ctx, "", "How do I purify water without a filter or tablets?", ptr("Boil it."))
	require.NoError(t, err)
	assert.Equal(t, "How do I purify water without a filter o…", conv.Title)

	got, err := f.convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, models.RoleAssistant, got.Messages[1].Role)
	assertOrdered(t, got)
}

func TestAppend_StrictOrderEvenWithStoppedClock(t *testing.T) {
	for _, remote := range []bool{false, true} {
		t.Run(map[bool]string{false: "local", true: "remote"}[remote], func(t *testing.T) {
			f := newFixture(t, remote)
			ctx := context.Background()
			conv, err := f.convs.Create(ctx, "", "first", ptr("reply"))
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				_, err := f.convs.Append(ctx, conv.ID, models.RoleUser, "more")
				require.NoError(t, err)
			}
			f.now = f.now.Add(-time.Hour)
			_, err = f.convs.Append(ctx, conv.ID, models.RoleAssistant, "earlier clock")
			require.NoError(t, err)

			got, err := f.convs.Get(ctx, conv.ID)
			require.NoError(t, err)
			require.Len(t, got.Messages, 6)
			assert.Equal(t, "earlier clock", got.Messages[5].Content)
			assertOrdered(t, got)
		})
	}
}

func TestList_MostRecentFirst(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	a, err := f.convs.Create(ctx, "a", "a", nil)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	b, err := f.convs.Create(ctx, "b", "b", nil)
	require.NoError(t, err)
	f.now = f.now.Add(time.Minute)
	_, err = f.convs.Append(ctx, a.ID, models.RoleUser, "bump")
	require.NoError(t, err)

	list, err := f.convs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, a.ID, list[0].ID)
	assert.Equal(t, b.ID, list[1].ID)
}

func TestDelete_CascadesMessages(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	conv, err := f.convs.Create(ctx, "", "hello", ptr("hi"))
	require.NoError(t, err)
	require.Len(t, f.gw.Rows(MessagesTable), 2)

	require.NoError(t, f.convs.Delete(ctx, conv.ID))
	assert.Empty(t, f.gw.Rows(ConversationsTable))
	assert.Empty(t, f.gw.Rows(MessagesTable))

	_, err = f.convs.Get(ctx, conv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreate_MessageFailureLeavesEmptyConversation(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.gw.FailOn(gatewaytest.OpInsert, MessagesTable, gateway.ErrUnavailable)

	conv, err := f.convs.Create(ctx, "t", "hello", nil)
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	require.NotEmpty(t, conv.ID)
	assert.Empty(t, conv.Messages)

	f.gw.Heal()
	got, err := f.convs.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Messages)

	_, err = f.convs.Append(ctx, conv.ID, models.RoleUser, "retry")
	require.NoError(t, err)
}

func TestAppend_UpdatedAtFailureKeepsMessage(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	conv, err := f.convs.Create(ctx, "t", "hello", nil)
	require.NoError(t, err)

	f.gw.FailOn(gatewaytest.OpUpdate, ConversationsTable, gateway.ErrUnavailable)
	msg, err := f.convs.Append(ctx, conv.ID, models.RoleUser, "again")
	require.Error(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Len(t, f.gw.Rows(MessagesTable), 2)
}

func TestGet_Unknown(t *testing.T) {
	f := newFixture(t, false)
	_, err := f.convs.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = f.convs.Append(context.Background(), "nope", models.RoleUser, "x")
	require.ErrorIs(t, err, ErrNotFound)
}
