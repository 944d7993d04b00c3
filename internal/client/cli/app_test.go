package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/client/config"
	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/gateway/gatewaytest"
	"github.com/survivalcodex/codex/internal/client/library"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

func testConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	return c
}

func newTestApp(t *testing.T, c *config.Config, gw gateway.Gateway, input string) (*App, *bytes.Buffer) {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	var out bytes.Buffer
	a := newApp(c, st, gw, logging.Discard(), bufio.NewReader(strings.NewReader(input)), &out)
	require.NoError(t, a.session.Start(context.Background()))
	return a, &out
}

func stubPassword(t *testing.T, pw string) {
	t.Helper()
	orig := getPassword
	getPassword = func(io.Writer) ([]byte, error) { return []byte(pw), nil }
	t.Cleanup(func() { getPassword = orig })
}

func TestApp_LocalModeLibrary(t *testing.T) {
	a, out := newTestApp(t, testConfig(), gateway.Unconfigured{}, "y\n")
	ctx := context.Background()
	assert.Equal(t, ModeLocal, a.Mode())

	require.NoError(t, a.bookmark(ctx, []string{"1"}))
	require.NoError(t, a.download(ctx, []string{"1"}))
	out.Reset()

	require.NoError(t, a.techniques(ctx, []string{"fire"}))
	assert.Contains(t, out.String(), "*d")
	assert.Contains(t, out.String(), "Bow Drill Fire")

	out.Reset()
	require.NoError(t, a.bookmarks(ctx, nil))
	assert.Contains(t, out.String(), "Bow Drill Fire")

	out.Reset()
	require.NoError(t, a.show(ctx, []string{"1"}))
	assert.Contains(t, out.String(), "Steps:")
	assert.Contains(t, out.String(), "  1. ")

	require.NoError(t, a.clearDownloads(ctx, nil))
	ids, err := a.library.Downloads.IDs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)

	out.Reset()
	require.NoError(t, a.bookmark(ctx, []string{"1"}))
	assert.Contains(t, out.String(), "Removed bookmark 1.")
}

func TestApp_LocalLoginNeedsNoPassword(t *testing.T) {
	a, out := newTestApp(t, testConfig(), gateway.Unconfigured{}, "ana@example.com\n")
	ctx := context.Background()

	orig := getPassword
	getPassword = func(io.Writer) ([]byte, error) {
		t.Fatal("password requested in local mode")
		return nil, nil
	}
	t.Cleanup(func() { getPassword = orig })

	require.NoError(t, a.login(ctx, nil))
	assert.True(t, a.isLoggedIn())
	assert.Contains(t, a.getStatus(), "ana@example.com")

	out.Reset()
	require.NoError(t, a.set(ctx, []string{"name", "Ana", "Lima"}))
	require.NoError(t, a.whoami(ctx, nil))
	assert.Contains(t, out.String(), "Ana Lima")
	assert.Contains(t, out.String(), "free")

	require.ErrorIs(t, a.set(ctx, []string{"color", "red"}), errUsage)
}

func TestApp_RemoteBookmarksAndPurchase(t *testing.T) {
	gw := gatewaytest.NewMemory()
	gw.AddAccount("ana@example.com", "secret")
	stubPassword(t, "secret")

	a, out := newTestApp(t, testConfig(), gw, "")
	ctx := context.Background()
	assert.Equal(t, ModeOnline, a.Mode())

	require.NoError(t, a.login(ctx, []string{"ana@example.com"}))
	require.NoError(t, a.bookmark(ctx, []string{"2"}))
	require.Len(t, gw.Rows(library.BookmarksTable), 1)

	out.Reset()
	require.NoError(t, a.products(ctx, nil))
	assert.Contains(t, out.String(), "premium_monthly")

	require.NoError(t, a.buy(ctx, []string{"premium_monthly"}))
	out.Reset()
	require.NoError(t, a.quota(ctx, nil))
	assert.Contains(t, out.String(), "unlimited")

	require.NoError(t, a.logout(ctx, nil))
	assert.False(t, a.isLoggedIn())
}

func TestApp_RemoteLoginWrongPassword(t *testing.T) {
	gw := gatewaytest.NewMemory()
	gw.AddAccount("ana@example.com", "secret")
	stubPassword(t, "wrong")

	a, _ := newTestApp(t, testConfig(), gw, "")
	require.ErrorIs(t, a.login(context.Background(), []string{"ana@example.com"}), gateway.ErrUnauthorized)
	assert.False(t, a.isLoggedIn())
}

func TestApp_RemoteLoginWhileProfileUnreachable(t *testing.T) {
	gw := gatewaytest.NewMemory()
	gw.AddAccount("ana@example.com", "secret")
	stubPassword(t, "secret")

	a, out := newTestApp(t, testConfig(), gw, "")
	ctx := context.Background()
	gw.FailOn(gatewaytest.OpSelect, "profiles", gateway.ErrUnavailable)

	require.NoError(t, a.login(ctx, []string{"ana@example.com"}))
	assert.Contains(t, out.String(), "Logged in as ana@example.com")
	assert.Contains(t, out.String(), "profile will load")
	assert.Contains(t, a.getStatus(), "loading")

	out.Reset()
	require.NoError(t, a.oauth(ctx, []string{"google", "token"}))
	assert.Contains(t, out.String(), "profile will load")
}

func TestApp_AskTracksConversationAndQuota(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"role": "assistant", "content": "Boil it."}}},
		})
	}))
	t.Cleanup(srv.Close)

	c := testConfig()
	c.LLMEndpoint = srv.URL
	c.LLMAPIKey = "test-key"
	c.AIQuotaLimit = 2

	a, out := newTestApp(t, c, gateway.Unconfigured{}, "")
	ctx := context.Background()

	require.NoError(t, a.ask(ctx, []string{"water?"}))
	assert.Contains(t, out.String(), "Boil it.")
	assert.Contains(t, out.String(), "(1 free questions left this month)")
	require.NotEmpty(t, a.chatID)
	first := a.chatID

	require.NoError(t, a.ask(ctx, []string{"and", "then?"}))
	assert.Equal(t, first, a.chatID)

	out.Reset()
	require.NoError(t, a.chat(ctx, []string{first}))
	assert.Equal(t, 4, strings.Count(out.String(), "\n")-1)

	require.Error(t, a.ask(ctx, []string{"third"}))

	require.NoError(t, a.newChat(ctx, nil))
	assert.Empty(t, a.chatID)
	require.NoError(t, a.delChat(ctx, []string{first}))
	list, err := a.convs.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
