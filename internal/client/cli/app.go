package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/survivalcodex/codex/internal/client/assistant"
	"github.com/survivalcodex/codex/internal/client/billing"
	"github.com/survivalcodex/codex/internal/client/catalog"
	"github.com/survivalcodex/codex/internal/client/config"
	"github.com/survivalcodex/codex/internal/client/conversations"
	"github.com/survivalcodex/codex/internal/client/entitlement"
	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/library"
	"github.com/survivalcodex/codex/internal/client/llm"
	"github.com/survivalcodex/codex/internal/client/session"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/filex"
	"github.com/survivalcodex/codex/internal/logging"
)

type Mode string

const (
	ModeLocal   Mode = "local"
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const (
	appName = "codex"
	dbFile  = "codex.db"
)

type App struct {
	config *config.Config
	logger logging.Logger

	store     *store.Store
	gw        gateway.Gateway
	session   *session.Manager
	gate      *entitlement.Gate
	catalog   *catalog.Cached
	library   *library.Library
	convs     *conversations.Store
	assistant *assistant.Assistant
	billing   *billing.Reconciler

	mu   sync.RWMutex
	mode Mode
	// chatID is the conversation "ask" continues.
	chatID string

	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the local database in the data directory and connects the
// gateway when an endpoint is configured.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.New(os.Stderr, "text", c.LogLevel)

	dir, err := filex.DataDir(c.DataDir, appName)
	if err != nil {
		return nil, fmt.Errorf("data dir: %w", err)
	}
	st, err := store.Open(ctx, filepath.Join(dir, dbFile), logger)
	if err != nil {
		return nil, err
	}

	var gw gateway.Gateway = gateway.Unconfigured{}
	if c.RemoteConfigured() {
		g, err := gateway.NewGRPCGateway(gateway.GRPCOptions{
			Endpoint: c.ServerEndpointAddr,
			Timeout:  c.RemoteTimeout,
			Logger:   logger,
		})
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		gw = g
	}

	return newApp(c, st, gw, logger, bufio.NewReader(os.Stdin), os.Stdout), nil
}

func newApp(c *config.Config, st *store.Store, gw gateway.Gateway, logger logging.Logger, r *bufio.Reader, out io.Writer) *App {
	a := &App{config: c, logger: logger, store: st, gw: gw, reader: r, out: out}

	a.session = session.NewManager(gw, st, session.Options{
		Timeout:    c.RemoteTimeout,
		HTTPClient: &http.Client{Timeout: c.RemoteTimeout},
	}, logger)

	var provider catalog.Provider = catalog.Embedded{}
	if c.CatalogSource == "remote" && gw.Ready() {
		provider = catalog.NewRemote(gw)
	}
	a.catalog = catalog.NewCached(provider, st, logger)

	a.gate = entitlement.NewGate(st, a.session, entitlement.Limits{
		AIQuota:   c.AIQuotaLimit,
		Downloads: c.FreeDownloadLimit,
	}, nil, logger)

	a.library = library.New(st, gw, a.session, a.catalog, a.gate, library.Options{
		TTL:     c.CacheTTL,
		Timeout: c.RemoteTimeout,
	}, logger)

	a.convs = conversations.New(st, gw, a.session, conversations.Options{
		TTL:     c.CacheTTL,
		Timeout: c.RemoteTimeout,
	}, logger)

	model := llm.NewClient(c.LLMEndpoint, c.LLMModel, nil)
	a.assistant = assistant.New(model, a.gate, a.convs, a.session, c.LLMAPIKey, logger)
	a.billing = billing.NewReconciler(billing.NewSandbox(nil), gw, a.session, c.RemoteTimeout, nil, logger)

	a.mode = ModeLocal
	if gw.Ready() {
		a.mode = ModeOnline
	}
	return a
}

func (a *App) Mode() Mode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.mode
}

func (a *App) setMode(mode Mode) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.mode == mode {
		return false
	}
	a.mode = mode
	return true
}

func (a *App) isLoggedIn() bool {
	return a.session.Current() != nil
}

func (a *App) getStatus() string {
	s := ""
	if u := a.session.Current(); u != nil {
		s = u.Email + " "
	} else if a.session.Loading() {
		s = "loading "
	}
	return fmt.Sprintf("(%s%s)", s, a.Mode())
}

func (a *App) Close() error {
	if err := a.gw.Close(); err != nil {
		a.logger.Warn(context.Background(), "closing gateway failed", "error", err)
	}
	return a.store.Close()
}

// Run resolves the session, starts the connectivity watcher and blocks in
// the REPL until the user exits.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Fprintln(a.out, "Welcome to Survival Codex (type 'help' for commands)")
	if err := a.session.Start(ctx); err != nil {
		a.logger.Warn(ctx, "session start failed", "error", err)
	}
	a.warmup(ctx)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if a.gw.Ready() {
		go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)
	}

	runREPL(ctx, a, a.getStatus, a.reader)
}

// warmup primes the catalog and the remote caches in parallel so later
// commands can be answered offline.
func (a *App) warmup(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := a.catalog.Techniques(gctx)
		return err
	})
	if a.isLoggedIn() {
		g.Go(func() error {
			_, err := a.library.Bookmarks.IDs(gctx)
			return err
		})
		g.Go(func() error {
			_, err := a.library.Downloads.List(gctx)
			return err
		})
		g.Go(func() error {
			_, err := a.convs.List(gctx)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		a.logger.Info(ctx, "warmup incomplete", "error", err)
	}
}

// StartOnlineStatusWatcher pings the backend every interval. Coming back
// online retries a session restore that was deferred at start.
func (a *App) StartOnlineStatusWatcher(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.checkOnline(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (a *App) checkOnline(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	err := a.gw.Ping(pctx)
	cancel()

	if err != nil {
		if a.setMode(ModeOffline) {
			a.logger.Info(ctx, "switched to offline mode", "error", err)
		}
		return
	}
	if !a.setMode(ModeOnline) {
		return
	}
	a.logger.Info(ctx, "switched to online mode")
	if !a.gw.Authenticated() {
		if err := a.session.Start(ctx); err != nil {
			a.logger.Warn(ctx, "session restore failed", "error", err)
		}
	}
	a.library.Bookmarks.Invalidate()
	a.library.Downloads.Invalidate()
	a.convs.Invalidate()
}
