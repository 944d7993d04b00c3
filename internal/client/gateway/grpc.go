package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/survivalcodex/codex/internal/common"
	"github.com/survivalcodex/codex/internal/logging"
	"github.com/survivalcodex/codex/internal/proto"
)

// GRPCGateway talks to the codex.v1.Codex service. The access token is
// injected by a unary interceptor; an expired token is refreshed once and the
// call retried.
type GRPCGateway struct {
	endpoint string
	timeout  time.Duration
	conn     *grpc.ClientConn
	client   *proto.CodexClient
	logger   logging.Logger

	mu       sync.RWMutex
	session  *Session
	onChange func(Session, bool)

	refreshes singleflight.Group
}

var _ Gateway = (*GRPCGateway)(nil)

type GRPCOptions struct {
	Endpoint string
	// Timeout bounds every call; zero means no extra bound.
	Timeout     time.Duration
	Logger      logging.Logger
	DialOptions []grpc.DialOption
}

func NewGRPCGateway(o GRPCOptions) (*GRPCGateway, error) {
	if o.Endpoint == "" {
		return nil, ErrNotConfigured
	}
	if o.Logger == nil {
		o.Logger = logging.Discard()
	}
	g := &GRPCGateway{
		endpoint: o.Endpoint,
		timeout:  o.Timeout,
		logger:   o.Logger.With("module", "gateway"),
	}

	dial := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(g.accessTokenInterceptor),
	}, o.DialOptions...)

	conn, err := grpc.NewClient(o.Endpoint, dial...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", o.Endpoint, err)
	}
	g.conn = conn
	g.client = proto.NewCodexClient(conn)
	return g, nil
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (g *GRPCGateway) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	sess, _ := g.Session()

	err := invoker(withAccessToken(ctx, sess.AccessToken), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if sess.RefreshToken == "" || method == proto.FullMethod(proto.MethodRefreshToken) {
		return err
	}

	fresh, rerr := g.refresh(ctx, sess.RefreshToken)
	if rerr != nil {
		return rerr
	}

	return invoker(withAccessToken(ctx, fresh.AccessToken), method, req, reply, cc, opts...)
}

// refresh collapses concurrent refreshes of the same token: the server
// rotates refresh tokens, so a second exchange of the old one would fail.
func (g *GRPCGateway) refresh(ctx context.Context, refreshToken string) (Session, error) {
	v, err, _ := g.refreshes.Do(refreshToken, func() (any, error) {
		var t proto.Tokens
		if err := g.client.Invoke(ctx, proto.MethodRefreshToken, proto.RefreshRequest{RefreshToken: refreshToken}, &t); err != nil {
			return Session{}, err
		}
		s := sessionFromTokens(t)
		g.setSession(&s)
		g.logger.Debug(ctx, "access token refreshed", "user_id", s.UserID)
		return s, nil
	})
	if err != nil {
		return Session{}, err
	}
	return v.(Session), nil
}

func sessionFromTokens(t proto.Tokens) Session {
	return Session{UserID: t.UserID, Email: t.Email, AccessToken: t.AccessToken, RefreshToken: t.RefreshToken}
}

func (g *GRPCGateway) setSession(s *Session) {
	g.mu.Lock()
	g.session = s
	fn := g.onChange
	g.mu.Unlock()

	if fn == nil {
		return
	}
	if s == nil {
		fn(Session{}, false)
		return
	}
	fn(*s, true)
}

func (g *GRPCGateway) OnSessionChange(fn func(Session, bool)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onChange = fn
}

func (g *GRPCGateway) Ready() bool { return true }

func (g *GRPCGateway) Authenticated() bool {
	_, ok := g.Session()
	return ok
}

func (g *GRPCGateway) Session() (Session, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return Session{}, false
	}
	return *g.session, true
}

func (g *GRPCGateway) call(ctx context.Context, method string, in, out any) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	return g.mapError(g.client.Invoke(ctx, method, in, out))
}

func (g *GRPCGateway) authenticate(ctx context.Context, method string, in any) (Session, error) {
	var t proto.Tokens
	if err := g.call(ctx, method, in, &t); err != nil {
		return Session{}, err
	}
	s := sessionFromTokens(t)
	g.setSession(&s)
	return s, nil
}

func (g *GRPCGateway) SignUp(ctx context.Context, email, password, name string) (Session, error) {
	return g.authenticate(ctx, proto.MethodSignUp, proto.Credentials{Email: email, Password: password, Name: name})
}

func (g *GRPCGateway) SignIn(ctx context.Context, email, password string) (Session, error) {
	return g.authenticate(ctx, proto.MethodSignIn, proto.Credentials{Email: email, Password: password})
}

func (g *GRPCGateway) SignInWithOAuth(ctx context.Context, provider, idToken string) (Session, error) {
	return g.authenticate(ctx, proto.MethodSignInOAuth, proto.OAuthCredentials{Provider: provider, IDToken: idToken})
}

func (g *GRPCGateway) RestoreSession(ctx context.Context, refreshToken string) (Session, error) {
	if refreshToken == "" {
		return Session{}, ErrUnauthorized
	}
	return g.authenticate(ctx, proto.MethodRefreshToken, proto.RefreshRequest{RefreshToken: refreshToken})
}

// SignOut revokes the refresh token server-side when possible; the local
// session is dropped either way.
func (g *GRPCGateway) SignOut(ctx context.Context) error {
	sess, ok := g.Session()
	if !ok {
		return nil
	}
	if err := g.call(ctx, proto.MethodSignOut, proto.RefreshRequest{RefreshToken: sess.RefreshToken}, nil); err != nil {
		g.logger.Warn(ctx, "remote sign-out failed", "error", err)
	}
	g.setSession(nil)
	return nil
}

func (g *GRPCGateway) Ping(ctx context.Context) error {
	var st proto.Status
	if err := g.call(ctx, proto.MethodPing, proto.Empty{}, &st); err != nil {
		return err
	}
	if st.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func toWireRows(rows []Row) []map[string]any {
	out := make([]map[string]any, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func fromWireRows(rows []map[string]any) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		out[i] = r
	}
	return out
}

func (g *GRPCGateway) Select(ctx context.Context, collection string, filter Filter, opts ...SelectOption) ([]Row, error) {
	o := ApplySelectOptions(opts)
	var res proto.Result
	q := proto.Query{Collection: collection, Filter: filter, OrderBy: o.OrderBy, Desc: o.Desc, Limit: o.Limit}
	if err := g.call(ctx, proto.MethodSelect, q, &res); err != nil {
		return nil, err
	}
	return fromWireRows(res.Rows), nil
}

func (g *GRPCGateway) Insert(ctx context.Context, collection string, rows ...Row) ([]Row, error) {
	var res proto.Result
	if err := g.call(ctx, proto.MethodInsert, proto.Query{Collection: collection, Rows: toWireRows(rows)}, &res); err != nil {
		return nil, err
	}
	return fromWireRows(res.Rows), nil
}

func (g *GRPCGateway) Upsert(ctx context.Context, collection string, rows []Row, onConflict ...string) ([]Row, error) {
	var res proto.Result
	q := proto.Query{Collection: collection, Rows: toWireRows(rows), OnConflict: onConflict}
	if err := g.call(ctx, proto.MethodUpsert, q, &res); err != nil {
		return nil, err
	}
	return fromWireRows(res.Rows), nil
}

func (g *GRPCGateway) Update(ctx context.Context, collection string, filter Filter, patch Row) (int, error) {
	var res proto.Result
	if err := g.call(ctx, proto.MethodUpdate, proto.Query{Collection: collection, Filter: filter, Patch: patch}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (g *GRPCGateway) Delete(ctx context.Context, collection string, filter Filter) (int, error) {
	var res proto.Result
	if err := g.call(ctx, proto.MethodDelete, proto.Query{Collection: collection, Filter: filter}, &res); err != nil {
		return 0, err
	}
	return res.Count, nil
}

func (g *GRPCGateway) AvatarUploadURL(ctx context.Context, contentType string) (UploadTicket, error) {
	var t proto.UploadTicket
	if err := g.call(ctx, proto.MethodAvatarUploadURL, proto.UploadRequest{ContentType: contentType}, &t); err != nil {
		return UploadTicket{}, err
	}
	return UploadTicket{URL: t.URL, Key: t.Key, PublicURL: t.PublicURL}, nil
}

func (g *GRPCGateway) Close() error {
	return g.conn.Close()
}

func (g *GRPCGateway) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return fmt.Errorf("%s: %w", st.Message(), ErrUnauthorized)
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), ErrUnavailable)
	case codes.NotFound:
		return fmt.Errorf("%s: %w", st.Message(), ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s: %w", st.Message(), ErrConflict)
	case codes.InvalidArgument:
		return fmt.Errorf("%s: %w", st.Message(), ErrInvalidArgument)
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
