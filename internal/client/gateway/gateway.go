package gateway

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotConfigured   = errors.New("remote backend not configured")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrUnavailable     = errors.New("remote backend unavailable")
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("already exists")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Session is the authenticated identity held by a gateway.
type Session struct {
	UserID       string
	Email        string
	AccessToken  string
	RefreshToken string
}

// UploadTicket is a presigned PUT target for an avatar image.
type UploadTicket struct {
	URL       string
	Key       string
	PublicURL string
}

type Gateway interface {
	// Ready reports whether a backend endpoint is configured.
	Ready() bool
	// Authenticated reports whether a live session exists.
	Authenticated() bool
	Session() (Session, bool)

	SignUp(ctx context.Context, email, password, name string) (Session, error)
	SignIn(ctx context.Context, email, password string) (Session, error)
	SignInWithOAuth(ctx context.Context, provider, idToken string) (Session, error)
	// RestoreSession exchanges a persisted refresh token for a new session.
	RestoreSession(ctx context.Context, refreshToken string) (Session, error)
	// SignOut drops the session. It is a no-op without one.
	SignOut(ctx context.Context) error
	// OnSessionChange registers fn to observe every session change,
	// including transparent token refreshes. nil unregisters.
	OnSessionChange(fn func(s Session, ok bool))
	Ping(ctx context.Context) error

	Select(ctx context.Context, collection string, filter Filter, opts ...SelectOption) ([]Row, error)
	Insert(ctx context.Context, collection string, rows ...Row) ([]Row, error)
	// Upsert inserts rows, or updates the row that matches on the onConflict
	// columns.
	Upsert(ctx context.Context, collection string, rows []Row, onConflict ...string) ([]Row, error)
	Update(ctx context.Context, collection string, filter Filter, patch Row) (int, error)
	// Delete removes matching rows; deleting nothing is not an error.
	Delete(ctx context.Context, collection string, filter Filter) (int, error)

	AvatarUploadURL(ctx context.Context, contentType string) (UploadTicket, error)

	Close() error
}

type SelectOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
}

type SelectOption func(*SelectOptions)

func OrderBy(column string, desc bool) SelectOption {
	return func(o *SelectOptions) {
		o.OrderBy = column
		o.Desc = desc
	}
}

func Limit(n int) SelectOption {
	return func(o *SelectOptions) { o.Limit = n }
}

func ApplySelectOptions(opts []SelectOption) SelectOptions {
	var o SelectOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// SelectOne returns the single row matching filter, or ErrNotFound.
func SelectOne(ctx context.Context, gw Gateway, collection string, filter Filter) (Row, error) {
	rows, err := gw.Select(ctx, collection, filter, Limit(1))
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%s %v: %w", collection, filter, ErrNotFound)
	}
	return rows[0], nil
}

// Transient reports whether err is a transport-level failure for which a
// cached fallback is appropriate.
func Transient(err error) bool {
	return errors.Is(err, ErrUnavailable) ||
		errors.Is(err, context.DeadlineExceeded)
}
