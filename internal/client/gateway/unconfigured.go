package gateway

import "context"

// Unconfigured is the gateway used when no backend endpoint is set.
type Unconfigured struct{}

var _ Gateway = Unconfigured{}

func (Unconfigured) Ready() bool              { return false }
func (Unconfigured) Authenticated() bool      { return false }
func (Unconfigured) Session() (Session, bool) { return Session{}, false }

func (Unconfigured) SignUp(context.Context, string, string, string) (Session, error) {
	return Session{}, ErrNotConfigured
}
func (Unconfigured) SignIn(context.Context, string, string) (Session, error) {
	return Session{}, ErrNotConfigured
}
func (Unconfigured) SignInWithOAuth(context.Context, string, string) (Session, error) {
	return Session{}, ErrNotConfigured
}
func (Unconfigured) RestoreSession(context.Context, string) (Session, error) {
	return Session{}, ErrNotConfigured
}
func (Unconfigured) SignOut(context.Context) error       { return nil }
func (Unconfigured) OnSessionChange(func(Session, bool)) {}
func (Unconfigured) Ping(context.Context) error          { return ErrNotConfigured }
func (Unconfigured) Close() error                        { return nil }
func (Unconfigured) Select(context.Context, string, Filter, ...SelectOption) ([]Row, error) {
	return nil, ErrNotConfigured
}
func (Unconfigured) Insert(context.Context, string, ...Row) ([]Row, error) {
	return nil, ErrNotConfigured
}
func (Unconfigured) Upsert(context.Context, string, []Row, ...string) ([]Row, error) {
	return nil, ErrNotConfigured
}
func (Unconfigured) Update(context.Context, string, Filter, Row) (int, error) {
	return 0, ErrNotConfigured
}
func (Unconfigured) Delete(context.Context, string, Filter) (int, error) {
	return 0, ErrNotConfigured
}
func (Unconfigured) AvatarUploadURL(context.Context, string) (UploadTicket, error) {
	return UploadTicket{}, ErrNotConfigured
}
