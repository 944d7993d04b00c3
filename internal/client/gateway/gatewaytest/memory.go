// Package gatewaytest provides an in-memory gateway.Gateway for tests of the
// components built on top of the remote backend.
//
// Rows round-trip through the same JSON encoding the gRPC transport uses, so
// timestamps come back as RFC 3339 strings and numbers as float64. Deleting
// an ai_conversations row cascades to its ai_messages, mirroring the server
// schema.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/survivalcodex/codex/internal/client/gateway"
)

// Operation names used by FailOn and Calls.
const (
	OpSelect = "select"
	OpInsert = "insert"
	OpUpsert = "upsert"
	OpUpdate = "update"
	OpDelete = "delete"
)

type account struct {
	id       string
	email    string
	password string
}

type Memory struct {
	mu       sync.Mutex
	tables   map[string][]gateway.Row
	accounts map[string]account // by email
	refresh  map[string]string  // refresh token -> user id
	session  *gateway.Session
	onChange func(gateway.Session, bool)
	failures map[string]error // "op:collection" or "op:*" or "*"
	calls    map[string]int
	delay    time.Duration
	ready    bool
}

var _ gateway.Gateway = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		tables:   map[string][]gateway.Row{},
		accounts: map[string]account{},
		refresh:  map[string]string{},
		failures: map[string]error{},
		calls:    map[string]int{},
		ready:    true,
	}
}

// AddAccount registers credentials and returns the new user id.
func (m *Memory) AddAccount(email, password string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.NewString()
	m.accounts[email] = account{id: id, email: email, password: password}
	return id
}

// Seed inserts rows directly, bypassing failure injection and counters.
func (m *Memory) Seed(collection string, rows ...gateway.Row) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[collection] = append(m.tables[collection], normalize(r))
	}
}

// Rows returns a copy of every row in collection.
func (m *Memory) Rows(collection string) []gateway.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]gateway.Row, 0, len(m.tables[collection]))
	for _, r := range m.tables[collection] {
		out = append(out, normalize(r))
	}
	return out
}

// FailOn makes op on collection return err until Heal. Use "*" for either
// part to match everything.
func (m *Memory) FailOn(op, collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+":"+collection] = err
}

func (m *Memory) Heal() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = map[string]error{}
}

// SetDelay makes every CRUD call wait d (or until ctx ends).
func (m *Memory) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// Calls reports how many times op ran against collection.
func (m *Memory) Calls(op, collection string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op+":"+collection]
}

// ExpireSession drops the session without notifying, as a server-side
// revocation would.
func (m *Memory) ExpireSession() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = nil
}

func (m *Memory) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ready
}

func (m *Memory) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = ready
}

func (m *Memory) Authenticated() bool {
	_, ok := m.Session()
	return ok
}

func (m *Memory) Session() (gateway.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return gateway.Session{}, false
	}
	return *m.session, true
}

func (m *Memory) OnSessionChange(fn func(gateway.Session, bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onChange = fn
}

func (m *Memory) startSession(userID, email string) gateway.Session {
	rt := uuid.NewString()
	m.refresh[rt] = userID
	s := gateway.Session{UserID: userID, Email: email, AccessToken: uuid.NewString(), RefreshToken: rt}
	m.session = &s
	return s
}

func (m *Memory) notify(s gateway.Session, ok bool) {
	m.mu.Lock()
	fn := m.onChange
	m.mu.Unlock()
	if fn != nil {
		fn(s, ok)
	}
}

func (m *Memory) failure(op, collection string) error {
	for _, k := range []string{op + ":" + collection, op + ":*", "*:" + collection, "*:*"} {
		if err, ok := m.failures[k]; ok {
			return err
		}
	}
	return nil
}

func (m *Memory) SignUp(ctx context.Context, email, password, name string) (gateway.Session, error) {
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return gateway.Session{}, gateway.ErrNotConfigured
	}
	if err := m.failure("auth", "*"); err != nil {
		m.mu.Unlock()
		return gateway.Session{}, err
	}
	if _, exists := m.accounts[email]; exists {
		m.mu.Unlock()
		return gateway.Session{}, gateway.ErrConflict
	}
	id := uuid.NewString()
	m.accounts[email] = account{id: id, email: email, password: password}
	s := m.startSession(id, email)
	m.mu.Unlock()
	m.notify(s, true)
	return s, nil
}

func (m *Memory) SignIn(ctx context.Context, email, password string) (gateway.Session, error) {
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return gateway.Session{}, gateway.ErrNotConfigured
	}
	if err := m.failure("auth", "*"); err != nil {
		m.mu.Unlock()
		return gateway.Session{}, err
	}
	a, ok := m.accounts[email]
	if !ok || a.password != password {
		m.mu.Unlock()
		return gateway.Session{}, gateway.ErrUnauthorized
	}
	s := m.startSession(a.id, email)
	m.mu.Unlock()
	m.notify(s, true)
	return s, nil
}

func (m *Memory) SignInWithOAuth(ctx context.Context, provider, idToken string) (gateway.Session, error) {
	if idToken == "" {
		return gateway.Session{}, gateway.ErrUnauthorized
	}
	email := provider + ":" + idToken
	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return gateway.Session{}, gateway.ErrNotConfigured
	}
	a, ok := m.accounts[email]
	if !ok {
		a = account{id: uuid.NewString(), email: email}
		m.accounts[email] = a
	}
	s := m.startSession(a.id, email)
	m.mu.Unlock()
	m.notify(s, true)
	return s, nil
}

func (m *Memory) RestoreSession(ctx context.Context, refreshToken string) (gateway.Session, error) {
	m.mu.Lock()
	if err := m.failure("auth", "*"); err != nil {
		m.mu.Unlock()
		return gateway.Session{}, err
	}
	uid, ok := m.refresh[refreshToken]
	if !ok {
		m.mu.Unlock()
		return gateway.Session{}, gateway.ErrUnauthorized
	}
	delete(m.refresh, refreshToken)
	email := ""
	for _, a := range m.accounts {
		if a.id == uid {
			email = a.email
		}
	}
	s := m.startSession(uid, email)
	m.mu.Unlock()
	m.notify(s, true)
	return s, nil
}

func (m *Memory) SignOut(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil
	}
	delete(m.refresh, m.session.RefreshToken)
	m.session = nil
	m.mu.Unlock()
	m.notify(gateway.Session{}, false)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready {
		return gateway.ErrNotConfigured
	}
	return m.failure("ping", "*")
}

// begin applies readiness, auth, failure injection and delay, then returns
// with m.mu held.
func (m *Memory) begin(ctx context.Context, op, collection string) error {
	m.mu.Lock()
	m.calls[op+":"+collection]++
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s %s: %v: %w", op, collection, ctx.Err(), gateway.ErrUnavailable)
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s %s: %v: %w", op, collection, err, gateway.ErrUnavailable)
	}

	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return gateway.ErrNotConfigured
	}
	if err := m.failure(op, collection); err != nil {
		m.mu.Unlock()
		return err
	}
	if m.session == nil && !(op == OpSelect && collection == "techniques") {
		m.mu.Unlock()
		return gateway.ErrUnauthorized
	}
	return nil
}

func (m *Memory) Select(ctx context.Context, collection string, filter gateway.Filter, opts ...gateway.SelectOption) ([]gateway.Row, error) {
	if err := m.begin(ctx, OpSelect, collection); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	o := gateway.ApplySelectOptions(opts)
	f := normalize(gateway.Row(filter))
	out := []gateway.Row{}
	for _, r := range m.tables[collection] {
		if matches(r, f) {
			out = append(out, normalize(r))
		}
	}
	if o.OrderBy != "" {
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i][o.OrderBy], out[j][o.OrderBy]
			if o.Desc {
				a, b = b, a
			}
			return lessValue(a, b)
		})
	}
	if o.Limit > 0 && len(out) > o.Limit {
		out = out[:o.Limit]
	}
	return out, nil
}

func (m *Memory) Insert(ctx context.Context, collection string, rows ...gateway.Row) ([]gateway.Row, error) {
	if err := m.begin(ctx, OpInsert, collection); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	out := make([]gateway.Row, 0, len(rows))
	for _, r := range rows {
		n := normalize(r)
		if _, ok := n["id"]; !ok && collection != "bookmarks" && collection != "downloads" {
			n["id"] = uuid.NewString()
		}
		if id, ok := n["id"]; ok {
			for _, existing := range m.tables[collection] {
				if reflect.DeepEqual(existing["id"], id) {
					return nil, gateway.ErrConflict
				}
			}
		}
		m.tables[collection] = append(m.tables[collection], n)
		out = append(out, normalize(n))
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, collection string, rows []gateway.Row, onConflict ...string) ([]gateway.Row, error) {
	if err := m.begin(ctx, OpUpsert, collection); err != nil {
		return nil, err
	}
	defer m.mu.Unlock()

	if len(onConflict) == 0 {
		onConflict = []string{"id"}
	}
	out := make([]gateway.Row, 0, len(rows))
	for _, r := range rows {
		n := normalize(r)
		key := gateway.Row{}
		for _, c := range onConflict {
			key[c] = n[c]
		}
		replaced := false
		for i, existing := range m.tables[collection] {
			if matches(existing, key) {
				// the server leaves rows of other owners untouched and reports
				// permission denied
				if owner, ok := existing["user_id"]; ok && n["user_id"] != nil && owner != n["user_id"] {
					return nil, gateway.ErrUnauthorized
				}
				for k, v := range n {
					existing[k] = v
				}
				m.tables[collection][i] = existing
				out = append(out, normalize(existing))
				replaced = true
				break
			}
		}
		if !replaced {
			m.tables[collection] = append(m.tables[collection], n)
			out = append(out, normalize(n))
		}
	}
	return out, nil
}

func (m *Memory) Update(ctx context.Context, collection string, filter gateway.Filter, patch gateway.Row) (int, error) {
	if err := m.begin(ctx, OpUpdate, collection); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	f := normalize(gateway.Row(filter))
	p := normalize(patch)
	n := 0
	for _, r := range m.tables[collection] {
		if matches(r, f) {
			for k, v := range p {
				r[k] = v
			}
			n++
		}
	}
	return n, nil
}

func (m *Memory) Delete(ctx context.Context, collection string, filter gateway.Filter) (int, error) {
	if err := m.begin(ctx, OpDelete, collection); err != nil {
		return 0, err
	}
	defer m.mu.Unlock()

	f := normalize(gateway.Row(filter))
	kept := m.tables[collection][:0]
	var removed []gateway.Row
	for _, r := range m.tables[collection] {
		if matches(r, f) {
			removed = append(removed, r)
			continue
		}
		kept = append(kept, r)
	}
	m.tables[collection] = kept

	if collection == "ai_conversations" {
		for _, c := range removed {
			msgs := m.tables["ai_messages"][:0]
			for _, msg := range m.tables["ai_messages"] {
				if !reflect.DeepEqual(msg["conversation_id"], c["id"]) {
					msgs = append(msgs, msg)
				}
			}
			m.tables["ai_messages"] = msgs
		}
	}
	return len(removed), nil
}

func (m *Memory) AvatarUploadURL(ctx context.Context, contentType string) (gateway.UploadTicket, error) {
	if err := m.begin(ctx, "avatar", "*"); err != nil {
		return gateway.UploadTicket{}, err
	}
	defer m.mu.Unlock()
	key := "avatars/" + m.session.UserID
	return gateway.UploadTicket{URL: "memory://put/" + key, Key: key, PublicURL: "memory://get/" + key}, nil
}

func (m *Memory) Close() error { return nil }

func normalize(r gateway.Row) gateway.Row {
	if r == nil {
		return gateway.Row{}
	}
	b, err := json.Marshal(map[string]any(r))
	if err != nil {
		panic(fmt.Sprintf("gatewaytest: row not encodable: %v", err))
	}
	out := gateway.Row{}
	if err := json.Unmarshal(b, &out); err != nil {
		panic(err)
	}
	return out
}

func matches(r, filter gateway.Row) bool {
	for k, v := range filter {
		if !reflect.DeepEqual(r[k], v) {
			return false
		}
	}
	return true
}

func lessValue(a, b any) bool {
	switch x := a.(type) {
	case string:
		y, _ := b.(string)
		tx, errx := time.Parse(time.RFC3339Nano, x)
		ty, erry := time.Parse(time.RFC3339Nano, y)
		if errx == nil && erry == nil {
			return tx.Before(ty)
		}
		return x < y
	case float64:
		y, _ := b.(float64)
		return x < y
	}
	return false
}
