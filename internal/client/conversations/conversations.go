// Package conversations stores assistant chats. Remotely a conversation is
// one ai_conversations row plus its ai_messages rows; locally the whole list,
// messages included, is one JSON value.
package conversations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/reconcile"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

const (
	ConversationsTable = "ai_conversations"
	MessagesTable      = "ai_messages"
)

var ErrNotFound = errors.New("conversation not found")

// tick is the smallest timestamp step the backend keeps.
const tick = time.Microsecond

type codec struct{}

func (codec) Key(c models.Conversation) string { return c.ID }

func (codec) ToRow(c models.Conversation, userID string) gateway.Row {
	return gateway.Row{
		"id":         c.ID,
		"user_id":    userID,
		"title":      c.Title,
		"created_at": gateway.Timestamp(c.CreatedAt),
		"updated_at": gateway.Timestamp(c.UpdatedAt),
	}
}

func (codec) FromRow(r gateway.Row) (models.Conversation, error) {
	if r.String("id") == "" {
		return models.Conversation{}, errors.New("conversation row without id")
	}
	return models.Conversation{
		ID:        r.String("id"),
		Title:     r.String("title"),
		CreatedAt: r.Time("created_at"),
		UpdatedAt: r.Time("updated_at"),
	}, nil
}

func messageRow(m models.Message, conversationID, userID string) gateway.Row {
	return gateway.Row{
		"id":              m.ID,
		"conversation_id": conversationID,
		"user_id":         userID,
		"role":            string(m.Role),
		"content":         m.Content,
		"created_at":      gateway.Timestamp(m.CreatedAt),
	}
}

func messageFromRow(r gateway.Row) models.Message {
	return models.Message{
		ID:        r.String("id"),
		Role:      models.Role(r.String("role")),
		Content:   r.String("content"),
		CreatedAt: r.Time("created_at"),
	}
}

type Options struct {
	TTL     time.Duration
	Timeout time.Duration
	Now     func() time.Time
}

type Store struct {
	coll    *reconcile.Collection[models.Conversation]
	gw      gateway.Gateway
	timeout time.Duration
	now     func() time.Time
	logger  logging.Logger

	// mu orders writes so message timestamps stay strictly increasing.
	mu sync.Mutex
}

func New(s *store.Store, gw gateway.Gateway, id reconcile.Identity, opts Options, l logging.Logger) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if l == nil {
		l = logging.Discard()
	}
	return &Store{
		coll: reconcile.New[models.Conversation](s, gw, id, codec{}, reconcile.Options{
			Name:            "conversations",
			Table:           ConversationsTable,
			LocalKey:        store.KeyAIConversations,
			KeyColumn:       "id",
			ConflictColumns: []string{"id"},
			OrderBy:         "updated_at",
			Desc:            true,
			TTL:             opts.TTL,
			Timeout:         opts.Timeout,
		}, l),
		gw:      gw,
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  l.With("module", "conversations"),
	}
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout > 0 {
		return context.WithTimeout(ctx, s.timeout)
	}
	return context.WithCancel(ctx)
}

func (s *Store) clock() time.Time {
	return s.now().UTC().Truncate(tick)
}

// List returns conversations, most recently updated first. Remote entries
// come without messages; use Get for those.
func (s *Store) List(ctx context.Context) ([]models.Conversation, error) {
	list, err := s.coll.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	return list, nil
}

// Get returns the conversation with its messages in ascending time order.
func (s *Store) Get(ctx context.Context, id string) (models.Conversation, error) {
	c, ok, err := s.coll.Get(ctx, id)
	if err != nil {
		return models.Conversation{}, err
	}
	if !ok {
		return models.Conversation{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}

	if uid, remote := s.coll.RemoteUser(); remote {
		rctx, cancel := s.withTimeout(ctx)
		rows, err := s.gw.Select(rctx, MessagesTable,
			gateway.Filter{"conversation_id": id, "user_id": uid},
			gateway.OrderBy("created_at", false))
		cancel()
		if err != nil {
			return models.Conversation{}, fmt.Errorf("messages of %s: %w", id, err)
		}
		c.Messages = make([]models.Message, 0, len(rows))
		for _, r := range rows {
			c.Messages = append(c.Messages, messageFromRow(r))
		}
	}

	sortMessages(c.Messages)
	return c, nil
}

// Create starts a conversation with the first user message and, if given,
// the assistant's reply. If the conversation is stored but its messages are
// not, the empty conversation is returned together with the error.
func (s *Store) Create(ctx context.Context, title, first string, reply *string) (models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	if title == "" {
		title = models.DefaultTitle(first)
	}
	msgs := []models.Message{{ID: uuid.NewString(), Role: models.RoleUser, Content: first, CreatedAt: now}}
	if reply != nil {
		msgs = append(msgs, models.Message{ID: uuid.NewString(), Role: models.RoleAssistant, Content: *reply, CreatedAt: now.Add(tick)})
	}
	conv := models.Conversation{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: msgs[len(msgs)-1].CreatedAt,
		Messages:  msgs,
	}

	uid, remote := s.coll.RemoteUser()
	if !remote {
		if err := s.coll.Put(ctx, conv); err != nil {
			return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
		}
		return conv, nil
	}

	head := conv
	head.Messages = nil
	if err := s.coll.Put(ctx, head); err != nil {
		return models.Conversation{}, fmt.Errorf("create conversation: %w", err)
	}

	rows := make([]gateway.Row, len(msgs))
	for i, m := range msgs {
		rows[i] = messageRow(m, conv.ID, uid)
	}
	wctx, cancel := s.withTimeout(ctx)
	_, err := s.gw.Insert(wctx, MessagesTable, rows...)
	cancel()
	if err != nil {
		s.logger.Warn(ctx, "conversation stored without messages", "id", conv.ID, "error", err)
		head.Messages = []models.Message{}
		return head, fmt.Errorf("store messages of %s: %w", conv.ID, err)
	}
	return conv, nil
}

// Append adds a message stamped after every message already present and
// moves the conversation's updated_at to it. A remote failure after the
// message was stored leaves only updated_at behind; the error says so.
func (s *Store) Append(ctx context.Context, id string, role models.Role, content string) (models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.Get(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	at := s.clock()
	if floor := conv.LastActivity(); !at.After(floor) {
		at = floor.Add(tick)
	}
	msg := models.Message{ID: uuid.NewString(), Role: role, Content: content, CreatedAt: at}

	uid, remote := s.coll.RemoteUser()
	if !remote {
		err := s.coll.UpdateLocal(ctx, id, func(c *models.Conversation) error {
			c.Messages = append(c.Messages, msg)
			c.UpdatedAt = at
			return nil
		})
		if err != nil {
			return models.Message{}, fmt.Errorf("append to %s: %w", id, err)
		}
		return msg, nil
	}

	wctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.gw.Insert(wctx, MessagesTable, messageRow(msg, id, uid)); err != nil {
		return models.Message{}, fmt.Errorf("append to %s: %w", id, err)
	}
	_, err = s.gw.Update(wctx, ConversationsTable,
		gateway.Filter{"id": id, "user_id": uid},
		gateway.Row{"updated_at": gateway.Timestamp(at)})
	s.coll.Invalidate()
	if err != nil {
		return msg, fmt.Errorf("message stored, updated_at of %s not bumped: %w", id, err)
	}
	return msg, nil
}

// Delete removes the conversation; its messages go with it.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.coll.Remove(ctx, id); err != nil {
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

func (s *Store) Invalidate() { s.coll.Invalidate() }

func sortMessages(msgs []models.Message) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
}
