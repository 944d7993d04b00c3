// Package assistant runs one gated AI exchange: check the quota, ask the
// model, store the exchange, then count it.
package assistant

import (
	"context"
	"fmt"

	"github.com/survivalcodex/codex/internal/client/entitlement"
	"github.com/survivalcodex/codex/internal/client/llm"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/logging"
)

const systemPrompt = "You are a survival skills instructor. Answer briefly with safe, practical steps. " +
	"If a situation is life-threatening, tell the user to contact emergency services first."

type Completer interface {
	Complete(ctx context.Context, apiKey string, messages []llm.ChatMessage) (string, error)
}

type Gate interface {
	Check(ctx context.Context) (entitlement.Decision, error)
	Record(ctx context.Context) (models.AIQuota, error)
}

type Conversations interface {
	Get(ctx context.Context, id string) (models.Conversation, error)
	Create(ctx context.Context, title, first string, reply *string) (models.Conversation, error)
	Append(ctx context.Context, id string, role models.Role, content string) (models.Message, error)
}

// KeySource yields the signed-in user's own API key.
type KeySource interface {
	APIKey() (string, bool)
}

type Answer struct {
	ConversationID string
	Reply          string
	// Remaining is the free quota left after this exchange, or
	// entitlement.Unlimited.
	Remaining int
}

type Assistant struct {
	model      Completer
	gate       Gate
	convs      Conversations
	keys       KeySource
	defaultKey string
	logger     logging.Logger
}

func New(model Completer, gate Gate, convs Conversations, keys KeySource, defaultKey string, l logging.Logger) *Assistant {
	if l == nil {
		l = logging.Discard()
	}
	return &Assistant{model: model, gate: gate, convs: convs, keys: keys, defaultKey: defaultKey, logger: l.With("module", "assistant")}
}

func (a *Assistant) apiKey() string {
	if a.keys != nil {
		if k, ok := a.keys.APIKey(); ok {
			return k
		}
	}
	return a.defaultKey
}

// Ask sends prompt, continuing conversationID when it is set. A denied
// quota returns entitlement.ErrQuotaExceeded and counts nothing. A reply
// that could not be stored is still returned, with the storage error.
func (a *Assistant) Ask(ctx context.Context, conversationID, prompt string) (Answer, error) {
	d, err := a.gate.Check(ctx)
	if err != nil {
		return Answer{ConversationID: conversationID, Remaining: d.Remaining}, err
	}

	msgs := []llm.ChatMessage{{Role: "system", Content: systemPrompt}}
	if conversationID != "" {
		conv, err := a.convs.Get(ctx, conversationID)
		if err != nil {
			return Answer{}, err
		}
		for _, m := range conv.Messages {
			msgs = append(msgs, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
		}
	}
	msgs = append(msgs, llm.ChatMessage{Role: string(models.RoleUser), Content: prompt})

	reply, err := a.model.Complete(ctx, a.apiKey(), msgs)
	if err != nil {
		return Answer{ConversationID: conversationID, Remaining: d.Remaining}, fmt.Errorf("assistant: %w", err)
	}

	ans := Answer{ConversationID: conversationID, Reply: reply, Remaining: d.Remaining}
	perr := a.persist(ctx, &ans, prompt, reply)

	if _, err := a.gate.Record(ctx); err != nil {
		a.logger.Error(ctx, "recording quota failed", "error", err)
	} else if ans.Remaining != entitlement.Unlimited && ans.Remaining > 0 {
		ans.Remaining--
	}
	if perr != nil {
		return ans, perr
	}
	return ans, nil
}

func (a *Assistant) persist(ctx context.Context, ans *Answer, prompt, reply string) error {
	if ans.ConversationID == "" {
		conv, err := a.convs.Create(ctx, "", prompt, &reply)
		ans.ConversationID = conv.ID
		if err != nil {
			return fmt.Errorf("store exchange: %w", err)
		}
		return nil
	}

	if _, err := a.convs.Append(ctx, ans.ConversationID, models.RoleUser, prompt); err != nil {
		return fmt.Errorf("store exchange: %w", err)
	}
	if _, err := a.convs.Append(ctx, ans.ConversationID, models.RoleAssistant, reply); err != nil {
		return fmt.Errorf("store exchange: %w", err)
	}
	return nil
}
