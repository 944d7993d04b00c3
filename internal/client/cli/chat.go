package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/survivalcodex/codex/internal/client/entitlement"
	"github.com/survivalcodex/codex/internal/client/models"
)

func (a *App) ask(ctx context.Context, args []string) error {
	prompt := strings.Join(args, " ")
	if prompt == "" {
		var err error
		if prompt, err = getMultiline(a.reader, "Your question", a.out); err != nil {
			return err
		}
	}
	if prompt == "" {
		return errUsage
	}

	ans, err := a.assistant.Ask(ctx, a.chatID, prompt)
	if ans.ConversationID != "" {
		a.chatID = ans.ConversationID
	}
	if ans.Reply != "" {
		fmt.Fprintf(a.out, "\n%s\n\n", ans.Reply)
		if ans.Remaining != entitlement.Unlimited {
			fmt.Fprintf(a.out, "(%d free questions left this month)\n", ans.Remaining)
		}
	}
	return err
}

func (a *App) newChat(_ context.Context, _ []string) error {
	a.chatID = ""
	fmt.Fprintln(a.out, "Started a new conversation.")
	return nil
}

func (a *App) chats(ctx context.Context, _ []string) error {
	list, err := a.convs.List(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No conversations yet.")
		return nil
	}
	for _, c := range list {
		marker := " "
		if c.ID == a.chatID {
			marker = ">"
		}
		fmt.Fprintf(a.out, "%s %s  %s  %s\n", marker, c.ID, c.UpdatedAt.Local().Format(time.DateTime), c.Title)
	}
	return nil
}

func (a *App) chat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	c, err := a.convs.Get(ctx, args[0])
	if err != nil {
		return err
	}
	a.chatID = c.ID
	fmt.Fprintf(a.out, "%s\n", c.Title)
	for _, m := range c.Messages {
		fmt.Fprintf(a.out, "[%s] %s: %s\n", m.CreatedAt.Local().Format(time.TimeOnly), m.Role, m.Content)
	}
	return nil
}

func (a *App) delChat(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if err := a.convs.Delete(ctx, args[0]); err != nil {
		return err
	}
	if a.chatID == args[0] {
		a.chatID = ""
	}
	fmt.Fprintln(a.out, "Conversation deleted.")
	return nil
}

func (a *App) quota(ctx context.Context, _ []string) error {
	if a.gate.Tier() == models.TierPremium {
		fmt.Fprintln(a.out, "Premium: unlimited assistant questions.")
		return nil
	}
	q, err := a.gate.Quota(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%d of %d free questions used this month.\n", q.Count, a.config.AIQuotaLimit)
	return nil
}
