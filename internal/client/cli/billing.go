package cli

import (
	"context"
	"fmt"
)

func (a *App) products(ctx context.Context, _ []string) error {
	list, err := a.billing.Products(ctx)
	if err != nil {
		return err
	}
	for _, p := range list {
		fmt.Fprintf(a.out, "%-16s %-20s %s\n", p.ID, p.Title, p.Price)
	}
	return nil
}

func (a *App) buy(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	u, err := a.billing.Purchase(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Thank you! Your plan is now %s.\n", u.SubscriptionTier)
	return nil
}

func (a *App) restore(ctx context.Context, _ []string) error {
	u, err := a.billing.Restore(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Purchases restored. Plan: %s.\n", u.SubscriptionTier)
	return nil
}
