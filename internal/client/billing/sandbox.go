package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/survivalcodex/codex/internal/client/models"
)

// SandboxPlatform tags receipts issued by Sandbox.
const SandboxPlatform = "sandbox"

// Sandbox is an in-process store for development and the CLI. Purchases
// succeed immediately and last for the product's period.
type Sandbox struct {
	now func() time.Time

	mu       sync.Mutex
	products []Product
	owned    []models.BillingReceipt
	acked    map[string]bool
}

func NewSandbox(now func() time.Time) *Sandbox {
	if now == nil {
		now = time.Now
	}
	return &Sandbox{
		now: now,
		products: []Product{
			{ID: "premium_monthly", Title: "Premium (monthly)", Price: "$2.99", Period: 30 * 24 * time.Hour},
			{ID: "premium_yearly", Title: "Premium (yearly)", Price: "$24.99", Period: 365 * 24 * time.Hour},
		},
		acked: map[string]bool{},
	}
}

func (s *Sandbox) Connect(context.Context) error { return nil }

func (s *Sandbox) Products(context.Context) ([]Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Product(nil), s.products...), nil
}

func (s *Sandbox) Purchase(_ context.Context, productID string) ([]models.BillingReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID != productID {
			continue
		}
		expiry := s.now().Add(p.Period)
		order := "SANDBOX-" + uuid.NewString()[:8]
		raw, _ := json.Marshal(map[string]any{"product": p.ID, "order": order})
		rc := models.BillingReceipt{
			Platform:      SandboxPlatform,
			ProductID:     p.ID,
			PurchaseToken: uuid.NewString(),
			OrderID:       &order,
			ExpiryTime:    &expiry,
			RawPayload:    raw,
		}
		s.owned = append(s.owned, rc)
		return []models.BillingReceipt{rc}, nil
	}
	return nil, fmt.Errorf("%s: %w", productID, ErrUnknownProduct)
}

func (s *Sandbox) Acknowledge(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked[token] = true
	return nil
}

// Acknowledged reports whether token was acknowledged.
func (s *Sandbox) Acknowledged(token string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.acked[token]
}

func (s *Sandbox) Purchases(context.Context) ([]models.BillingReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.BillingReceipt(nil), s.owned...), nil
}
