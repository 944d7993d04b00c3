package billing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/gateway/gatewaytest"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/client/session"
	"github.com/survivalcodex/codex/internal/client/store"
	"github.com/survivalcodex/codex/internal/logging"
)

var now = time.Date(2026, 7, 1, 12, 0, 0, 0, time.UTC)

type fakePlugin struct {
	owned []models.BillingReceipt
	acked []string
}

func (f *fakePlugin) Connect(context.Context) error               { return nil }
func (f *fakePlugin) Products(context.Context) ([]Product, error) { return nil, nil }
func (f *fakePlugin) Acknowledge(_ context.Context, t string) error {
	f.acked = append(f.acked, t)
	return nil
}
func (f *fakePlugin) Purchases(context.Context) ([]models.BillingReceipt, error) {
	return f.owned, nil
}
func (f *fakePlugin) Purchase(context.Context, string) ([]models.BillingReceipt, error) {
	return f.owned, nil
}

func at(d time.Duration) *time.Time {
	t := now.Add(d)
	return &t
}

func newRemoteFixture(t *testing.T, p Plugin) (*Reconciler, *gatewaytest.Memory, *session.Manager) {
	t.Helper()
	s, err := store.Open(context.Background(), ":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	gw := gatewaytest.NewMemory()
	gw.AddAccount("ana@example.com", "pw")
	m := session.NewManager(gw, s, session.Options{Now: func() time.Time { return now }}, nil)
	_, err = m.SignIn(context.Background(), "ana@example.com", "pw")
	require.NoError(t, err)
	return NewReconciler(p, gw, m, time.Second, func() time.Time { return now }, nil), gw, m
}

func TestRestore_OnlyActiveReceiptsRecordedAndAcknowledged(t *testing.T) {
	p := &fakePlugin{owned: []models.BillingReceipt{
		{Platform: "play", ProductID: "premium_monthly", PurchaseToken: "expired", ExpiryTime: at(-time.Hour)},
		{Platform: "play", ProductID: "premium_monthly", PurchaseToken: "future", ExpiryTime: at(24 * time.Hour)},
		{Platform: "play", ProductID: "lifetime", PurchaseToken: "forever"},
	}}
	r, gw, m := newRemoteFixture(t, p)

	u, err := r.Restore(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"future", "forever"}, p.acked)
	var tokens []string
	for _, row := range gw.Rows(ReceiptsTable) {
		tokens = append(tokens, row.String("purchase_token"))
		assert.Equal(t, m.UserID(), row.String("user_id"))
	}
	assert.ElementsMatch(t, []string{"future", "forever"}, tokens)

	assert.Equal(t, models.TierPremium, u.SubscriptionTier)
	assert.Nil(t, u.SubscriptionExpiry)
}

func TestRestore_AllExpiredChangesNothing(t *testing.T) {
	p := &fakePlugin{owned: []models.BillingReceipt{
		{PurchaseToken: "old", ExpiryTime: at(-48 * time.Hour)},
	}}
	r, gw, m := newRemoteFixture(t, p)

	u, err := r.Restore(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.acked)
	assert.Empty(t, gw.Rows(ReceiptsTable))
	assert.Equal(t, models.TierFree, u.SubscriptionTier)
	assert.Equal(t, models.TierFree, m.Tier(now))
}

func TestPurchase_LatestExpiryWins(t *testing.T) {
	p := &fakePlugin{owned: []models.BillingReceipt{
		{PurchaseToken: "a", ExpiryTime: at(24 * time.Hour)},
		{PurchaseToken: "b", ExpiryTime: at(72 * time.Hour)},
	}}
	r, _, m := newRemoteFixture(t, p)

	u, err := r.Purchase(context.Background(), "premium_monthly")
	require.NoError(t, err)
	require.NotNil(t, u.SubscriptionExpiry)
	assert.True(t, u.SubscriptionExpiry.Equal(*at(72 * time.Hour)))
	assert.Equal(t, models.TierPremium, m.Tier(now))
	assert.Equal(t, models.TierFree, m.Tier(now.Add(73*time.Hour)))
}

func TestPurchase_RecordFailureSkipsAcknowledge(t *testing.T) {
	p := &fakePlugin{owned: []models.BillingReceipt{{PurchaseToken: "a", ExpiryTime: at(time.Hour)}}}
	r, gw, m := newRemoteFixture(t, p)
	gw.FailOn(gatewaytest.OpUpsert, ReceiptsTable, gateway.ErrUnavailable)

	_, err := r.Purchase(context.Background(), "premium_monthly")
	require.ErrorIs(t, err, gateway.ErrUnavailable)
	assert.Empty(t, p.acked)
	assert.Equal(t, models.TierFree, m.Tier(now))
}

func TestSandbox_PurchaseAndRestoreLocally(t *testing.T) {
	s, err := store.Open(context.Background(), ":memory:", logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	m := session.NewManager(gateway.Unconfigured{}, s, session.Options{}, nil)
	sandbox := NewSandbox(func() time.Time { return now })
	r := NewReconciler(sandbox, gateway.Unconfigured{}, m, 0, func() time.Time { return now }, nil)

	_, err = r.Purchase(ctx, "premium_monthly")
	require.ErrorIs(t, err, ErrNoUser)

	_, err = m.SignIn(ctx, "ana@example.com", "")
	require.NoError(t, err)

	_, err = r.Purchase(ctx, "nope")
	require.ErrorIs(t, err, ErrUnknownProduct)

	u, err := r.Purchase(ctx, "premium_yearly")
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, u.SubscriptionTier)
	require.NotNil(t, u.SubscriptionExpiry)
	assert.True(t, u.SubscriptionExpiry.Equal(now.Add(365*24*time.Hour)))

	owned, err := sandbox.Purchases(ctx)
	require.NoError(t, err)
	require.Len(t, owned, 1)
	assert.True(t, sandbox.Acknowledged(owned[0].PurchaseToken))

	u, err = r.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, u.SubscriptionTier)

	products, err := r.Products(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 2)
}
