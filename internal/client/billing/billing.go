// Package billing turns store purchases into a premium subscription.
//
// A Plugin is the platform store. The Reconciler keeps only receipts that
// have not expired, records them in billing_receipts, acknowledges them and
// moves the profile to premium until the latest expiry.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
	"github.com/survivalcodex/codex/internal/logging"
)

const ReceiptsTable = "billing_receipts"

var (
	ErrNoUser         = errors.New("billing needs a signed-in user")
	ErrUnknownProduct = errors.New("unknown product")
)

type Product struct {
	ID     string
	Title  string
	Price  string
	Period time.Duration
}

type Plugin interface {
	Connect(ctx context.Context) error
	Products(ctx context.Context) ([]Product, error)
	// Purchase buys productID and returns the resulting receipts.
	Purchase(ctx context.Context, productID string) ([]models.BillingReceipt, error)
	Acknowledge(ctx context.Context, purchaseToken string) error
	// Purchases lists everything the store account owns.
	Purchases(ctx context.Context) ([]models.BillingReceipt, error)
}

// Profiles is the part of the session manager billing writes to.
type Profiles interface {
	UserID() string
	RemoteUserID() (string, bool)
	UpdateProfile(ctx context.Context, patch models.ProfilePatch) (*models.User, error)
	Current() *models.User
}

type Reconciler struct {
	plugin   Plugin
	gw       gateway.Gateway
	profiles Profiles
	timeout  time.Duration
	now      func() time.Time
	logger   logging.Logger
}

func NewReconciler(p Plugin, gw gateway.Gateway, profiles Profiles, timeout time.Duration, now func() time.Time, l logging.Logger) *Reconciler {
	if now == nil {
		now = time.Now
	}
	if l == nil {
		l = logging.Discard()
	}
	return &Reconciler{plugin: p, gw: gw, profiles: profiles, timeout: timeout, now: now, logger: l.With("module", "billing")}
}

func (r *Reconciler) Products(ctx context.Context) ([]Product, error) {
	if err := r.plugin.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	return r.plugin.Products(ctx)
}

func (r *Reconciler) Purchase(ctx context.Context, productID string) (*models.User, error) {
	if r.profiles.UserID() == "" {
		return nil, ErrNoUser
	}
	if err := r.plugin.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	receipts, err := r.plugin.Purchase(ctx, productID)
	if err != nil {
		return nil, fmt.Errorf("purchase %s: %w", productID, err)
	}
	return r.apply(ctx, receipts)
}

// Restore re-applies every purchase the store account still owns.
func (r *Reconciler) Restore(ctx context.Context) (*models.User, error) {
	if r.profiles.UserID() == "" {
		return nil, ErrNoUser
	}
	if err := r.plugin.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect store: %w", err)
	}
	receipts, err := r.plugin.Purchases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return r.apply(ctx, receipts)
}

// Active drops receipts whose expiry has passed.
func Active(receipts []models.BillingReceipt, now time.Time) []models.BillingReceipt {
	out := make([]models.BillingReceipt, 0, len(receipts))
	for _, rc := range receipts {
		if rc.Active(now) {
			out = append(out, rc)
		}
	}
	return out
}

func (r *Reconciler) apply(ctx context.Context, receipts []models.BillingReceipt) (*models.User, error) {
	now := r.now()
	active := Active(receipts, now)
	if skipped := len(receipts) - len(active); skipped > 0 {
		r.logger.Info(ctx, "expired receipts ignored", "count", skipped)
	}
	if len(active) == 0 {
		return r.profiles.Current(), nil
	}

	uid := r.profiles.UserID()
	if remoteUID, ok := r.profiles.RemoteUserID(); ok {
		uid = remoteUID
		if err := r.record(ctx, uid, active); err != nil {
			return nil, err
		}
	}

	for _, rc := range active {
		if err := r.plugin.Acknowledge(ctx, rc.PurchaseToken); err != nil {
			return nil, fmt.Errorf("acknowledge %s: %w", rc.PurchaseToken, err)
		}
	}

	tier := models.TierPremium
	patch := models.ProfilePatch{SubscriptionTier: &tier}
	if exp := latestExpiry(active); exp != nil {
		patch.SubscriptionExpiry = exp
	}
	u, err := r.profiles.UpdateProfile(ctx, patch)
	if err != nil {
		return nil, fmt.Errorf("apply subscription: %w", err)
	}
	r.logger.Info(ctx, "subscription applied", "user_id", uid, "receipts", len(active))
	return u, nil
}

func (r *Reconciler) record(ctx context.Context, uid string, receipts []models.BillingReceipt) error {
	rows := make([]gateway.Row, 0, len(receipts))
	for _, rc := range receipts {
		rc.UserID = uid
		rows = append(rows, receiptRow(rc))
	}
	wctx, cancel := context.WithTimeout(ctx, r.timeoutOrDefault())
	defer cancel()
	if _, err := r.gw.Upsert(wctx, ReceiptsTable, rows, "purchase_token"); err != nil {
		return fmt.Errorf("record receipts: %w", err)
	}
	return nil
}

func (r *Reconciler) timeoutOrDefault() time.Duration {
	if r.timeout > 0 {
		return r.timeout
	}
	return 10 * time.Second
}

// latestExpiry is nil when any receipt never expires.
func latestExpiry(receipts []models.BillingReceipt) *time.Time {
	var latest *time.Time
	for _, rc := range receipts {
		if rc.ExpiryTime == nil {
			return nil
		}
		if latest == nil || rc.ExpiryTime.After(*latest) {
			t := *rc.ExpiryTime
			latest = &t
		}
	}
	return latest
}

func receiptRow(rc models.BillingReceipt) gateway.Row {
	row := gateway.Row{
		"user_id":        rc.UserID,
		"platform":       rc.Platform,
		"product_id":     rc.ProductID,
		"purchase_token": rc.PurchaseToken,
	}
	if rc.OrderID != nil {
		row["order_id"] = *rc.OrderID
	}
	if rc.ExpiryTime != nil {
		row["expiry_time"] = gateway.Timestamp(*rc.ExpiryTime)
	}
	if len(rc.RawPayload) > 0 {
		row["raw_payload"] = rc.RawPayload
	}
	return row
}
