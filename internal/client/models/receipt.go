package models

import (
	"encoding/json"
	"time"
)

type BillingReceipt struct {
	UserID        string          `json:"user_id"`
	Platform      string          `json:"platform"`
	ProductID     string          `json:"product_id"`
	PurchaseToken string          `json:"purchase_token"`
	OrderID       *string         `json:"order_id,omitempty"`
	ExpiryTime    *time.Time      `json:"expiry_time,omitempty"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
}

// Active reports whether the receipt has no expiry or expires after now.
func (r BillingReceipt) Active(now time.Time) bool {
	return r.ExpiryTime == nil || r.ExpiryTime.After(now)
}
