package models

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEffectiveTier(t *testing.T) {
	now := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	var nilUser *User
	assert.Equal(t, TierFree, nilUser.EffectiveTier(now))
	assert.Equal(t, TierFree, (&User{SubscriptionTier: TierFree}).EffectiveTier(now))
	assert.Equal(t, TierPremium, (&User{SubscriptionTier: TierPremium}).EffectiveTier(now))
	assert.Equal(t, TierPremium, (&User{SubscriptionTier: TierPremium, SubscriptionExpiry: &future}).EffectiveTier(now))
	assert.Equal(t, TierFree, (&User{SubscriptionTier: TierPremium, SubscriptionExpiry: &past}).EffectiveTier(now))
}

func TestParseTier(t *testing.T) {
	assert.Equal(t, TierPremium, ParseTier("premium"))
	assert.Equal(t, TierFree, ParseTier("free"))
	assert.Equal(t, TierFree, ParseTier("gold"))
}

func TestUserClone_IsDeep(t *testing.T) {
	key := "k"
	u := &User{ID: "1", APIKey: &key}
	c := u.Clone()
	*c.APIKey = "changed"
	assert.Equal(t, "k", *u.APIKey)
}

func TestProfilePatch_ApplyOnlySupplied(t *testing.T) {
	u := &User{ID: "1", Name: "old", Language: "en"}
	name := "new"
	p := ProfilePatch{Name: &name}
	assert.False(t, p.Empty())
	p.ApplyTo(u)
	assert.Equal(t, "new", u.Name)
	assert.Equal(t, "en", u.Language)
	assert.True(t, ProfilePatch{}.Empty())
}

func TestDefaultTitle(t *testing.T) {
	assert.Equal(t, "Bonjour", DefaultTitle("Bonjour"))
	assert.Equal(t, "a b", DefaultTitle("  a \n b "))

	long := strings.Repeat("é", 50)
	got := DefaultTitle(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.Equal(t, 41, utf8.RuneCountInString(got))
}

func TestReceiptActive(t *testing.T) {
	now := time.Now()
	past, future := now.Add(-time.Minute), now.Add(time.Minute)
	assert.True(t, BillingReceipt{}.Active(now))
	assert.True(t, BillingReceipt{ExpiryTime: &future}.Active(now))
	assert.False(t, BillingReceipt{ExpiryTime: &past}.Active(now))
}
