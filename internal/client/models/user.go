package models

import (
	"time"

	"github.com/survivalcodex/codex/internal/common"
)

type Tier string

const (
	TierFree    Tier = common.TierFree
	TierPremium Tier = common.TierPremium
)

// ParseTier maps anything that is not "premium" to free.
func ParseTier(s string) Tier {
	if Tier(s) == TierPremium {
		return TierPremium
	}
	return TierFree
}

type User struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	Name               string     `json:"name"`
	SubscriptionTier   Tier       `json:"subscription_tier"`
	SubscriptionExpiry *time.Time `json:"subscription_expiry_date,omitempty"`
	AvatarURL          *string    `json:"avatar_url,omitempty"`
	Language           string     `json:"language"`
	APIKey             *string    `json:"api_key,omitempty"`
}

// EffectiveTier is the tier in force at now: a premium subscription whose
// expiry has passed counts as free.
func (u *User) EffectiveTier(now time.Time) Tier {
	if u == nil || u.SubscriptionTier != TierPremium {
		return TierFree
	}
	if u.SubscriptionExpiry != nil && !u.SubscriptionExpiry.After(now) {
		return TierFree
	}
	return TierPremium
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.SubscriptionExpiry != nil {
		t := *u.SubscriptionExpiry
		c.SubscriptionExpiry = &t
	}
	if u.AvatarURL != nil {
		s := *u.AvatarURL
		c.AvatarURL = &s
	}
	if u.APIKey != nil {
		s := *u.APIKey
		c.APIKey = &s
	}
	return &c
}

// ProfilePatch carries only the fields a caller wants to change; nil fields
// are left untouched.
type ProfilePatch struct {
	Name               *string
	Language           *string
	AvatarURL          *string
	APIKey             *string
	SubscriptionTier   *Tier
	SubscriptionExpiry *time.Time
}

func (p ProfilePatch) Empty() bool {
	return p.Name == nil && p.Language == nil && p.AvatarURL == nil &&
		p.APIKey == nil && p.SubscriptionTier == nil && p.SubscriptionExpiry == nil
}

// ApplyTo merges the patch over u in place.
func (p ProfilePatch) ApplyTo(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Language != nil {
		u.Language = *p.Language
	}
	if p.AvatarURL != nil {
		v := *p.AvatarURL
		u.AvatarURL = &v
	}
	if p.APIKey != nil {
		v := *p.APIKey
		u.APIKey = &v
	}
	if p.SubscriptionTier != nil {
		u.SubscriptionTier = *p.SubscriptionTier
	}
	if p.SubscriptionExpiry != nil {
		v := *p.SubscriptionExpiry
		u.SubscriptionExpiry = &v
	}
}
