package session

import (
	"time"

	"github.com/survivalcodex/codex/internal/client/gateway"
	"github.com/survivalcodex/codex/internal/client/models"
)

// ProfilesTable holds one row per user, keyed by the user id.
const ProfilesTable = "profiles"

func profileFromRow(r gateway.Row) models.User {
	return models.User{
		ID:                 r.String("id"),
		Email:              r.String("email"),
		Name:               r.String("name"),
		SubscriptionTier:   models.ParseTier(r.String("subscription_tier")),
		SubscriptionExpiry: r.TimePtr("subscription_expiry_date"),
		AvatarURL:          r.StringPtr("avatar_url"),
		Language:           r.String("language"),
		APIKey:             r.StringPtr("api_key"),
	}
}

func profileToRow(u models.User) gateway.Row {
	row := gateway.Row{
		"id":                u.ID,
		"email":             u.Email,
		"name":              u.Name,
		"subscription_tier": string(u.SubscriptionTier),
		"language":          u.Language,
	}
	if u.SubscriptionExpiry != nil {
		row["subscription_expiry_date"] = gateway.Timestamp(*u.SubscriptionExpiry)
	}
	if u.AvatarURL != nil {
		row["avatar_url"] = *u.AvatarURL
	}
	if u.APIKey != nil {
		row["api_key"] = *u.APIKey
	}
	return row
}

// patchToRow holds only the supplied fields.
func patchToRow(p models.ProfilePatch, now time.Time) gateway.Row {
	row := gateway.Row{"updated_at": gateway.Timestamp(now)}
	if p.Name != nil {
		row["name"] = *p.Name
	}
	if p.Language != nil {
		row["language"] = *p.Language
	}
	if p.AvatarURL != nil {
		row["avatar_url"] = *p.AvatarURL
	}
	if p.APIKey != nil {
		row["api_key"] = *p.APIKey
	}
	if p.SubscriptionTier != nil {
		row["subscription_tier"] = string(*p.SubscriptionTier)
	}
	if p.SubscriptionExpiry != nil {
		row["subscription_expiry_date"] = gateway.Timestamp(*p.SubscriptionExpiry)
	}
	return row
}
