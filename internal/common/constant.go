package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// Subscription tiers stored in profiles.subscription_tier.
const (
	TierFree    = "free"
	TierPremium = "premium"
)

// DefaultLanguage is assigned to freshly provisioned profiles.
const DefaultLanguage = "en"
