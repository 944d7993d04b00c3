package models

// TokenPair bundles a short-lived access token and a long-lived refresh
// token with the identity they were issued for.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	UserID       string
	Email        string
}

// Row is one record of a client-visible collection, keyed by column name.
type Row = map[string]any

// Query selects rows of a collection. OrderBy must be a column of it.
type Query struct {
	Collection string
	Filter     Row
	OrderBy    string
	Desc       bool
	Limit      int
}

// UploadTicket is a presigned avatar upload.
type UploadTicket struct {
	URL       string
	Key       string
	PublicURL string
}
