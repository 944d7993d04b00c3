package models

import "time"

// AIQuota tracks free-tier assistant usage for the current calendar month.
type AIQuota struct {
	Count     int       `json:"count"`
	LastReset time.Time `json:"last_reset"`
}
