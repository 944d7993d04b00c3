package store

const (
	KeyBookmarks       = "bookmarks"
	KeyDownloads       = "downloads"
	KeyOfflineContent  = "offline_content"
	KeyProfileCache    = "profile_cache"
	KeyLocalUser       = "local_user"
	KeyAIQuota         = "ai_quota"
	KeyAIConversations = "ai_conversations"
	KeyCatalog         = "catalog"
	KeySession         = "session"
	KeyDeviceKey       = "device_key"

	remoteCachePrefix = "remote_cache:"
)

// RemoteCacheKey is where the last successful remote read of a collection
// is kept for the given user.
func RemoteCacheKey(collection, userID string) string {
	return remoteCachePrefix + collection + ":" + userID
}

// RemoteCachePrefix matches every remote snapshot of one collection.
func RemoteCachePrefix(collection string) string {
	return remoteCachePrefix + collection + ":"
}
