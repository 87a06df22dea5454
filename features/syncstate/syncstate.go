// Package syncstate keeps the resumable cursor for incremental provider
// syncs. One row per (user, provider, scope); the cursor is persisted after
// every page so a crash loses at most one page of progress.
package syncstate

import "time"

const (
	StatusIdle       = "idle"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type State struct {
	UserID        string     `json:"user_id"`
	Provider      string     `json:"provider"`
	FolderScope   string     `json:"folder_scope"`
	LastSyncAt    *time.Time `json:"last_sync_at,omitempty"`
	NextPageToken string     `json:"next_page_token"`
	LastCursor    string     `json:"last_cursor"`
	ItemsSynced   int        `json:"items_synced"`
	SyncStatus    string     `json:"sync_status"`
	ErrorMessage  string     `json:"error_message,omitempty"`
}

// Key identifies one sync scope.
type Key struct {
	UserID      string
	Provider    string
	FolderScope string
}
