package domain

import "time"

// SyncStatus is the state of one (profile, currency) ingestion cursor.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncError   SyncStatus = "error"
)

// SyncCursor is the incremental-ingestion watermark for one
// (profile, currency) pair. At most one row per pair may be syncing.
type SyncCursor struct {
	ID           int64
	ProfileID    int64
	Currency     string
	EntityName   string
	BalanceID    int64
	Status       SyncStatus
	Error        string
	LastSyncedAt *time.Time
	LastEndDate  *time.Time
	Count        int64
}
