package model

import "time"

// GenerationState is the per-user generation metadata singleton: watermarks
// for the daily pass and the shopping reconciler, plus the advisory lock
// lease. Watermark and lock races resolve last-write-wins; they support
// idempotency but are not sources of truth.
type GenerationState struct {
	ID     uint `gorm:"primaryKey"`
	UserID uint `gorm:"uniqueIndex"`

	// LastTaskGeneration is the last calendar date the full generation pass
	// ran for; LastShoppingProcessed bounds the carry-forward query window.
	LastTaskGeneration    *time.Time
	LastShoppingProcessed *time.Time

	// Lock lease: LockAcquiredAt older than the stale timeout may be taken
	// over; LockToken guards release so an evicted holder cannot free a
	// lease it no longer owns.
	LockAcquiredAt *time.Time
	LockToken      string

	CreatedAt time.Time
	UpdatedAt time.Time
}
