// Package domain defines the core persistence models for the application.
// These types are used by GORM for database schema mapping and are shared
// across the repository and service layers.
package domain

import "time"

// Idempotency records the lifecycle of one logical publish request, keyed by
// (user_id, key). A row is inserted with a NULL response when processing is
// first admitted ("pending") and updated exactly once with the completed HTTP
// response ("completed"). Rows are never deleted by normal operation, which
// is what makes client retries safe: the store-level unique index resolves
// the insert race between two concurrent identical requests, and the saved
// response makes replays deterministic.
type Idempotency struct {
	ID              string     `gorm:"type:char(36);primaryKey"`
	UserID          string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_idempotency_user_key,priority:1"`
	Key             string     `gorm:"type:varchar(200);not null;uniqueIndex:ux_idempotency_user_key,priority:2"`
	ResponseStatus  *int       `gorm:"type:INTEGER"`
	ResponseHeaders *string    `gorm:"type:text"` // JSON-encoded header list
	ResponseBody    []byte     `gorm:"type:blob"`
	CreatedAt       time.Time  `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	CompletedAt     *time.Time `gorm:"type:DATETIME"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }

// Completed reports whether the record carries a saved response. A record
// that exists but is not completed marks a request still in flight (or one
// that crashed before completing).
func (i *Idempotency) Completed() bool { return i.ResponseStatus != nil }
