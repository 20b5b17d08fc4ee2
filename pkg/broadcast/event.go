// Package broadcast pushes live point and leaderboard updates to connected
// websocket subscribers. Delivery is fire-and-forget, at-most-once per
// connected client; disconnected observers catch up on their next read.
package broadcast

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType identifies the broadcast event kind.
type EventType string

const (
	EventPointsUpdate      EventType = "points_update"
	EventLeaderboardUpdate EventType = "leaderboard_update"
)

// Event is a single broadcast payload. Fields are populated according to the
// event type; absent fields are omitted from the wire format.
type Event struct {
	ID                string           `json:"id"`
	Type              EventType        `json:"type"`
	UserID            int64            `json:"user_id,omitempty"`
	Address           string           `json:"address,omitempty"`
	PointsBefore      *decimal.Decimal `json:"points_before,omitempty"`
	PointsAfter       *decimal.Decimal `json:"points_after,omitempty"`
	TotalGlobalPoints *decimal.Decimal `json:"total_global_points,omitempty"`
	UserCount         int              `json:"user_count,omitempty"`
	Timestamp         time.Time        `json:"timestamp"`
}

// NewPointsUpdate builds a points_update event with before/after totals.
func NewPointsUpdate(userID int64, address string, before, after decimal.Decimal) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         EventPointsUpdate,
		UserID:       userID,
		Address:      address,
		PointsBefore: &before,
		PointsAfter:  &after,
		Timestamp:    time.Now().UTC(),
	}
}

// NewLeaderboardUpdate builds a leaderboard_update event with global totals.
func NewLeaderboardUpdate(totalGlobalPoints decimal.Decimal, userCount int) Event {
	return Event{
		ID:                uuid.NewString(),
		Type:              EventLeaderboardUpdate,
		TotalGlobalPoints: &totalGlobalPoints,
		UserCount:         userCount,
		Timestamp:         time.Now().UTC(),
	}
}
