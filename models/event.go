package models

import (
	"time"

	"goflare.io/storefront/models/enum"
)

// SessionEvent is published by the auth layer whenever the session identity changes.
type SessionEvent struct {
	ID         string                `json:"id"`
	Type       enum.SessionEventType `json:"type"`
	UserID     string                `json:"user_id,omitempty"`
	Token      string                `json:"token,omitempty"`
	OccurredAt time.Time             `json:"occurred_at"`
}
