package dto

import (
	"fmt"
	"time"

	"github.com/newsdesk/notifyd/internal/model"
)

type QueueNotificationsRequest struct {
	UserID    int64              `json:"user_id"`
	IsDraft   bool               `json:"is_draft"`
	SendMode  string             `json:"send_mode"`
	SendAfter string             `json:"send_after,omitempty"`
	Methods   map[string][]int64 `json:"methods"`
}

// ToParams validates the wire form. A missing send_after is legal here for
// timed mode: the service rejects it, so the error surfaces in one place.
func (r QueueNotificationsRequest) ToParams() (model.SendMode, *time.Time, error) {
	mode, err := model.ParseSendMode(r.SendMode)
	if err != nil {
		return "", nil, err
	}

	if r.SendAfter == "" {
		return mode, nil, nil
	}
	at, err := time.Parse(time.RFC3339, r.SendAfter)
	if err != nil {
		return "", nil, fmt.Errorf("incorrect 'send_after' '%s': %w", r.SendAfter, err)
	}
	return mode, &at, nil
}
