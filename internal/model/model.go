package model

import (
	"fmt"
	"time"

	"github.com/newsdesk/notifyd/pkg/types"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusPending   Status = "pending"
	StatusSending   Status = "sending"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal statuses accept no further transitions; re-delivery of a failed
// header needs operator intervention.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

func (s Status) String() string {
	return string(s)
}

type SendMode string

const (
	SendImmediate SendMode = "immediate"
	SendDelay     SendMode = "delay"
	SendTimed     SendMode = "timed"
)

func ParseSendMode(s string) (SendMode, error) {
	switch SendMode(s) {
	case SendImmediate, SendDelay, SendTimed:
		return SendMode(s), nil
	default:
		return "", fmt.Errorf("invalid send mode '%s'", s)
	}
}

// Header is one queued notification: one row per (article, delivery method).
type Header struct {
	ID        types.UUID `json:"id" db:"id"`
	ArticleID int64      `json:"article_id" db:"article_id"`
	MethodID  string     `json:"method_id" db:"method_id"`
	YearID    int        `json:"year_id" db:"year_id"`
	Status    Status     `json:"status" db:"status"`
	SendMode  SendMode   `json:"send_mode" db:"send_mode"`
	SendAfter time.Time  `json:"send_after" db:"send_after"`
	DataID    int64      `json:"data_id" db:"data_id"`
	Message   string     `json:"message" db:"message"`
	Updated   time.Time  `json:"updated" db:"updated"`
}

// Target is a resolved recipient for one delivery, with year-specific
// settings already folded in. Never persisted.
type Target struct {
	ID        int64             `json:"id"`
	Name      string            `json:"name"`
	Shortname string            `json:"shortname"`
	Settings  map[string]string `json:"settings"`
}

const (
	ResultSent    = "sent"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

type RecipientResult struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Message string `json:"message"`
}

// Article is the read model supplied by the publishing application.
type Article struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Summary     string    `json:"summary" db:"summary"`
	NotifyText  string    `json:"notify_text" db:"notify_text"`
	AuthorID    int64     `json:"author_id" db:"author_id"`
	AuthorEmail string    `json:"author_email" db:"author_email"`
	ReleaseAt   time.Time `json:"release_at" db:"release_at"`
	YearID      int       `json:"year_id" db:"year_id"`
}

// PendingNotification is a due header joined with its method name and the
// article's release time, the dispatch ordering key.
type PendingNotification struct {
	Header     *Header   `json:"header"`
	MethodName string    `json:"method_name"`
	ReleaseAt  time.Time `json:"release_at"`
}

// NotificationView is the aggregate per-method row shown in the composer UI.
type NotificationView struct {
	MethodID   string    `json:"method_id"`
	Status     Status    `json:"status"`
	SendMode   SendMode  `json:"send_mode"`
	SendAfter  time.Time `json:"send_after"`
	DataID     int64     `json:"data_id"`
	Message    string    `json:"message"`
	Updated    time.Time `json:"updated"`
	Recipients []string  `json:"recipients"`
}
