package dto

import (
	"github.com/newsdesk/notifyd/internal/model"
)

type NotificationView struct {
	MethodID   string   `json:"method_id"`
	Status     string   `json:"status"`
	SendMode   string   `json:"send_mode"`
	SendAfter  string   `json:"send_after"`
	DataID     int64    `json:"data_id,omitempty"`
	Message    string   `json:"message,omitempty"`
	Updated    string   `json:"updated"`
	Recipients []string `json:"recipients"`
}

func ToViewFromModel(v model.NotificationView) NotificationView {
	return NotificationView{
		MethodID:   v.MethodID,
		Status:     v.Status.String(),
		SendMode:   string(v.SendMode),
		SendAfter:  v.SendAfter.Format(timeLayout),
		DataID:     v.DataID,
		Message:    v.Message,
		Updated:    v.Updated.Format(timeLayout),
		Recipients: v.Recipients,
	}
}

type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type PendingNotificationView struct {
	ID         string `json:"id"`
	ArticleID  int64  `json:"article_id"`
	MethodName string `json:"method_name"`
	SendAfter  string `json:"send_after"`
	ReleaseAt  string `json:"release_at"`
}

func ToPendingFromModel(pn model.PendingNotification) PendingNotificationView {
	return PendingNotificationView{
		ID:         pn.Header.ID.String(),
		ArticleID:  pn.Header.ArticleID,
		MethodName: pn.MethodName,
		SendAfter:  pn.Header.SendAfter.Format(timeLayout),
		ReleaseAt:  pn.ReleaseAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00" // ISO8601
