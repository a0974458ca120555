package ports

import (
	"context"
	"time"

	"github.com/newsdesk/notifyd/internal/dto"
	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/pkg/types"
)

// HeaderStore owns notification header rows and their recipient mappings.
// Only the queue service mutates headers through it.
type HeaderStore interface {
	// CreateBatch inserts all headers and mappings of one queue call in a
	// single transaction: a mid-batch failure leaves no headers behind.
	CreateBatch(ctx context.Context, headers []*model.Header, mappings map[types.UUID][]int64) error
	Get(ctx context.Context, id types.UUID) (*model.Header, error)
	GetByArticle(ctx context.Context, articleID int64) ([]*model.Header, error)
	GetByArticleMethod(ctx context.Context, articleID int64, methodID string) (*model.Header, error)
	Pending(ctx context.Context, now time.Time) ([]*model.Header, error)
	// Claim atomically flips pending->sending. False means some other
	// dispatcher got there first (or the header was cancelled meanwhile).
	Claim(ctx context.Context, id types.UUID) (bool, error)
	// Finalize writes the terminal status unconditionally so a header never
	// stays parked at sending.
	Finalize(ctx context.Context, id types.UUID, status model.Status, message string) error
	Cancel(ctx context.Context, articleID int64, methodID string) (int64, error)
	ArticlesByRecipient(ctx context.Context, recipientMethodID int64, methodID string) ([]int64, error)
}

type ArticleSource interface {
	GetArticle(ctx context.Context, id int64) (*model.Article, error)
}

type StatusCache interface {
	SaveStatus(ctx context.Context, articleID int64, methodID string, status model.Status, message string) error
	GetStatus(ctx context.Context, articleID int64, methodID string) (model.Status, string, error)
	Invalidate(ctx context.Context, articleID int64, methodID string) error
}

type EmailTransport interface {
	PublishEmail(ctx context.Context, job *dto.EmailJob) error
	PublishAuthorNote(ctx context.Context, job *dto.EmailJob) error
}

type AuthorNotifier interface {
	NotifyAuthor(ctx context.Context, article *model.Article, subject, body string) error
}

// QueueServiceInterface is what the HTTP layer needs from the engine.
type QueueServiceInterface interface {
	QueueNotifications(ctx context.Context, articleID, userID int64, isDraft bool, usedMethods map[string][]int64, mode model.SendMode, sendAfter *time.Time) error
	CancelNotifications(ctx context.Context, articleID int64, methodID string) error
	Notifications(ctx context.Context, articleID int64) ([]model.NotificationView, error)
	Status(ctx context.Context, articleID int64, methodID string) (model.Status, string, error)
	Data(ctx context.Context, articleID int64, methodID string) (map[string]string, error)
	Pending(ctx context.Context) ([]model.PendingNotification, error)
}

// QueueEngine is what the dispatcher needs from the engine.
type QueueEngine interface {
	Pending(ctx context.Context) ([]model.PendingNotification, error)
	Status(ctx context.Context, articleID int64, methodID string) (model.Status, string, error)
	SendPending(ctx context.Context, header *model.Header, allRecipients string) ([]model.RecipientResult, error)
	Targets(ctx context.Context, headerID types.UUID) ([]model.Target, error)
}
