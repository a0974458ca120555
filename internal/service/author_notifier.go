package service

import (
	"context"
	"fmt"

	"github.com/newsdesk/notifyd/internal/dto"
	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/internal/ports"
)

// AuthorNotifier mails the article's author a delivery summary after the
// dispatcher processed their notification.
type AuthorNotifier struct {
	transport ports.EmailTransport
}

func NewAuthorNotifier(transport ports.EmailTransport) *AuthorNotifier {
	return &AuthorNotifier{transport: transport}
}

func (n *AuthorNotifier) NotifyAuthor(ctx context.Context, article *model.Article, subject, body string) error {
	if article.AuthorEmail == "" {
		return fmt.Errorf("article %d has no author email", article.ID)
	}
	return n.transport.PublishAuthorNote(ctx, &dto.EmailJob{
		To:        article.AuthorEmail,
		Subject:   subject,
		Body:      body,
		ArticleID: article.ID,
	})
}
