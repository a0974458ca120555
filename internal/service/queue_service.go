package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/wb-go/wbf/zlog"

	"github.com/newsdesk/notifyd/internal/method"
	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/internal/ports"
	"github.com/newsdesk/notifyd/pkg/types"
)

var (
	ErrInvalidSendMode   = errors.New("invalid send mode")
	ErrSendAfterRequired = errors.New("send_after is required for timed mode")
	ErrUnknownMethod     = errors.New("unknown notification method")
	ErrHeaderNotFound    = errors.New("notification header not found")
)

// skippedResult is returned when a claim misses: another dispatcher already
// owns the header, or it was cancelled under us. Not an error.
func skippedResult() []model.RecipientResult {
	return []model.RecipientResult{{Name: "all", State: model.ResultSkipped, Message: "status changed"}}
}

type QueueService struct {
	store     ports.HeaderStore
	articles  ports.ArticleSource
	cache     ports.StatusCache
	registry  *method.Registry
	holdDelay time.Duration
}

func NewQueueService(
	store ports.HeaderStore,
	articles ports.ArticleSource,
	cache ports.StatusCache,
	registry *method.Registry,
	holdDelay time.Duration,
) *QueueService {
	return &QueueService{
		store:     store,
		articles:  articles,
		cache:     cache,
		registry:  registry,
		holdDelay: holdDelay,
	}
}

// QueueNotifications creates one header per used method plus its recipient
// mappings and method payload. All headers of one call commit together.
func (s *QueueService) QueueNotifications(ctx context.Context, articleID, userID int64, isDraft bool, usedMethods map[string][]int64, mode model.SendMode, sendAfter *time.Time) error {
	if len(usedMethods) == 0 {
		return nil
	}

	article, err := s.articles.GetArticle(ctx, articleID)
	if err != nil {
		return fmt.Errorf("error loading article %d: %w", articleID, err)
	}

	var after time.Time
	switch mode {
	case model.SendImmediate:
		after = article.ReleaseAt
	case model.SendDelay:
		after = article.ReleaseAt.Add(s.holdDelay)
	case model.SendTimed:
		if sendAfter == nil {
			return ErrSendAfterRequired
		}
		after = *sendAfter
	default:
		return fmt.Errorf("%w: '%s'", ErrInvalidSendMode, mode)
	}

	names := make([]string, 0, len(usedMethods))
	for name := range usedMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, ok := s.registry.Get(name); !ok {
			return fmt.Errorf("%w: '%s'", ErrUnknownMethod, name)
		}
	}

	status := model.StatusPending
	if isDraft {
		status = model.StatusDraft
	}

	headers := make([]*model.Header, 0, len(names))
	mappings := make(map[types.UUID][]int64, len(names))
	for _, name := range names {
		impl, _ := s.registry.Get(name)
		dataID, err := impl.StoreData(ctx, articleID, article, userID, isDraft, usedMethods[name])
		if err != nil {
			return fmt.Errorf("method '%s' failed to store its data: %w", name, err)
		}
		header := &model.Header{
			ID:        types.GenerateUUID(),
			ArticleID: articleID,
			MethodID:  name,
			YearID:    article.YearID,
			Status:    status,
			SendMode:  mode,
			SendAfter: after,
			DataID:    dataID,
			Updated:   time.Now(),
		}
		headers = append(headers, header)
		mappings[header.ID] = usedMethods[name]
	}

	if err := s.store.CreateBatch(ctx, headers, mappings); err != nil {
		return fmt.Errorf("error creating notification headers: %w", err)
	}
	for _, name := range names {
		s.invalidateStatus(ctx, articleID, name)
	}

	zlog.Logger.Info().
		Int64("article_id", articleID).
		Int("methods", len(names)).
		Str("status", status.String()).
		Time("send_after", after).
		Msg("queued notifications")
	return nil
}

// CancelNotifications flips every non-terminal header of the article (and
// method, if given) to cancelled. Zero matches is fine.
func (s *QueueService) CancelNotifications(ctx context.Context, articleID int64, methodID string) error {
	affected, err := s.store.Cancel(ctx, articleID, methodID)
	if err != nil {
		return fmt.Errorf("error cancelling notifications: %w", err)
	}

	if methodID != "" {
		s.invalidateStatus(ctx, articleID, methodID)
	} else {
		for _, name := range s.registry.Names() {
			s.invalidateStatus(ctx, articleID, name)
		}
	}

	zlog.Logger.Info().
		Int64("article_id", articleID).
		Str("method_id", methodID).
		Int64("cancelled", affected).
		Msg("cancelled notifications")
	return nil
}

// Pending returns due pending headers joined with their article release
// times, ordered by (release time, method name) so dispatch order is
// deterministic and reproducible.
func (s *QueueService) Pending(ctx context.Context) ([]model.PendingNotification, error) {
	headers, err := s.store.Pending(ctx, time.Now())
	if err != nil {
		return nil, fmt.Errorf("error fetching pending notifications: %w", err)
	}

	releases := map[int64]time.Time{}
	pending := make([]model.PendingNotification, 0, len(headers))
	for _, header := range headers {
		release, ok := releases[header.ArticleID]
		if !ok {
			article, err := s.articles.GetArticle(ctx, header.ArticleID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Int64("article_id", header.ArticleID).
					Stringer("header_id", header.ID).
					Msg("skipping pending header with unresolvable article")
				continue
			}
			release = article.ReleaseAt
			releases[header.ArticleID] = release
		}
		pending = append(pending, model.PendingNotification{
			Header:     header,
			MethodName: header.MethodID,
			ReleaseAt:  release,
		})
	}

	sort.SliceStable(pending, func(i, j int) bool {
		if !pending[i].ReleaseAt.Equal(pending[j].ReleaseAt) {
			return pending[i].ReleaseAt.Before(pending[j].ReleaseAt)
		}
		return pending[i].MethodName < pending[j].MethodName
	})
	return pending, nil
}

// SendPending claims the header and delivers it. The claim write happens
// before any delivery I/O; whatever the delivery does, the header always
// ends on a terminal status.
func (s *QueueService) SendPending(ctx context.Context, header *model.Header, allRecipients string) ([]model.RecipientResult, error) {
	impl, ok := s.registry.Get(header.MethodID)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownMethod, header.MethodID)
	}

	claimed, err := s.store.Claim(ctx, header.ID)
	if err != nil {
		return nil, fmt.Errorf("error claiming header '%s': %w", header.ID, err)
	}
	if !claimed {
		zlog.Logger.Info().
			Stringer("header_id", header.ID).
			Msg("header already claimed or altered, skipping")
		return skippedResult(), nil
	}

	status, results, sendErr := s.deliver(ctx, header, impl, allRecipients)

	message := aggregateMessage(results)
	if sendErr != nil {
		status = model.StatusFailed
		message = sendErr.Error()
	}
	if status == "" || !status.Terminal() {
		status = model.StatusFailed
	}
	if err := s.store.Finalize(ctx, header.ID, status, message); err != nil {
		zlog.Logger.Error().
			Err(err).
			Stringer("header_id", header.ID).
			Msg("failed to finalize header status")
	}
	s.invalidateStatus(ctx, header.ArticleID, header.MethodID)

	zlog.Logger.Info().
		Stringer("header_id", header.ID).
		Int64("article_id", header.ArticleID).
		Str("method_id", header.MethodID).
		Str("status", status.String()).
		Msg("notification processed")

	if sendErr != nil {
		return results, sendErr
	}
	return results, nil
}

func (s *QueueService) deliver(ctx context.Context, header *model.Header, impl method.NotificationMethod, allRecipients string) (model.Status, []model.RecipientResult, error) {
	article, err := s.articles.GetArticle(ctx, header.ArticleID)
	if err != nil {
		return model.StatusFailed, nil, fmt.Errorf("error loading article %d: %w", header.ArticleID, err)
	}
	targets, err := impl.Targets(ctx, header.ID, header.YearID)
	if err != nil {
		return model.StatusFailed, nil, fmt.Errorf("error resolving targets: %w", err)
	}
	return impl.Send(ctx, article, targets, allRecipients)
}

// Status answers the (article, method) status query, cache first.
func (s *QueueService) Status(ctx context.Context, articleID int64, methodID string) (model.Status, string, error) {
	if status, message, err := s.cache.GetStatus(ctx, articleID, methodID); err == nil {
		return status, message, nil
	}

	header, err := s.store.GetByArticleMethod(ctx, articleID, methodID)
	if err != nil {
		return "", "", fmt.Errorf("%w: article %d method '%s'", ErrHeaderNotFound, articleID, methodID)
	}
	if err := s.cache.SaveStatus(ctx, articleID, methodID, header.Status, header.Message); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to cache notification status")
	}
	return header.Status, header.Message, nil
}

func (s *QueueService) Targets(ctx context.Context, headerID types.UUID) ([]model.Target, error) {
	header, err := s.store.Get(ctx, headerID)
	if err != nil {
		return nil, fmt.Errorf("%w: '%s'", ErrHeaderNotFound, headerID)
	}
	impl, ok := s.registry.Get(header.MethodID)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownMethod, header.MethodID)
	}
	return impl.Targets(ctx, header.ID, header.YearID)
}

// Data returns the method-private payload stored for the article, for
// display in the composer UI. An empty map means the method kept none.
func (s *QueueService) Data(ctx context.Context, articleID int64, methodID string) (map[string]string, error) {
	impl, ok := s.registry.Get(methodID)
	if !ok {
		return nil, fmt.Errorf("%w: '%s'", ErrUnknownMethod, methodID)
	}
	return impl.Data(ctx, articleID)
}

func (s *QueueService) DataID(ctx context.Context, headerID types.UUID) (int64, error) {
	header, err := s.store.Get(ctx, headerID)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s'", ErrHeaderNotFound, headerID)
	}
	return header.DataID, nil
}

// Notifications builds the per-method aggregate the composer UI shows for
// one article.
func (s *QueueService) Notifications(ctx context.Context, articleID int64) ([]model.NotificationView, error) {
	headers, err := s.store.GetByArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("error loading notifications for article %d: %w", articleID, err)
	}

	views := make([]model.NotificationView, 0, len(headers))
	for _, header := range headers {
		view := model.NotificationView{
			MethodID:  header.MethodID,
			Status:    header.Status,
			SendMode:  header.SendMode,
			SendAfter: header.SendAfter,
			DataID:    header.DataID,
			Message:   header.Message,
			Updated:   header.Updated,
		}
		if impl, ok := s.registry.Get(header.MethodID); ok {
			targets, err := impl.Targets(ctx, header.ID, header.YearID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Stringer("header_id", header.ID).
					Msg("failed to resolve targets for notification view")
			}
			for _, t := range targets {
				view.Recipients = append(view.Recipients, t.Name)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

// NotifiedArticles is the reverse lookup: which articles went out to a
// recipient-method mapping.
func (s *QueueService) NotifiedArticles(ctx context.Context, recipientMethodID int64, methodID string) ([]int64, error) {
	return s.store.ArticlesByRecipient(ctx, recipientMethodID, methodID)
}

// UsedMethods lists the method names that have a header for the article.
func (s *QueueService) UsedMethods(ctx context.Context, articleID int64) ([]string, error) {
	headers, err := s.store.GetByArticle(ctx, articleID)
	if err != nil {
		return nil, err
	}
	seen := map[string]bool{}
	names := []string{}
	for _, header := range headers {
		if !seen[header.MethodID] {
			seen[header.MethodID] = true
			names = append(names, header.MethodID)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *QueueService) invalidateStatus(ctx context.Context, articleID int64, methodID string) {
	if err := s.cache.Invalidate(ctx, articleID, methodID); err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("article_id", articleID).
			Str("method_id", methodID).
			Msg("failed to invalidate status cache")
	}
}

// aggregateMessage flattens per-recipient results into the audit text kept
// on the header, e.g. "Alice: sent; Bob: error (mailbox full)".
func aggregateMessage(results []model.RecipientResult) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if r.Message != "" {
			parts = append(parts, fmt.Sprintf("%s: %s (%s)", r.Name, r.State, r.Message))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", r.Name, r.State))
	}
	return strings.Join(parts, "; ")
}
