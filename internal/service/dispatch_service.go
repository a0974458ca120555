package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/internal/ports"
)

var (
	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifyd_notifications_total",
			Help: "Processed notifications by method and final status",
		},
		[]string{"method", "status"},
	)
	dispatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "notifyd_dispatch_run_duration_seconds",
			Help:    "Duration of one dispatcher run",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(notificationsTotal, dispatchDuration)
}

type ReportLine struct {
	ArticleID int64
	Method    string
	Outcome   string
	Error     string
}

// Report is what an attended cron run prints.
type Report struct {
	Started  time.Time
	Finished time.Time
	Lines    []ReportLine
}

func (r *Report) Render() string {
	if len(r.Lines) == 0 {
		return "nothing to send"
	}
	lines := make([]string, 0, len(r.Lines)+1)
	lines = append(lines, fmt.Sprintf("dispatch run %s", r.Started.Format(time.RFC3339)))
	for _, l := range r.Lines {
		line := fmt.Sprintf("article %d via %s: %s", l.ArticleID, l.Method, l.Outcome)
		if l.Error != "" {
			line += " — " + l.Error
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// DispatchService is the cron-driven loop: fetch due notifications, claim
// and deliver each in order, tell authors how it went.
type DispatchService struct {
	queue    ports.QueueEngine
	articles ports.ArticleSource
	author   ports.AuthorNotifier
}

func NewDispatchService(queue ports.QueueEngine, articles ports.ArticleSource, author ports.AuthorNotifier) *DispatchService {
	return &DispatchService{
		queue:    queue,
		articles: articles,
		author:   author,
	}
}

// Run processes one batch. Individual delivery failures are recorded, not
// fatal to the invocation; the first hard failure stops the remaining batch.
func (d *DispatchService) Run(ctx context.Context) (*Report, error) {
	timer := prometheus.NewTimer(dispatchDuration)
	defer timer.ObserveDuration()

	report := &Report{Started: time.Now()}

	pending, err := d.queue.Pending(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pending notifications: %w", err)
	}
	if len(pending) == 0 {
		zlog.Logger.Info().Msg("nothing to send")
		report.Finished = time.Now()
		return report, nil
	}

	allRecipients := d.buildAllRecipients(ctx, pending)
	zlog.Logger.Info().
		Int("amount", len(pending)).
		Str("recipients", allRecipients).
		Msg("dispatching pending notifications")

	for _, pn := range pending {
		header := pn.Header

		// advisory re-check; the atomic claim inside SendPending is the
		// actual exclusion
		status, _, err := d.queue.Status(ctx, header.ArticleID, header.MethodID)
		if err == nil && status != model.StatusPending {
			report.Lines = append(report.Lines, ReportLine{
				ArticleID: header.ArticleID,
				Method:    header.MethodID,
				Outcome:   "skipped (status changed)",
			})
			continue
		}

		results, sendErr := d.queue.SendPending(ctx, header, allRecipients)
		outcome := summarizeResults(results)

		finalStatus := "sent"
		if sendErr != nil {
			finalStatus = "failed"
		} else if st, _, err := d.queue.Status(ctx, header.ArticleID, header.MethodID); err == nil {
			finalStatus = st.String()
		}
		notificationsTotal.WithLabelValues(header.MethodID, finalStatus).Inc()

		line := ReportLine{
			ArticleID: header.ArticleID,
			Method:    header.MethodID,
			Outcome:   outcome,
		}
		if sendErr != nil {
			line.Error = sendErr.Error()
		}
		report.Lines = append(report.Lines, line)

		d.notifyAuthor(ctx, header, outcome, sendErr)

		if sendErr != nil {
			// first hard failure stops the batch; the rest stays pending
			// for the next cron run
			zlog.Logger.Error().
				Err(sendErr).
				Stringer("header_id", header.ID).
				Msg("delivery failed, aborting remaining batch")
			break
		}
	}

	report.Finished = time.Now()
	return report, nil
}

// buildAllRecipients makes the consolidated "who is receiving what" text
// used in status and author messages. Purely informational; resolution
// failures are logged and ignored.
func (d *DispatchService) buildAllRecipients(ctx context.Context, pending []model.PendingNotification) string {
	var mu sync.Mutex
	byMethod := map[string]map[string]bool{}

	errGroup := &errgroup.Group{}
	for _, pn := range pending {
		errGroup.Go(func() error {
			targets, err := d.queue.Targets(ctx, pn.Header.ID)
			if err != nil {
				zlog.Logger.Error().
					Err(err).
					Stringer("header_id", pn.Header.ID).
					Msg("failed to resolve targets for recipient summary")
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if byMethod[pn.MethodName] == nil {
				byMethod[pn.MethodName] = map[string]bool{}
			}
			for _, t := range targets {
				byMethod[pn.MethodName][t.Name] = true
			}
			return nil
		})
	}
	errGroup.Wait()

	methods := make([]string, 0, len(byMethod))
	for name := range byMethod {
		methods = append(methods, name)
	}
	sort.Strings(methods)

	parts := make([]string, 0, len(methods))
	for _, name := range methods {
		recipients := make([]string, 0, len(byMethod[name]))
		for r := range byMethod[name] {
			recipients = append(recipients, r)
		}
		sort.Strings(recipients)
		parts = append(parts, name+": "+strings.Join(recipients, ", "))
	}
	return strings.Join(parts, "; ")
}

func (d *DispatchService) notifyAuthor(ctx context.Context, header *model.Header, outcome string, sendErr error) {
	article, err := d.articles.GetArticle(ctx, header.ArticleID)
	if err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("article_id", header.ArticleID).
			Msg("cannot notify author, article lookup failed")
		return
	}

	subject := fmt.Sprintf("Notification results for \"%s\"", article.Title)
	body := fmt.Sprintf("Delivery via %s: %s", header.MethodID, outcome)
	if sendErr != nil {
		body = fmt.Sprintf("Delivery via %s failed: %s", header.MethodID, sendErr.Error())
	}
	if err := d.author.NotifyAuthor(ctx, article, subject, body); err != nil {
		zlog.Logger.Error().
			Err(err).
			Int64("article_id", header.ArticleID).
			Msg("failed to notify author")
	}
}

func summarizeResults(results []model.RecipientResult) string {
	if len(results) == 0 {
		return "no recipients"
	}
	return aggregateMessage(results)
}
