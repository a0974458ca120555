// Package email is the email delivery method: payload rows in Postgres,
// actual delivery as jobs published to the mail exchange.
package email

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"

	"github.com/wb-go/wbf/zlog"
	"golang.org/x/sync/errgroup"

	"github.com/newsdesk/notifyd/internal/dto"
	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/internal/ports"
	"github.com/newsdesk/notifyd/pkg/dlq"
	"github.com/newsdesk/notifyd/pkg/types"
)

const MethodID = "email"

// yearPlaceholder in any settings value is replaced with the numeric year id
// at target resolution time.
const yearPlaceholder = "{V_[yearid]}"

type Method struct {
	store     Store
	transport ports.EmailTransport
}

func NewMethod(store Store, transport ports.EmailTransport) *Method {
	return &Method{
		store:     store,
		transport: transport,
	}
}

func (m *Method) ID() string {
	return MethodID
}

func (m *Method) Targets(ctx context.Context, headerID types.UUID, yearID int) ([]model.Target, error) {
	rows, err := m.store.TargetsForHeader(ctx, headerID)
	if err != nil {
		return nil, err
	}

	year := strconv.Itoa(yearID)
	targets := make([]model.Target, 0, len(rows))
	for _, row := range rows {
		settings := make(map[string]string, len(row.Settings))
		for k, v := range row.Settings {
			settings[k] = v
		}
		for k, v := range row.YearSettings[year] {
			settings[k] = v
		}
		for k, v := range settings {
			settings[k] = strings.ReplaceAll(v, yearPlaceholder, year)
		}
		targets = append(targets, model.Target{
			ID:        row.ID,
			Name:      row.Name,
			Shortname: row.Shortname,
			Settings:  settings,
		})
	}
	return targets, nil
}

func (m *Method) StoreData(ctx context.Context, articleID int64, article *model.Article, userID int64, isDraft bool, recipientMethodIDs []int64) (int64, error) {
	if article.NotifyText == "" {
		// nothing beyond the article itself to deliver
		return 0, nil
	}
	return m.store.StorePayload(ctx, articleID, userID, isDraft, article.Title, article.NotifyText)
}

func (m *Method) Data(ctx context.Context, articleID int64) (map[string]string, error) {
	subject, body, err := m.store.Payload(ctx, articleID)
	if errors.Is(err, ErrPayloadNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return map[string]string{"subject": subject, "body": body}, nil
}

type failedJob struct {
	job       *dto.EmailJob
	name      string
	resultIdx int
}

func (m *Method) Send(ctx context.Context, article *model.Article, targets []model.Target, allRecipients string) (model.Status, []model.RecipientResult, error) {
	subject, body, err := m.store.Payload(ctx, article.ID)
	if errors.Is(err, ErrPayloadNotFound) {
		subject, body = article.Title, article.Summary
	} else if err != nil {
		return model.StatusFailed, nil, err
	}
	if allRecipients != "" {
		body = body + "\n\nSent to: " + allRecipients
	}

	results := make([]model.RecipientResult, 0, len(targets))
	failed := dlq.New[failedJob]()
	sent := 0

	for _, target := range targets {
		addresses := splitAddresses(target.Settings["addresses"])
		if len(addresses) == 0 {
			results = append(results, model.RecipientResult{
				Name:    target.Name,
				State:   model.ResultSkipped,
				Message: "no addresses configured",
			})
			continue
		}

		var publishErr error
		for _, address := range addresses {
			job := &dto.EmailJob{
				To:        address,
				Subject:   subject,
				Body:      body,
				ArticleID: article.ID,
			}
			if err := m.transport.PublishEmail(ctx, job); err != nil {
				publishErr = err
				failed.Add(failedJob{job: job, name: target.Name, resultIdx: len(results)}, err)
			}
		}

		if publishErr != nil {
			results = append(results, model.RecipientResult{
				Name:    target.Name,
				State:   model.ResultError,
				Message: publishErr.Error(),
			})
			continue
		}
		sent++
		results = append(results, model.RecipientResult{
			Name:  target.Name,
			State: model.ResultSent,
		})
	}

	sent += m.resendFailed(ctx, failed, results)

	if sent == 0 {
		return model.StatusFailed, results, nil
	}
	return model.StatusSent, results, nil
}

// resendFailed gives every dead-lettered job one more try and flips its
// recipient result back to sent when the retry lands. Returns how many
// recipient results recovered.
func (m *Method) resendFailed(ctx context.Context, failed *dlq.DLQ[failedJob], results []model.RecipientResult) int {
	if failed.Len() == 0 {
		return 0
	}

	items := slices.Collect(failed.Items())
	resent := make([]bool, len(items))

	errGroup := &errgroup.Group{}
	for i, item := range items {
		errGroup.Go(func() error {
			zlog.Logger.Error().
				Err(item.Error()).
				Str("recipient", item.Value().name).
				Msg("failed to publish email job, trying to resend...")

			if err := m.transport.PublishEmail(ctx, item.Value().job); err != nil {
				return err
			}
			resent[i] = true
			zlog.Logger.Info().
				Str("recipient", item.Value().name).
				Msg("successfully published email job on second try")
			return nil
		})
	}
	if err := errGroup.Wait(); err != nil {
		zlog.Logger.Error().
			Err(err).
			Int("amount", failed.Len()).
			Msg("some email jobs stayed failed after resend")
	}

	// a recipient recovers only when every one of its failed addresses went
	// through on the second try; one address still down keeps the result at
	// error so the failure stays visible
	failedPerResult := map[int]int{}
	resentPerResult := map[int]int{}
	for i, item := range items {
		idx := item.Value().resultIdx
		failedPerResult[idx]++
		if resent[i] {
			resentPerResult[idx]++
		}
	}
	recovered := 0
	for idx, total := range failedPerResult {
		if resentPerResult[idx] == total {
			results[idx] = model.RecipientResult{
				Name:  results[idx].Name,
				State: model.ResultSent,
			}
			recovered++
		}
	}
	return recovered
}

func splitAddresses(raw string) []string {
	parts := strings.Split(raw, ",")
	addresses := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			addresses = append(addresses, trimmed)
		}
	}
	return addresses
}
