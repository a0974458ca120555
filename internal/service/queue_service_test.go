package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newsdesk/notifyd/internal/method"
	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/pkg/types"
)

const testHoldDelay = 30 * time.Minute

func testArticle(id int64, releaseAt time.Time) *model.Article {
	return &model.Article{
		ID:          id,
		Title:       "Release notes",
		NotifyText:  "A new article is out.",
		AuthorID:    7,
		AuthorEmail: "author@example.org",
		ReleaseAt:   releaseAt,
		YearID:      2026,
	}
}

func newTestService(store *fakeStore, articles *fakeArticles, cache *fakeCache, methods ...method.NotificationMethod) *QueueService {
	return NewQueueService(store, articles, cache, method.NewRegistry(methods...), testHoldDelay)
}

func TestQueueNotificationsCreatesHeaderPerMethod(t *testing.T) {
	release := time.Now().Add(time.Hour)
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, release))
	email := &fakeMethod{id: "email", dataID: 11}
	sms := &fakeMethod{id: "sms"}
	svc := newTestService(store, articles, newFakeCache(), email, sms)

	used := map[string][]int64{
		"email": {101, 102},
		"sms":   {103},
	}
	err := svc.QueueNotifications(context.Background(), 42, 1, false, used, model.SendImmediate, nil)
	require.NoError(t, err)

	headers := store.all()
	require.Len(t, headers, 2)
	seen := map[string]*model.Header{}
	for _, h := range headers {
		seen[h.MethodID] = h
		assert.Equal(t, model.StatusPending, h.Status)
		assert.Equal(t, int64(42), h.ArticleID)
		assert.Equal(t, 2026, h.YearID)
		assert.False(t, h.ID.IsZero())
		assert.True(t, h.SendAfter.Equal(release))
	}
	require.Contains(t, seen, "email")
	require.Contains(t, seen, "sms")
	assert.NotEqual(t, seen["email"].ID, seen["sms"].ID)
	assert.Equal(t, int64(11), seen["email"].DataID)
	assert.Equal(t, int64(0), seen["sms"].DataID)
	assert.Equal(t, []int64{101, 102}, store.mappings[seen["email"].ID])
	assert.Equal(t, []int64{103}, store.mappings[seen["sms"].ID])
}

func TestQueueNotificationsDraftStaysOutOfDispatch(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now().Add(-time.Hour)))
	email := &fakeMethod{id: "email"}
	svc := newTestService(store, articles, newFakeCache(), email)

	err := svc.QueueNotifications(context.Background(), 42, 1, true, map[string][]int64{"email": {101}}, model.SendImmediate, nil)
	require.NoError(t, err)

	headers := store.all()
	require.Len(t, headers, 1)
	assert.Equal(t, model.StatusDraft, headers[0].Status)

	pending, err := svc.Pending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestQueueNotificationsSendAfterPerMode(t *testing.T) {
	release := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	explicit := time.Date(2026, 3, 15, 9, 30, 0, 0, time.UTC)

	cases := []struct {
		name      string
		mode      model.SendMode
		sendAfter *time.Time
		want      time.Time
	}{
		{name: "immediate uses release time", mode: model.SendImmediate, want: release},
		{name: "delay adds hold delay", mode: model.SendDelay, want: release.Add(testHoldDelay)},
		{name: "timed uses caller value", mode: model.SendTimed, sendAfter: &explicit, want: explicit},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newFakeStore()
			articles := newFakeArticles(testArticle(42, release))
			svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"})

			err := svc.QueueNotifications(context.Background(), 42, 1, false, map[string][]int64{"email": {101}}, tc.mode, tc.sendAfter)
			require.NoError(t, err)

			headers := store.all()
			require.Len(t, headers, 1)
			assert.True(t, headers[0].SendAfter.Equal(tc.want))
		})
	}
}

func TestQueueNotificationsTimedRequiresSendAfter(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"})

	err := svc.QueueNotifications(context.Background(), 42, 1, false, map[string][]int64{"email": {101}}, model.SendTimed, nil)
	require.ErrorIs(t, err, ErrSendAfterRequired)
	assert.Empty(t, store.all())
}

func TestQueueNotificationsRejectsUnknownMethod(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	email := &fakeMethod{id: "email"}
	svc := newTestService(store, articles, newFakeCache(), email)

	used := map[string][]int64{"email": {101}, "carrier-pigeon": {102}}
	err := svc.QueueNotifications(context.Background(), 42, 1, false, used, model.SendImmediate, nil)
	require.ErrorIs(t, err, ErrUnknownMethod)
	assert.Empty(t, store.all())
	assert.Zero(t, email.storeCalls.Load(), "no payload may be stored when validation fails")
}

func TestQueueNotificationsInvalidMode(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"})

	err := svc.QueueNotifications(context.Background(), 42, 1, false, map[string][]int64{"email": {101}}, model.SendMode("yesterday"), nil)
	require.ErrorIs(t, err, ErrInvalidSendMode)
	assert.Empty(t, store.all())
}

func TestQueueNotificationsStoreDataFailureLeavesNoHeaders(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	good := &fakeMethod{id: "email"}
	bad := &fakeMethod{id: "sms", storeErr: assert.AnError}
	svc := newTestService(store, articles, newFakeCache(), good, bad)

	used := map[string][]int64{"email": {101}, "sms": {102}}
	err := svc.QueueNotifications(context.Background(), 42, 1, false, used, model.SendImmediate, nil)
	require.Error(t, err)
	assert.Empty(t, store.all())
}

func TestQueueNotificationsNoMethodsIsNoop(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, newFakeArticles(), newFakeCache())

	err := svc.QueueNotifications(context.Background(), 42, 1, false, nil, model.SendImmediate, nil)
	require.NoError(t, err)
	assert.Empty(t, store.all())
}

func seedHeader(store *fakeStore, articleID int64, methodID string, status model.Status, sendAfter time.Time) *model.Header {
	h := &model.Header{
		ID:        types.GenerateUUID(),
		ArticleID: articleID,
		MethodID:  methodID,
		YearID:    2026,
		Status:    status,
		SendMode:  model.SendImmediate,
		SendAfter: sendAfter,
		Updated:   time.Now(),
	}
	store.mu.Lock()
	store.headers[h.ID] = h
	store.mu.Unlock()
	return h
}

func TestSendPendingDeliversAndFinalizes(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now().Add(-time.Hour)))
	email := &fakeMethod{
		id:         "email",
		sendStatus: model.StatusSent,
		sendResults: []model.RecipientResult{
			{Name: "Alpha Desk", State: model.ResultSent},
			{Name: "Beta Desk", State: model.ResultError, Message: "mailbox full"},
		},
	}
	svc := newTestService(store, articles, newFakeCache(), email)
	header := seedHeader(store, 42, "email", model.StatusPending, time.Now().Add(-time.Minute))

	results, err := svc.SendPending(context.Background(), header, "email: Alpha Desk, Beta Desk")
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int32(1), email.sendCalls.Load())
	assert.Equal(t, "email: Alpha Desk, Beta Desk", email.lastRecipients.Load())

	final, err := store.Get(context.Background(), header.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, final.Status)
	assert.Equal(t, "Alpha Desk: sent; Beta Desk: error (mailbox full)", final.Message)
}

func TestSendPendingSkipsWhenStatusChanged(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	email := &fakeMethod{id: "email", sendStatus: model.StatusSent}
	svc := newTestService(store, articles, newFakeCache(), email)
	header := seedHeader(store, 42, "email", model.StatusCancelled, time.Now().Add(-time.Minute))

	results, err := svc.SendPending(context.Background(), header, "")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "all", results[0].Name)
	assert.Equal(t, model.ResultSkipped, results[0].State)
	assert.Equal(t, "status changed", results[0].Message)
	assert.Zero(t, email.sendCalls.Load())
	assert.Equal(t, model.StatusCancelled, store.status(header.ID))
}

func TestSendPendingConcurrentClaimDeliversOnce(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	email := &fakeMethod{
		id:          "email",
		sendStatus:  model.StatusSent,
		sendResults: []model.RecipientResult{{Name: "Alpha Desk", State: model.ResultSent}},
	}
	svc := newTestService(store, articles, newFakeCache(), email)
	header := seedHeader(store, 42, "email", model.StatusPending, time.Now().Add(-time.Minute))

	var wg sync.WaitGroup
	outcomes := make([][]model.RecipientResult, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results, err := svc.SendPending(context.Background(), header, "")
			assert.NoError(t, err)
			outcomes[i] = results
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), email.sendCalls.Load(), "exactly one dispatcher may deliver")

	skipped := 0
	for _, results := range outcomes {
		require.Len(t, results, 1)
		if results[0].State == model.ResultSkipped {
			skipped++
		}
	}
	assert.Equal(t, 1, skipped)
	assert.Equal(t, model.StatusSent, store.status(header.ID))
}

func TestSendPendingNeverLeavesSending(t *testing.T) {
	t.Run("hard send error", func(t *testing.T) {
		store := newFakeStore()
		articles := newFakeArticles(testArticle(42, time.Now()))
		email := &fakeMethod{id: "email", sendErr: assert.AnError}
		svc := newTestService(store, articles, newFakeCache(), email)
		header := seedHeader(store, 42, "email", model.StatusPending, time.Now().Add(-time.Minute))

		_, err := svc.SendPending(context.Background(), header, "")
		require.Error(t, err)
		assert.Equal(t, model.StatusFailed, store.status(header.ID))
	})

	t.Run("non-terminal status from method", func(t *testing.T) {
		store := newFakeStore()
		articles := newFakeArticles(testArticle(42, time.Now()))
		email := &fakeMethod{id: "email", sendStatus: model.StatusPending}
		svc := newTestService(store, articles, newFakeCache(), email)
		header := seedHeader(store, 42, "email", model.StatusPending, time.Now().Add(-time.Minute))

		_, err := svc.SendPending(context.Background(), header, "")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, store.status(header.ID))
	})

	t.Run("article lookup failure", func(t *testing.T) {
		store := newFakeStore()
		email := &fakeMethod{id: "email"}
		svc := newTestService(store, newFakeArticles(), newFakeCache(), email)
		header := seedHeader(store, 42, "email", model.StatusPending, time.Now().Add(-time.Minute))

		_, err := svc.SendPending(context.Background(), header, "")
		require.Error(t, err)
		assert.Equal(t, model.StatusFailed, store.status(header.ID))
		assert.Zero(t, email.sendCalls.Load())
	})
}

func TestCancelNotifications(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"}, &fakeMethod{id: "sms"})

	draft := seedHeader(store, 42, "email", model.StatusDraft, time.Now())
	pending := seedHeader(store, 42, "sms", model.StatusPending, time.Now())
	sent := seedHeader(store, 42, "push", model.StatusSent, time.Now())
	other := seedHeader(store, 43, "email", model.StatusPending, time.Now())

	require.NoError(t, svc.CancelNotifications(context.Background(), 42, ""))
	assert.Equal(t, model.StatusCancelled, store.status(draft.ID))
	assert.Equal(t, model.StatusCancelled, store.status(pending.ID))
	assert.Equal(t, model.StatusSent, store.status(sent.ID), "terminal headers stay untouched")
	assert.Equal(t, model.StatusPending, store.status(other.ID), "other articles stay untouched")
}

func TestCancelNotificationsMethodFilter(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"}, &fakeMethod{id: "sms"})

	email := seedHeader(store, 42, "email", model.StatusPending, time.Now())
	sms := seedHeader(store, 42, "sms", model.StatusPending, time.Now())

	require.NoError(t, svc.CancelNotifications(context.Background(), 42, "sms"))
	assert.Equal(t, model.StatusPending, store.status(email.ID))
	assert.Equal(t, model.StatusCancelled, store.status(sms.ID))
}

func TestPendingFiltersAndOrders(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	articles := newFakeArticles(
		testArticle(1, now.Add(-2*time.Hour)),
		testArticle(2, now.Add(-time.Hour)),
	)
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"}, &fakeMethod{id: "sms"})

	// Due headers across two articles plus ones that must not show up.
	seedHeader(store, 2, "email", model.StatusPending, now.Add(-time.Minute))
	seedHeader(store, 1, "sms", model.StatusPending, now.Add(-time.Minute))
	seedHeader(store, 1, "email", model.StatusPending, now.Add(-time.Minute))
	seedHeader(store, 1, "push", model.StatusPending, now.Add(time.Hour))
	seedHeader(store, 2, "sms", model.StatusDraft, now.Add(-time.Minute))
	seedHeader(store, 2, "push", model.StatusSent, now.Add(-time.Minute))

	pending, err := svc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 3)

	// Ordered by article release time first, then method name.
	assert.Equal(t, int64(1), pending[0].Header.ArticleID)
	assert.Equal(t, "email", pending[0].MethodName)
	assert.Equal(t, int64(1), pending[1].Header.ArticleID)
	assert.Equal(t, "sms", pending[1].MethodName)
	assert.Equal(t, int64(2), pending[2].Header.ArticleID)
	assert.Equal(t, "email", pending[2].MethodName)
}

func TestPendingSkipsUnresolvableArticles(t *testing.T) {
	now := time.Now()
	store := newFakeStore()
	articles := newFakeArticles(testArticle(1, now.Add(-time.Hour)))
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"})

	seedHeader(store, 1, "email", model.StatusPending, now.Add(-time.Minute))
	seedHeader(store, 999, "email", model.StatusPending, now.Add(-time.Minute))

	pending, err := svc.Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, int64(1), pending[0].Header.ArticleID)
}

func TestStatusCacheAside(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	cache := newFakeCache()
	svc := newTestService(store, articles, cache, &fakeMethod{id: "email"})
	header := seedHeader(store, 42, "email", model.StatusPending, time.Now())

	status, _, err := svc.Status(context.Background(), 42, "email")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	// Cold cache was filled; a store-side change is invisible until the
	// cache is invalidated.
	require.NoError(t, store.Finalize(context.Background(), header.ID, model.StatusSent, "done"))
	status, _, err = svc.Status(context.Background(), 42, "email")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	require.NoError(t, cache.Invalidate(context.Background(), 42, "email"))
	status, message, err := svc.Status(context.Background(), 42, "email")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, status)
	assert.Equal(t, "done", message)
}

func TestStatusUnknownHeader(t *testing.T) {
	svc := newTestService(newFakeStore(), newFakeArticles(), newFakeCache(), &fakeMethod{id: "email"})

	_, _, err := svc.Status(context.Background(), 42, "email")
	require.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestSendPendingInvalidatesStatusCache(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	cache := newFakeCache()
	email := &fakeMethod{
		id:          "email",
		sendStatus:  model.StatusSent,
		sendResults: []model.RecipientResult{{Name: "Alpha Desk", State: model.ResultSent}},
	}
	svc := newTestService(store, articles, cache, email)
	header := seedHeader(store, 42, "email", model.StatusPending, time.Now().Add(-time.Minute))

	status, _, err := svc.Status(context.Background(), 42, "email")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, status)

	_, err = svc.SendPending(context.Background(), header, "")
	require.NoError(t, err)

	status, _, err = svc.Status(context.Background(), 42, "email")
	require.NoError(t, err)
	assert.Equal(t, model.StatusSent, status)
}

func TestTargetsAndDataID(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	email := &fakeMethod{
		id:      "email",
		targets: []model.Target{{ID: 101, Name: "Alpha Desk"}},
	}
	svc := newTestService(store, articles, newFakeCache(), email)
	header := seedHeader(store, 42, "email", model.StatusPending, time.Now())
	store.mu.Lock()
	store.headers[header.ID].DataID = 77
	store.mu.Unlock()

	targets, err := svc.Targets(context.Background(), header.ID)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "Alpha Desk", targets[0].Name)

	dataID, err := svc.DataID(context.Background(), header.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(77), dataID)

	_, err = svc.Targets(context.Background(), types.GenerateUUID())
	require.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestDataResolvesThroughRegistry(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	email := &fakeMethod{
		id:   "email",
		data: map[string]string{"subject": "Release notes", "body": "A new article is out."},
	}
	svc := newTestService(store, articles, newFakeCache(), email)

	data, err := svc.Data(context.Background(), 42, "email")
	require.NoError(t, err)
	assert.Equal(t, "Release notes", data["subject"])

	_, err = svc.Data(context.Background(), 42, "pigeon")
	require.ErrorIs(t, err, ErrUnknownMethod)
}

func TestNotificationsAggregateView(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()))
	email := &fakeMethod{
		id:      "email",
		targets: []model.Target{{Name: "Alpha Desk"}, {Name: "Beta Desk"}},
	}
	svc := newTestService(store, articles, newFakeCache(), email)
	seedHeader(store, 42, "email", model.StatusSent, time.Now())
	seedHeader(store, 42, "sms", model.StatusPending, time.Now())

	views, err := svc.Notifications(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "email", views[0].MethodID)
	assert.Equal(t, []string{"Alpha Desk", "Beta Desk"}, views[0].Recipients)
	assert.Equal(t, "sms", views[1].MethodID)
	assert.Empty(t, views[1].Recipients, "unregistered methods list no recipients")
}

func TestNotifiedArticlesAndUsedMethods(t *testing.T) {
	store := newFakeStore()
	articles := newFakeArticles(testArticle(42, time.Now()), testArticle(43, time.Now()))
	svc := newTestService(store, articles, newFakeCache(), &fakeMethod{id: "email"})

	sent := seedHeader(store, 42, "email", model.StatusSent, time.Now())
	pending := seedHeader(store, 43, "email", model.StatusPending, time.Now())
	store.mu.Lock()
	store.mappings[sent.ID] = []int64{101}
	store.mappings[pending.ID] = []int64{101}
	store.mu.Unlock()

	got, err := svc.NotifiedArticles(context.Background(), 101, "email")
	require.NoError(t, err)
	assert.Equal(t, []int64{42}, got, "only delivered headers count")

	names, err := svc.UsedMethods(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, names)
}

func TestAggregateMessage(t *testing.T) {
	assert.Equal(t, "", aggregateMessage(nil))
	assert.Equal(t,
		"Alpha Desk: sent; Beta Desk: error (mailbox full)",
		aggregateMessage([]model.RecipientResult{
			{Name: "Alpha Desk", State: model.ResultSent},
			{Name: "Beta Desk", State: model.ResultError, Message: "mailbox full"},
		}))
}
