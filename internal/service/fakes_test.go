package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/pkg/types"
)

type fakeStore struct {
	mu        sync.Mutex
	headers   map[types.UUID]*model.Header
	mappings  map[types.UUID][]int64
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		headers:  map[types.UUID]*model.Header{},
		mappings: map[types.UUID][]int64{},
	}
}

func (s *fakeStore) CreateBatch(ctx context.Context, headers []*model.Header, mappings map[types.UUID][]int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, h := range headers {
		copied := *h
		s.headers[h.ID] = &copied
		s.mappings[h.ID] = append([]int64{}, mappings[h.ID]...)
	}
	return nil
}

func (s *fakeStore) Get(ctx context.Context, id types.UUID) (*model.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok {
		return nil, errors.New("not found")
	}
	copied := *h
	return &copied, nil
}

func (s *fakeStore) GetByArticle(ctx context.Context, articleID int64) ([]*model.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Header
	for _, h := range s.headers {
		if h.ArticleID == articleID {
			copied := *h
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodID < out[j].MethodID })
	return out, nil
}

func (s *fakeStore) GetByArticleMethod(ctx context.Context, articleID int64, methodID string) (*model.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, h := range s.headers {
		if h.ArticleID == articleID && h.MethodID == methodID {
			copied := *h
			return &copied, nil
		}
	}
	return nil, errors.New("not found")
}

func (s *fakeStore) Pending(ctx context.Context, now time.Time) ([]*model.Header, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Header
	for _, h := range s.headers {
		if h.Status == model.StatusPending && !h.SendAfter.After(now) {
			copied := *h
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SendAfter.Equal(out[j].SendAfter) {
			return out[i].SendAfter.Before(out[j].SendAfter)
		}
		return out[i].MethodID < out[j].MethodID
	})
	return out, nil
}

func (s *fakeStore) Claim(ctx context.Context, id types.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok || h.Status != model.StatusPending {
		return false, nil
	}
	h.Status = model.StatusSending
	h.Updated = time.Now()
	return true, nil
}

func (s *fakeStore) Finalize(ctx context.Context, id types.UUID, status model.Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.headers[id]
	if !ok {
		return errors.New("not found")
	}
	h.Status = status
	h.Message = message
	h.Updated = time.Now()
	return nil
}

func (s *fakeStore) Cancel(ctx context.Context, articleID int64, methodID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var affected int64
	for _, h := range s.headers {
		if h.ArticleID != articleID {
			continue
		}
		if methodID != "" && h.MethodID != methodID {
			continue
		}
		switch h.Status {
		case model.StatusDraft, model.StatusPending, model.StatusSending:
			h.Status = model.StatusCancelled
			h.Updated = time.Now()
			affected++
		}
	}
	return affected, nil
}

func (s *fakeStore) ArticlesByRecipient(ctx context.Context, recipientMethodID int64, methodID string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := map[int64]bool{}
	var out []int64
	for id, mapped := range s.mappings {
		h := s.headers[id]
		if h == nil || h.MethodID != methodID || h.Status != model.StatusSent {
			continue
		}
		for _, m := range mapped {
			if m == recipientMethodID && !seen[h.ArticleID] {
				seen[h.ArticleID] = true
				out = append(out, h.ArticleID)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *fakeStore) status(id types.UUID) model.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.headers[id].Status
}

func (s *fakeStore) all() []*model.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*model.Header
	for _, h := range s.headers {
		copied := *h
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MethodID < out[j].MethodID })
	return out
}

type fakeArticles struct {
	articles map[int64]*model.Article
}

func newFakeArticles(articles ...*model.Article) *fakeArticles {
	f := &fakeArticles{articles: map[int64]*model.Article{}}
	for _, a := range articles {
		f.articles[a.ID] = a
	}
	return f
}

func (f *fakeArticles) GetArticle(ctx context.Context, id int64) (*model.Article, error) {
	a, ok := f.articles[id]
	if !ok {
		return nil, fmt.Errorf("article %d not found", id)
	}
	return a, nil
}

type cacheEntry struct {
	status  model.Status
	message string
}

type fakeCache struct {
	mu            sync.Mutex
	entries       map[string]cacheEntry
	invalidations int
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: map[string]cacheEntry{}}
}

func cacheKey(articleID int64, methodID string) string {
	return fmt.Sprintf("%d:%s", articleID, methodID)
}

func (c *fakeCache) SaveStatus(ctx context.Context, articleID int64, methodID string, status model.Status, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(articleID, methodID)] = cacheEntry{status: status, message: message}
	return nil
}

func (c *fakeCache) GetStatus(ctx context.Context, articleID int64, methodID string) (model.Status, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[cacheKey(articleID, methodID)]
	if !ok {
		return "", "", errors.New("cache miss")
	}
	return e.status, e.message, nil
}

func (c *fakeCache) Invalidate(ctx context.Context, articleID int64, methodID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey(articleID, methodID))
	c.invalidations++
	return nil
}

type fakeMethod struct {
	id          string
	dataID      int64
	data        map[string]string
	storeErr    error
	targets     []model.Target
	targetsErr  error
	sendStatus  model.Status
	sendResults []model.RecipientResult
	sendErr     error

	sendCalls      atomic.Int32
	storeCalls     atomic.Int32
	lastRecipients atomic.Value
}

func (f *fakeMethod) ID() string { return f.id }

func (f *fakeMethod) Targets(ctx context.Context, headerID types.UUID, yearID int) ([]model.Target, error) {
	return f.targets, f.targetsErr
}

func (f *fakeMethod) StoreData(ctx context.Context, articleID int64, article *model.Article, userID int64, isDraft bool, recipientMethodIDs []int64) (int64, error) {
	f.storeCalls.Add(1)
	return f.dataID, f.storeErr
}

func (f *fakeMethod) Data(ctx context.Context, articleID int64) (map[string]string, error) {
	if f.data == nil {
		return map[string]string{}, nil
	}
	return f.data, nil
}

func (f *fakeMethod) Send(ctx context.Context, article *model.Article, targets []model.Target, allRecipients string) (model.Status, []model.RecipientResult, error) {
	f.sendCalls.Add(1)
	f.lastRecipients.Store(allRecipients)
	return f.sendStatus, f.sendResults, f.sendErr
}

type authorNote struct {
	articleID int64
	subject   string
	body      string
}

type fakeAuthor struct {
	mu    sync.Mutex
	notes []authorNote
}

func (f *fakeAuthor) NotifyAuthor(ctx context.Context, article *model.Article, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notes = append(f.notes, authorNote{articleID: article.ID, subject: subject, body: body})
	return nil
}

func (f *fakeAuthor) all() []authorNote {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]authorNote{}, f.notes...)
}
