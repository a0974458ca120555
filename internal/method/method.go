// Package method defines the delivery-channel contract and the typed
// registry the engine resolves channels through.
package method

import (
	"context"
	"sort"

	"github.com/newsdesk/notifyd/internal/model"
	"github.com/newsdesk/notifyd/pkg/types"
)

// NotificationMethod is one pluggable delivery channel. Implementations own
// only their private payload data; header mutation stays with the queue.
//
// Send must not fail for individual recipients — those go into the result
// list with state "error". A returned error means the whole delivery is off.
type NotificationMethod interface {
	ID() string

	// Targets re-resolves the recipients of a header at call time, with the
	// year-specific settings override applied. Recipient lists can change
	// between queueing and dispatch; resolving late is intentional.
	Targets(ctx context.Context, headerID types.UUID, yearID int) ([]model.Target, error)

	// StoreData persists method-specific payload and returns its id.
	// Zero (with nil error) means no extra data was needed.
	StoreData(ctx context.Context, articleID int64, article *model.Article, userID int64, isDraft bool, recipientMethodIDs []int64) (int64, error)

	// Data returns the previously stored payload for display.
	Data(ctx context.Context, articleID int64) (map[string]string, error)

	Send(ctx context.Context, article *model.Article, targets []model.Target, allRecipients string) (model.Status, []model.RecipientResult, error)
}

// Registry maps method names to implementations. Built once in main and
// injected; there is no process-global method table.
type Registry struct {
	methods map[string]NotificationMethod
}

func NewRegistry(methods ...NotificationMethod) *Registry {
	r := &Registry{methods: make(map[string]NotificationMethod, len(methods))}
	for _, m := range methods {
		r.methods[m.ID()] = m
	}
	return r
}

func (r *Registry) Get(id string) (NotificationMethod, bool) {
	m, ok := r.methods[id]
	return m, ok
}

func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.methods))
	for name := range r.methods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
