package realtime

import (
	"context"
	"sync"

	"github.com/goliatone/go-union"
)

// AllUsers subscribes a handler to every user's updates.
const AllUsers = "*"

var (
	_ union.ApprovalFeed      = (*Hub)(nil)
	_ union.ApprovalPublisher = (*Hub)(nil)
)

type subscriber struct {
	id      uint64
	handler func(union.ApprovalUpdate)
}

// Hub fans approval updates out to in-process subscribers keyed by user.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string][]subscriber
	nextID uint64
	logger union.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithHubLogger sets the hub logger.
func WithHubLogger(logger union.Logger) HubOption {
	return func(h *Hub) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		subs:   map[string][]subscriber{},
		logger: union.ResolveLogger("realtime", nil, nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Subscribe registers handler for updates of userID, or of every user
// when userID is AllUsers. The subscription ends when the returned
// function is called or ctx is done.
func (h *Hub) Subscribe(ctx context.Context, userID string, handler func(union.ApprovalUpdate)) (func(), error) {
	if handler == nil {
		return func() {}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[userID] = append(h.subs[userID], subscriber{id: id, handler: handler})
	h.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() { h.remove(userID, id) })
	}
	stop := context.AfterFunc(ctx, unsubscribe)
	return func() {
		stop()
		unsubscribe()
	}, nil
}

// Publish delivers update to the subscribers of its user and to the
// AllUsers subscribers. Handlers run on the caller's goroutine.
func (h *Hub) Publish(_ context.Context, update union.ApprovalUpdate) error {
	h.mu.RLock()
	targets := make([]subscriber, 0, len(h.subs[update.UserID])+len(h.subs[AllUsers]))
	targets = append(targets, h.subs[update.UserID]...)
	if update.UserID != AllUsers {
		targets = append(targets, h.subs[AllUsers]...)
	}
	h.mu.RUnlock()

	h.logger.Debug("publishing approval update",
		"user_id", update.UserID,
		"status", update.Status,
		"subscribers", len(targets),
	)
	for _, s := range targets {
		s.handler(update)
	}
	return nil
}

// Subscribers reports the number of live subscriptions for userID.
func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

func (h *Hub) remove(userID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.subs[userID]
	for i, s := range list {
		if s.id == id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(h.subs, userID)
		return
	}
	h.subs[userID] = list
}
