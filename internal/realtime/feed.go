// Package realtime is the in-process change feed. Stores publish a Change
// after each committed write and subscribers receive the ones matching
// their table and user filter. Delivery is best-effort: there is no replay
// and a subscriber that falls behind loses events.
package realtime

import (
	"log/slog"
	"sync"
)

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Tables that publish changes.
const (
	TableMissions     = "mission_instances"
	TableTransactions = "allowance_transactions"
	TableProgress     = "user_streak_progress"
	TableRewards      = "reward_history"
	TableTemplates    = "mission_templates"
)

// Change describes one row-level write.
type Change struct {
	Table  string `json:"table"`
	Op     Op     `json:"op"`
	UserID int64  `json:"user_id"`
	ID     int64  `json:"id"`
	Row    any    `json:"row,omitempty"`
}

// Filter narrows a subscription. A zero UserID matches every user.
type Filter struct {
	UserID int64
}

func (f Filter) match(c Change) bool {
	return f.UserID == 0 || f.UserID == c.UserID
}

// Handlers receive matching changes. Nil handlers are skipped.
type Handlers struct {
	OnInsert func(Change)
	OnUpdate func(Change)
	OnDelete func(Change)
}

func (h Handlers) dispatch(c Change) {
	var fn func(Change)
	switch c.Op {
	case OpInsert:
		fn = h.OnInsert
	case OpUpdate:
		fn = h.OnUpdate
	case OpDelete:
		fn = h.OnDelete
	}
	if fn != nil {
		fn(c)
	}
}

const subscriptionBuffer = 64

type subscription struct {
	table    string
	filter   Filter
	handlers Handlers
	events   chan Change
}

// Feed fans out published changes to subscribers.
type Feed struct {
	mu     sync.RWMutex
	subs   map[int64]*subscription
	nextID int64
	logger *slog.Logger
}

func NewFeed(logger *slog.Logger) *Feed {
	return &Feed{
		subs:   make(map[int64]*subscription),
		logger: logger,
	}
}

// Subscribe registers handlers for changes on table matching filter. The
// returned function cancels the subscription and is safe to call twice.
func (f *Feed) Subscribe(table string, filter Filter, h Handlers) (unsubscribe func()) {
	sub := &subscription{
		table:    table,
		filter:   filter,
		handlers: h,
		events:   make(chan Change, subscriptionBuffer),
	}

	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		for c := range sub.events {
			sub.handlers.dispatch(c)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			close(sub.events)
			f.mu.Unlock()
		})
	}
}

// Publish delivers c to every matching subscriber without blocking.
func (f *Feed) Publish(c Change) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub.table != c.Table || !sub.filter.match(c) {
			continue
		}
		select {
		case sub.events <- c:
		default:
			f.logger.Debug("change dropped, subscriber behind", "table", c.Table, "id", c.ID)
		}
	}
}

// SubscriberCount returns the number of live subscriptions.
func (f *Feed) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}
