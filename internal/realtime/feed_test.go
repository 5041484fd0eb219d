package realtime

import (
	"log/slog"
	"testing"
	"time"
)

func receive(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for change")
		return Change{}
	}
}

func TestSubscribeFiltersByTableAndUser(t *testing.T) {
	feed := NewFeed(slog.Default())
	got := make(chan Change, 4)

	unsub := feed.Subscribe(TableMissions, Filter{UserID: 7}, Handlers{
		OnUpdate: func(c Change) { got <- c },
	})
	defer unsub()

	feed.Publish(Change{Table: TableTransactions, Op: OpUpdate, UserID: 7, ID: 1})
	feed.Publish(Change{Table: TableMissions, Op: OpUpdate, UserID: 8, ID: 2})
	feed.Publish(Change{Table: TableMissions, Op: OpUpdate, UserID: 7, ID: 3})

	c := receive(t, got)
	if c.ID != 3 {
		t.Errorf("id = %d, want 3", c.ID)
	}
	select {
	case extra := <-got:
		t.Errorf("unexpected change %+v", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSubscribeDispatchesByOp(t *testing.T) {
	feed := NewFeed(slog.Default())
	inserts := make(chan Change, 1)
	deletes := make(chan Change, 1)

	unsub := feed.Subscribe(TableMissions, Filter{}, Handlers{
		OnInsert: func(c Change) { inserts <- c },
		OnDelete: func(c Change) { deletes <- c },
	})
	defer unsub()

	feed.Publish(Change{Table: TableMissions, Op: OpInsert, UserID: 1, ID: 10})
	feed.Publish(Change{Table: TableMissions, Op: OpUpdate, UserID: 1, ID: 11})
	feed.Publish(Change{Table: TableMissions, Op: OpDelete, UserID: 2, ID: 12})

	if c := receive(t, inserts); c.ID != 10 {
		t.Errorf("insert id = %d, want 10", c.ID)
	}
	if c := receive(t, deletes); c.ID != 12 {
		t.Errorf("delete id = %d, want 12", c.ID)
	}
}

func TestUnsubscribe(t *testing.T) {
	feed := NewFeed(slog.Default())
	unsub := feed.Subscribe(TableMissions, Filter{}, Handlers{})
	if feed.SubscriberCount() != 1 {
		t.Fatalf("subscribers = %d, want 1", feed.SubscriberCount())
	}
	unsub()
	unsub()
	if feed.SubscriberCount() != 0 {
		t.Fatalf("subscribers = %d, want 0", feed.SubscriberCount())
	}
	// Publishing with no subscribers must not panic.
	feed.Publish(Change{Table: TableMissions, Op: OpInsert})
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	feed := NewFeed(slog.Default())
	release := make(chan struct{})
	unsub := feed.Subscribe(TableMissions, Filter{}, Handlers{
		OnInsert: func(Change) { <-release },
	})
	defer unsub()
	defer close(release)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*3; i++ {
			feed.Publish(Change{Table: TableMissions, Op: OpInsert, ID: int64(i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
