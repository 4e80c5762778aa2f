package app

import (
	"sync"
	"time"

	"quiz-analytics-service/internal/domain"
)

// FeedRepository abstracts where live analytics feeds are registered (in-memory, Redis, etc).
type FeedRepository interface {
	GetOrCreate(quizID string) *Feed
	Get(quizID string) (*Feed, bool)
	DeleteIfIdle(quizID string)
	// Touch records that the feed's viewer set changed.
	Touch(quizID string)
}

// Feed fans analytics snapshots of one quiz out to its live viewers.
type Feed struct {
	quizID      string
	now         func() time.Time
	mu          sync.RWMutex
	last        *domain.QuizAnalytics
	updatedAt   time.Time
	subscribers map[chan domain.QuizAnalytics]struct{}
}

// NewFeed is exported for infrastructure layers that register feeds.
func NewFeed(quizID string) *Feed {
	return NewFeedWithClock(quizID, time.Now)
}

// NewFeedWithClock allows deterministic timestamps in tests.
func NewFeedWithClock(quizID string, now func() time.Time) *Feed {
	return &Feed{
		quizID:      quizID,
		now:         now,
		subscribers: make(map[chan domain.QuizAnalytics]struct{}),
	}
}

// QuizID returns the quiz this feed belongs to.
func (f *Feed) QuizID() string {
	return f.quizID
}

// IsIdle reports whether the feed has no subscribers.
func (f *Feed) IsIdle() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers) == 0
}

// Viewers returns the number of live subscribers.
func (f *Feed) Viewers() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subscribers)
}

// UpdatedAt is the time of the last published snapshot (zero if none).
func (f *Feed) UpdatedAt() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.updatedAt
}

// subscribe registers a viewer and primes it with initial.
func (f *Feed) subscribe(initial domain.QuizAnalytics) (<-chan domain.QuizAnalytics, func()) {
	ch := make(chan domain.QuizAnalytics, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	if f.last == nil || initial.Revision > f.last.Revision {
		f.last = &initial
		f.updatedAt = f.now()
	}
	ch <- *f.last
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

// publish stores snapshot as the latest state and broadcasts it. Concurrent
// writers can finish out of order, so a snapshot whose revision is not newer
// than the current one is dropped.
func (f *Feed) publish(snapshot domain.QuizAnalytics) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.last != nil && snapshot.Revision <= f.last.Revision {
		return false
	}
	f.last = &snapshot
	f.updatedAt = f.now()
	for ch := range f.subscribers {
		select {
		case ch <- snapshot:
		default:
			// slow viewer: replace its oldest pending snapshot with the newest
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	return true
}
