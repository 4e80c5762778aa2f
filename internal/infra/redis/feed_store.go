package redis

import (
	"context"
	"strconv"
	"sync"
	"time"

	"quiz-analytics-service/internal/app"

	"github.com/redis/go-redis/v9"
)

// FeedStore is a Redis-aware implementation of app.FeedRepository.
// Notes:
//   - Feeds live in a local map so the in-process broadcast logic is reused.
//   - Redis holds a liveness marker per quiz (quiz:feed:{quizID}) whose value is
//     the instance's viewer count, so other tooling can see which quizzes are watched.
//   - Markers are written once a viewer has joined and kept alive by Refresh.
//   - Cross-instance fan-out would need Redis pub/sub on top of this.
type FeedStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.RWMutex
	feeds  map[string]*app.Feed
}

func NewFeedStore(client *redis.Client, ttl time.Duration) *FeedStore {
	return &FeedStore{
		client: client,
		ttl:    ttl,
		feeds:  make(map[string]*app.Feed),
	}
}

func (s *FeedStore) GetOrCreate(quizID string) *app.Feed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if feed, ok := s.feeds[quizID]; ok {
		return feed
	}
	feed := app.NewFeed(quizID)
	s.feeds[quizID] = feed
	return feed
}

func (s *FeedStore) Get(quizID string) (*app.Feed, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	feed, ok := s.feeds[quizID]
	return feed, ok
}

func (s *FeedStore) DeleteIfIdle(quizID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	feed, ok := s.feeds[quizID]
	if !ok {
		return
	}
	if feed.IsIdle() {
		delete(s.feeds, quizID)
		_ = s.client.Del(context.Background(), s.key(quizID)).Err()
		return
	}
	s.touch(feed)
}

func (s *FeedStore) Touch(quizID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if feed, ok := s.feeds[quizID]; ok {
		s.touch(feed)
	}
}

// Refresh re-marks every registered feed each interval until ctx is done, so
// a long-watched quiz keeps its marker past the TTL.
func (s *FeedStore) Refresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.RLock()
			for _, feed := range s.feeds {
				s.touch(feed)
			}
			s.mu.RUnlock()
		}
	}
}

// touch refreshes the best-effort liveness marker.
func (s *FeedStore) touch(feed *app.Feed) {
	_ = s.client.Set(context.Background(), s.key(feed.QuizID()), strconv.Itoa(feed.Viewers()), s.ttl).Err()
}

func (s *FeedStore) key(quizID string) string {
	return "quiz:feed:" + quizID
}
