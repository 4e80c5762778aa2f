package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"quiz-analytics-service/internal/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// QuizLoader fetches quiz content from the backing store.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// generationTTL bounds how long an invalidation counter outlives its last write.
const generationTTL = 24 * time.Hour

var errStaleFill = errors.New("quiz invalidated during load")

// QuizCache keeps the public quiz document in Redis and falls back to a loader on cache miss.
// Documents are stored as: SET quiz:{quizID}:doc <json> EX <ttl+jitter>
// Invalidate bumps quiz:{quizID}:gen; a fill only lands if the generation it
// read before loading is still current (WATCH/MULTI).
type QuizCache struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand
}

func NewQuizCache(client *redis.Client, loader QuizLoader, ttl time.Duration) *QuizCache {
	return &QuizCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuizCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.lookup(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if quiz, ok := c.lookup(ctx, quizID); ok {
			return quiz, nil
		}

		gen, genErr := generation(ctx, c.client, quizID)

		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		ttl := c.ttlWithJitter()
		if ttl <= 0 || genErr != nil {
			return quiz, nil
		}
		data, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := c.fill(ctx, quizID, gen, data, ttl); err != nil {
			log := logrus.WithError(err).WithField("quiz_id", quizID)
			if errors.Is(err, errStaleFill) || errors.Is(err, redis.TxFailedErr) {
				log.Debug("skipping cache fill for invalidated quiz")
			} else {
				// the store answered; a cache write failure only costs the next read
				log.Warn("redis cache fill failed")
			}
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz).Clone(), nil
}

// fill stores data unless quizID was invalidated after gen was read.
func (c *QuizCache) fill(ctx context.Context, quizID string, gen int64, data []byte, ttl time.Duration) error {
	return c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := generation(ctx, tx, quizID)
		if err != nil {
			return err
		}
		if current != gen {
			return errStaleFill
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, docKey(quizID), data, ttl)
			return nil
		})
		return err
	}, genKey(quizID))
}

// Invalidate removes the cached document and bumps the quiz generation so
// in-flight fills are discarded.
func (c *QuizCache) Invalidate(ctx context.Context, quizID string) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey(quizID))
		pipe.Expire(ctx, genKey(quizID), generationTTL)
		pipe.Del(ctx, docKey(quizID))
		return nil
	})
	if err != nil {
		logrus.WithError(err).WithField("quiz_id", quizID).Warn("redis cache invalidate failed")
	}
}

// getter is satisfied by both *redis.Client and *redis.Tx.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func generation(ctx context.Context, c getter, quizID string) (int64, error) {
	gen, err := c.Get(ctx, genKey(quizID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *QuizCache) lookup(ctx context.Context, quizID string) (domain.Quiz, bool) {
	data, err := c.client.Get(ctx, docKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logrus.WithError(err).WithField("quiz_id", quizID).Warn("redis cache read failed")
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(data, &quiz); err != nil {
		logrus.WithError(err).WithField("quiz_id", quizID).Warn("discarding undecodable cached quiz")
		return domain.Quiz{}, false
	}
	return quiz, true
}

func docKey(quizID string) string {
	return "quiz:" + quizID + ":doc"
}

func genKey(quizID string) string {
	return "quiz:" + quizID + ":gen"
}

func (c *QuizCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
