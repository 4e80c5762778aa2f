package app

import (
	"testing"
	"time"

	"quiz-analytics-service/internal/domain"
)

func snapshot(revision int64, questions ...int) domain.QuizAnalytics {
	details := make([]domain.QuestionAnalytics, 0, len(questions))
	for _, answers := range questions {
		details = append(details, domain.QuestionAnalytics{AnswerCount: answers})
	}
	return domain.QuizAnalytics{QuizID: "quiz", Revision: revision, QuizDetails: details}
}

func TestFeedDropsStaleSnapshots(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	feed := NewFeedWithClock("quiz", func() time.Time { return now })

	ch, cancel := feed.subscribe(snapshot(1, 0))
	defer cancel()
	<-ch

	if !feed.publish(snapshot(3, 3)) {
		t.Fatalf("expected newer snapshot to be published")
	}
	if feed.publish(snapshot(2, 2)) {
		t.Fatalf("expected older snapshot to be dropped")
	}
	if feed.publish(snapshot(3, 3)) {
		t.Fatalf("expected repeated revision to be dropped")
	}
	if got := <-ch; got.QuizDetails[0].AnswerCount != 3 {
		t.Fatalf("expected 3 answers, got %d", got.QuizDetails[0].AnswerCount)
	}
	if !feed.UpdatedAt().Equal(now) {
		t.Fatalf("expected updatedAt from clock")
	}
}

func TestFeedEditOrderingSurvivesLateWriters(t *testing.T) {
	feed := NewFeed("quiz")
	ch, cancel := feed.subscribe(snapshot(10, 5, 5))
	defer cancel()
	<-ch

	// an edit removes the second question and lands before a response batch
	// that committed earlier finishes publishing
	if !feed.publish(snapshot(12, 5)) {
		t.Fatalf("expected edited snapshot to be published")
	}
	if feed.publish(snapshot(11, 5, 6)) {
		t.Fatalf("expected late pre-edit snapshot to be dropped")
	}
	if !feed.publish(snapshot(13, 6)) {
		t.Fatalf("expected post-edit snapshot to be published")
	}

	var seen []domain.QuizAnalytics
	for len(ch) > 0 {
		seen = append(seen, <-ch)
	}
	if len(seen) != 2 {
		t.Fatalf("expected 2 snapshots, got %d", len(seen))
	}
	for _, s := range seen {
		if len(s.QuizDetails) != 1 {
			t.Fatalf("deleted question resurfaced in revision %d", s.Revision)
		}
	}
	if last := seen[1]; last.Revision != 13 || last.QuizDetails[0].AnswerCount != 6 {
		t.Fatalf("unexpected final snapshot %+v", last)
	}
}

func TestFeedSlowSubscriberKeepsNewest(t *testing.T) {
	feed := NewFeed("quiz")
	ch, cancel := feed.subscribe(snapshot(0, 0))
	defer cancel()

	for i := 1; i <= 20; i++ {
		feed.publish(snapshot(int64(i), i))
	}

	var last domain.QuizAnalytics
	for len(ch) > 0 {
		last = <-ch
	}
	if last.QuizDetails[0].AnswerCount != 20 {
		t.Fatalf("expected newest snapshot to survive, got %d", last.QuizDetails[0].AnswerCount)
	}
}

func TestFeedLateSubscriberGetsLatest(t *testing.T) {
	feed := NewFeed("quiz")
	first, cancelFirst := feed.subscribe(snapshot(0, 0))
	<-first
	feed.publish(snapshot(5, 5))

	// a subscriber that loaded an older document still starts from the freshest state
	second, cancelSecond := feed.subscribe(snapshot(1, 1))
	defer cancelSecond()
	if got := <-second; got.QuizDetails[0].AnswerCount != 5 {
		t.Fatalf("expected latest snapshot, got %d", got.QuizDetails[0].AnswerCount)
	}
	if feed.Viewers() != 2 {
		t.Fatalf("expected 2 viewers, got %d", feed.Viewers())
	}

	cancelFirst()
	cancelFirst()
	if feed.Viewers() != 1 || feed.IsIdle() {
		t.Fatalf("expected one remaining viewer")
	}
}
