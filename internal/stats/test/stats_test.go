package main

import (
	"testing"
	"time"

	models "tajpado/internal/models"
	stats "tajpado/internal/stats"
)

func day(offset int) time.Time {
	base := time.Date(2025, 6, 10, 15, 30, 0, 0, time.Local)
	return base.AddDate(0, 0, offset)
}

func sessionOn(t time.Time, wpm, accuracy float64) models.FinishedSession {
	return models.FinishedSession{WPM: wpm, Accuracy: accuracy, EndedAt: t}
}

func TestProfileEmpty(t *testing.T) {
	p := stats.Profile(nil)
	if p.Sessions != 0 || p.BestWPM != 0 || p.AvgAccuracy != 0 || p.Streak != 0 {
		t.Errorf("Empty history must give the zero profile, got %+v", p)
	}
}

func TestProfileBestAndAverage(t *testing.T) {
	sessions := []models.FinishedSession{
		sessionOn(day(0), 40, 0.9),
		sessionOn(day(0), 62.5, 1.0),
		sessionOn(day(-1), 55, 0.8),
	}
	p := stats.Profile(sessions)
	if p.BestWPM != 62.5 {
		t.Errorf("Expected best wpm 62.5, got %v", p.BestWPM)
	}
	want := (0.9 + 1.0 + 0.8) / 3
	if p.AvgAccuracy < want-1e-9 || p.AvgAccuracy > want+1e-9 {
		t.Errorf("Expected avg accuracy %v, got %v", want, p.AvgAccuracy)
	}
	if p.Sessions != 3 {
		t.Errorf("Expected 3 sessions, got %d", p.Sessions)
	}
}

func TestPracticeStreakGapBreaks(t *testing.T) {
	// Sessions on days 0, -1, -2, -4: the gap at day -3 ends the walk.
	times := []time.Time{day(0), day(-1), day(-2), day(-4)}
	if got := stats.PracticeStreak(times); got != 3 {
		t.Errorf("Expected streak 3, got %d", got)
	}
}

func TestPracticeStreakSingleDay(t *testing.T) {
	if got := stats.PracticeStreak([]time.Time{day(0)}); got != 1 {
		t.Errorf("Any history must give streak >= 1, got %d", got)
	}
	if got := stats.PracticeStreak(nil); got != 0 {
		t.Errorf("No history must give streak 0, got %d", got)
	}
}

func TestPracticeStreakDedupesSameDay(t *testing.T) {
	times := []time.Time{
		day(0), day(0).Add(2 * time.Hour), day(0).Add(5 * time.Hour),
		day(-1),
	}
	if got := stats.PracticeStreak(times); got != 2 {
		t.Errorf("Multiple sessions per day count once, expected 2, got %d", got)
	}
}

func TestPracticeStreakAnchorsOnLastSessionDay(t *testing.T) {
	// The user stopped a week ago; the streak still reports as of then.
	times := []time.Time{day(-7), day(-8), day(-9)}
	if got := stats.PracticeStreak(times); got != 3 {
		t.Errorf("Expected streak 3 anchored at the last practice day, got %d", got)
	}
}

func TestPracticeStreakUnorderedInput(t *testing.T) {
	times := []time.Time{day(-2), day(0), day(-1)}
	if got := stats.PracticeStreak(times); got != 3 {
		t.Errorf("Streak must not depend on input order, got %d", got)
	}
}

func TestTopLeaderboardTruncatesAndSorts(t *testing.T) {
	entries := make([]models.LeaderboardEntry, 0, 25)
	for i := 0; i < 25; i++ {
		entries = append(entries, models.LeaderboardEntry{
			UserID: "u",
			WPM:    float64(100 - i),
		})
	}
	top := stats.TopLeaderboard(entries, 20)
	if len(top) != 20 {
		t.Fatalf("Expected 20 entries, got %d", len(top))
	}
	for i, e := range top {
		if e.WPM != float64(100-i) {
			t.Errorf("Entry %d: expected wpm %d, got %v", i, 100-i, e.WPM)
		}
	}
}

func TestTopLeaderboardEmptyMode(t *testing.T) {
	top := stats.TopLeaderboard(nil, 20)
	if top == nil || len(top) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", top)
	}
}

func TestTopLeaderboardKeepsDuplicateUsersAndTieOrder(t *testing.T) {
	entries := []models.LeaderboardEntry{
		{UserID: "a", WPM: 50, Accuracy: 0.9},
		{UserID: "b", WPM: 50, Accuracy: 0.5},
		{UserID: "a", WPM: 70},
	}
	top := stats.TopLeaderboard(entries, 20)
	if len(top) != 3 {
		t.Fatalf("One row per session: expected 3 entries, got %d", len(top))
	}
	if top[0].WPM != 70 {
		t.Errorf("Expected 70 first, got %v", top[0].WPM)
	}
	if top[1].Accuracy != 0.9 || top[2].Accuracy != 0.5 {
		t.Error("Ties must keep their incoming order")
	}
}

func TestTopLeaderboardDoesNotMutateInput(t *testing.T) {
	entries := []models.LeaderboardEntry{
		{UserID: "a", WPM: 10},
		{UserID: "b", WPM: 90},
	}
	stats.TopLeaderboard(entries, 1)
	if entries[0].WPM != 10 || entries[1].WPM != 90 {
		t.Error("Ranking must not reorder the caller's slice")
	}
}
