package stats

import (
	"sort"
	"time"

	"github.com/samber/lo"
	models "tajpado/internal/models"
)

// ProfileStats summarizes a user's session history.
type ProfileStats struct {
	Sessions    int     `json:"sessions"`
	BestWPM     float64 `json:"bestWpm"`
	AvgAccuracy float64 `json:"avgAccuracy"`
	Streak      int     `json:"streak"`
}

// Profile derives best WPM, average accuracy, and practice streak from a
// user's finished sessions. With no sessions everything is zero and the
// caller renders the empty state.
func Profile(sessions []models.FinishedSession) ProfileStats {
	if len(sessions) == 0 {
		return ProfileStats{}
	}

	best := lo.MaxBy(sessions, func(a, b models.FinishedSession) bool {
		return a.WPM > b.WPM
	}).WPM

	sum := lo.SumBy(sessions, func(s models.FinishedSession) float64 {
		return s.Accuracy
	})

	days := lo.Map(sessions, func(s models.FinishedSession, _ int) time.Time {
		return s.EndedAt
	})

	return ProfileStats{
		Sessions:    len(sessions),
		BestWPM:     best,
		AvgAccuracy: sum / float64(len(sessions)),
		Streak:      PracticeStreak(days),
	}
}

// PracticeStreak counts consecutive calendar days with at least one session,
// walking backward from the most recent practice day. The walk is anchored at
// the last session's day, not today: a user who stopped practicing a week ago
// still reports the streak they had then. Any session history yields a streak
// of at least 1.
func PracticeStreak(endTimes []time.Time) int {
	if len(endTimes) == 0 {
		return 0
	}

	days := lo.Uniq(lo.Map(endTimes, func(t time.Time, _ int) time.Time {
		local := t.Local()
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.Local)
	}))

	// Most recent day first.
	sort.Slice(days, func(i, j int) bool {
		return days[i].After(days[j])
	})

	streak := 1
	for i := 1; i < len(days); i++ {
		if days[i-1].AddDate(0, 0, -1).Equal(days[i]) {
			streak++
		} else {
			break
		}
	}
	return streak
}
