package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/samber/lo"
	constants "tajpado/internal/constants"
	models "tajpado/internal/models"
	stats "tajpado/internal/stats"
)

// updateAchievements applies one finished session to the owner's ledger
// inside the save transaction: XP grows with throughput, the streak is
// recomputed with the same backward-walk day logic the profile uses, and
// badges only ever accumulate.
func (s *Store) updateAchievements(ctx context.Context, tx *sql.Tx, fs models.FinishedSession) error {
	xp := 0
	streak := 0
	badges := []string{}
	var badgesRaw string
	var lastSession sql.NullString

	row := tx.QueryRowContext(ctx,
		`SELECT xp, streak, badges, last_session FROM achievements WHERE user_id = ?`, fs.UserID)
	err := row.Scan(&xp, &streak, &badgesRaw, &lastSession)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// First session for this user.
	case err != nil:
		return err
	default:
		if err := json.Unmarshal([]byte(badgesRaw), &badges); err != nil {
			return err
		}
	}

	xp += 10 + int(fs.WPM+0.5)

	endTimes, err := s.sessionEndTimes(ctx, tx, fs.UserID)
	if err != nil {
		return err
	}
	streak = stats.PracticeStreak(endTimes)

	badges = appendBadges(badges, fs, streak)

	badgesJSON, err := json.Marshal(badges)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO achievements (user_id, xp, streak, badges, last_session)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET xp = excluded.xp, streak = excluded.streak,
		 badges = excluded.badges, last_session = excluded.last_session`,
		fs.UserID, xp, streak, string(badgesJSON), fs.EndedAt.Format(time.RFC3339Nano))
	return err
}

func (s *Store) sessionEndTimes(ctx context.Context, tx *sql.Tx, userID string) ([]time.Time, error) {
	rows, err := tx.QueryContext(ctx, `SELECT ended_at FROM sessions WHERE user_id = ?`, userID)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var times []time.Time
	for rows.Next() {
		var endedAt string
		if err := rows.Scan(&endedAt); err != nil {
			return nil, err
		}
		parsed, err := time.Parse(time.RFC3339Nano, endedAt)
		if err != nil {
			return nil, err
		}
		times = append(times, parsed)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return times, nil
}

func appendBadges(badges []string, fs models.FinishedSession, streak int) []string {
	earned := []string{constants.BadgeFirstSession}
	if fs.WPM >= 50 {
		earned = append(earned, constants.BadgeWpm50)
	}
	if fs.WPM >= 100 {
		earned = append(earned, constants.BadgeWpm100)
	}
	if streak >= 3 {
		earned = append(earned, constants.BadgeStreak3)
	}
	if streak >= 7 {
		earned = append(earned, constants.BadgeStreak7)
	}
	if fs.ErrorCount == 0 && len(fs.Keystrokes) > 0 {
		earned = append(earned, constants.BadgePerfectAccuracy)
	}
	return lo.Uniq(append(badges, earned...))
}
