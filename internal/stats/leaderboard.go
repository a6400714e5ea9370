package stats

import (
	"sort"

	models "tajpado/internal/models"
)

// TopLeaderboard selects the n highest-WPM rows, descending. Rows are
// per-session, so the same user can hold several spots. Ties keep their
// incoming (storage) order; the sort is stable on purpose.
func TopLeaderboard(entries []models.LeaderboardEntry, n int) []models.LeaderboardEntry {
	if n <= 0 || len(entries) == 0 {
		return []models.LeaderboardEntry{}
	}

	ranked := make([]models.LeaderboardEntry, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].WPM > ranked[j].WPM
	})

	if n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}
