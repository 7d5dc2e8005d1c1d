package counter

import "sort"

// LeaderboardEntry tallies one caller's interactions with the counter.
type LeaderboardEntry struct {
	Address           string `json:"address"`
	TotalInteractions int    `json:"total_interactions"`
	Increases         int    `json:"increases"`
	Decreases         int    `json:"decreases"`
	Resets            int    `json:"resets"`
	Sets              int    `json:"sets"`
}

// Leaderboard groups a snapshot by caller. Events without a caller are
// skipped. Entries are ordered by TotalInteractions descending; ties keep the
// order in which callers first appear chronologically.
func Leaderboard(events []RawEvent, newestFirst bool) []LeaderboardEntry {
	return Rank(Normalize(events, newestFirst))
}

// Rank is Leaderboard over already normalized, chronological events.
func Rank(events []NormalizedEvent) []LeaderboardEntry {
	index := map[string]int{}
	entries := []LeaderboardEntry{}

	for _, ev := range events {
		if ev.Caller == "" {
			continue
		}
		i, ok := index[ev.Caller]
		if !ok {
			i = len(entries)
			index[ev.Caller] = i
			entries = append(entries, LeaderboardEntry{Address: ev.Caller})
		}
		e := &entries[i]
		e.TotalInteractions++
		switch ev.Reason {
		case Increase:
			e.Increases++
		case Decrease:
			e.Decreases++
		case Reset:
			e.Resets++
		case Set:
			e.Sets++
		}
	}

	sort.SliceStable(entries, func(a, b int) bool {
		return entries[a].TotalInteractions > entries[b].TotalInteractions
	})
	return entries
}

// Top returns at most n leading entries.
func Top(entries []LeaderboardEntry, n int) []LeaderboardEntry {
	if n < 0 || n >= len(entries) {
		return entries
	}
	return entries[:n]
}
