package counter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaderboardSample(t *testing.T) {
	board := Leaderboard(sampleHistory(), true)

	require.Len(t, board, 3)
	assert.Equal(t, LeaderboardEntry{Address: "0xA", TotalInteractions: 2, Increases: 2}, board[0])
	assert.Equal(t, LeaderboardEntry{Address: "0xB", TotalInteractions: 2, Increases: 1, Resets: 1}, board[1])
	assert.Equal(t, LeaderboardEntry{Address: "0xC", TotalInteractions: 1, Sets: 1}, board[2])
}

func TestLeaderboardStableTieBreak(t *testing.T) {
	chrono := []RawEvent{
		{Caller: "0xfirst", Reason: "Increase"},
		{Caller: "0xsecond", Reason: "Increase"},
		{Caller: "0xsecond", Reason: "Decrease"},
		{Caller: "0xfirst", Reason: "Set"},
		{Caller: "0xsecond", Reason: "Reset"},
		{Caller: "0xfirst", Reason: "Increase"},
	}

	board := Leaderboard(chrono, false)
	require.Len(t, board, 2)
	assert.Equal(t, "0xfirst", board[0].Address)
	assert.Equal(t, "0xsecond", board[1].Address)
	assert.Equal(t, 3, board[0].TotalInteractions)
	assert.Equal(t, 3, board[1].TotalInteractions)

	// Same snapshot delivered newest-first ranks identically.
	assert.Equal(t, board, Leaderboard(reversed(chrono), true))
}

func TestLeaderboardSortsDescending(t *testing.T) {
	board := Leaderboard([]RawEvent{
		{Caller: "0x1"},
		{Caller: "0x2"},
		{Caller: "0x2"},
		{Caller: "0x3"},
		{Caller: "0x3"},
		{Caller: "0x3"},
		{},
	}, false)

	require.Len(t, board, 3)
	assert.Equal(t, []string{"0x3", "0x2", "0x1"}, []string{board[0].Address, board[1].Address, board[2].Address})
	assert.Equal(t, 0, board[0].Increases+board[0].Decreases+board[0].Resets+board[0].Sets)
}

func TestLeaderboardEmpty(t *testing.T) {
	assert.Empty(t, Leaderboard(nil, true))
}

func TestTop(t *testing.T) {
	entries := []LeaderboardEntry{{Address: "a"}, {Address: "b"}, {Address: "c"}}
	assert.Len(t, Top(entries, 2), 2)
	assert.Len(t, Top(entries, 10), 3)
	assert.Len(t, Top(entries, -1), 3)
	assert.Empty(t, Top(entries, 0))
}
