package queries

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/lewisedginton/ctfd_announcer/internal/markdown"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

const leaderboardSize = 10

// Leaderboard renders the top ten teams.
func (h *Handler) Leaderboard(ctx context.Context) string {
	log := logger.GetLoggerFromContext(ctx, h.logger)

	teams, err := h.client.FetchTopTeams(ctx, leaderboardSize)
	if err != nil {
		log.Error("Fetching scoreboard failed", logger.ErrorField(err))
		return MsgScoreboardError
	}
	if len(teams) == 0 {
		return MsgNoTeams
	}

	var b strings.Builder
	b.WriteString("**Top 10 Teams:**")
	for i, team := range teams {
		fmt.Fprintf(&b, "\n%d. %s (%s)", i+1, markdown.TeamName(team.Name), FormatScore(team.Score))
	}
	return b.String()
}

// FormatScore renders a score without a trailing ".0".
func FormatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}
