// Package queries renders the text answers for the chat commands.
package queries

import (
	"context"
	"time"

	"github.com/lewisedginton/ctfd_announcer/internal/ctfd"
	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// Messages returned when a query cannot be answered.
const (
	MsgNoTeams         = "❌ No teams found on the scoreboard."
	MsgScoreboardError = "❌ Error fetching scoreboard data"
	MsgStatisticsError = "❌ Error fetching CTF statistics"
)

const defaultSourceURL = "https://github.com/lewisedginton/ctfd_announcer"

// ScoreboardClient is the read-only part of the CTFd client used by queries.
type ScoreboardClient interface {
	FetchTopTeams(ctx context.Context, limit int) ([]ctfd.TeamStanding, error)
	FetchChallenges(ctx context.Context) ([]ctfd.Challenge, error)
	FetchConfig(ctx context.Context) ctfd.PlatformConfig
	FetchAllTeams(ctx context.Context) []ctfd.Account
	FetchAllUsers(ctx context.Context) []ctfd.Account
	FetchSubmissionsByType(ctx context.Context, submissionType string) []ctfd.Submission
	FetchComprehensiveStatistics(ctx context.Context) ctfd.Statistics
}

// Handler answers /top10, /stats and /about.
type Handler struct {
	client    ScoreboardClient
	logger    logger.Logger
	now       func() time.Time
	sourceURL string
}

// Option customizes a Handler.
type Option func(*Handler)

// WithClock replaces time.Now for the CTF status line.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithSourceURL sets the link shown by About.
func WithSourceURL(url string) Option {
	return func(h *Handler) { h.sourceURL = url }
}

// NewHandler returns a Handler reading from client.
func NewHandler(client ScoreboardClient, log logger.Logger, opts ...Option) *Handler {
	if log == nil {
		log = logger.NewNopLogger()
	}
	h := &Handler{
		client:    client,
		logger:    log.WithFields(logger.StringField("component", "queries")),
		now:       time.Now,
		sourceURL: defaultSourceURL,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}
