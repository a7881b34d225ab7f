package commands

import "context"

// Queries is the set of query handlers behind the default commands.
type Queries interface {
	Leaderboard(ctx context.Context) string
	Statistics(ctx context.Context) string
	About() string
}

// NewDefault returns a registry with /top10, /stats, /about and /help.
func NewDefault(q Queries, opts ...Option) *Registry {
	r := NewRegistry(opts...)
	r.Register("/top10", "Show the top 10 teams", func(ctx context.Context, _ Request) (string, error) {
		return q.Leaderboard(ctx), nil
	})
	r.Register("/stats", "Show CTF statistics", func(ctx context.Context, _ Request) (string, error) {
		return q.Statistics(ctx), nil
	})
	r.Register("/about", "About this bot", func(context.Context, Request) (string, error) {
		return q.About(), nil
	})
	r.Register("/help", "Show this help message", func(context.Context, Request) (string, error) {
		return r.Help(), nil
	})
	return r
}
