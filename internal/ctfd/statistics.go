package ctfd

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/lewisedginton/ctfd_announcer/pkg/logger"
)

// The fetches below are best effort: any failure is logged at warn and
// degrades to an empty value.

func (c *Client) degrade(op string, err error) {
	c.logger.Warn("CTFd best-effort fetch failed, using empty result",
		logger.StringField("op", op),
		logger.ErrorField(err))
}

// FetchConfig returns the platform settings, trying /configs then /config.
func (c *Client) FetchConfig(ctx context.Context) PlatformConfig {
	var lastErr error
	for _, path := range []string{"/configs", "/config"} {
		env, err := c.get(ctx, "config", path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		cfg, err := decodePlatformConfig(env.Data)
		if err != nil {
			lastErr = &UpstreamError{Op: "config", Path: path, StatusCode: 200, Err: ErrMalformedResponse}
			continue
		}
		if len(cfg) > 0 {
			return cfg
		}
	}
	if lastErr != nil {
		c.degrade("config", lastErr)
	}
	return PlatformConfig{}
}

// FetchAllTeams lists every registered team.
func (c *Client) FetchAllTeams(ctx context.Context) []Account {
	teams, err := getAllPages[Account](ctx, c, "teams", "/teams", nil)
	if err != nil {
		c.degrade("teams", err)
		return []Account{}
	}
	return teams
}

// FetchAllUsers lists every registered user.
func (c *Client) FetchAllUsers(ctx context.Context) []Account {
	users, err := getAllPages[Account](ctx, c, "users", "/users", nil)
	if err != nil {
		c.degrade("users", err)
		return []Account{}
	}
	return users
}

// FetchAllSubmissions lists every submission. It needs an admin token.
func (c *Client) FetchAllSubmissions(ctx context.Context) []Submission {
	return c.FetchSubmissionsByType(ctx, "")
}

// FetchSubmissionsByType lists submissions of one type, e.g. "correct".
// An empty type lists all of them.
func (c *Client) FetchSubmissionsByType(ctx context.Context, submissionType string) []Submission {
	var query url.Values
	if submissionType != "" {
		query = url.Values{"type": {submissionType}}
	}
	subs, err := getAllPages[Submission](ctx, c, "submissions", "/submissions", query)
	if err != nil {
		c.degrade("submissions", err)
		return []Submission{}
	}
	return subs
}

func (c *Client) fetchStatistic(ctx context.Context, op, path string) any {
	env, err := c.get(ctx, op, path, nil)
	if err != nil {
		c.degrade(op, err)
		return nil
	}
	var data any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		c.degrade(op, &UpstreamError{Op: op, Path: path, StatusCode: 200, Err: ErrMalformedResponse})
		return nil
	}
	return data
}

func (c *Client) FetchStatisticsChallengeSolves(ctx context.Context) any {
	return c.fetchStatistic(ctx, "statistics_challenge_solves", "/statistics/challenges/solves")
}

func (c *Client) FetchStatisticsTeams(ctx context.Context) any {
	return c.fetchStatistic(ctx, "statistics_teams", "/statistics/teams")
}

func (c *Client) FetchStatisticsChallenges(ctx context.Context) any {
	return c.fetchStatistic(ctx, "statistics_challenges", "/statistics/challenges")
}

func (c *Client) FetchStatisticsSubmissions(ctx context.Context) any {
	return c.fetchStatistic(ctx, "statistics_submissions", "/statistics/submissions")
}

func (c *Client) FetchStatisticsUsers(ctx context.Context) any {
	return c.fetchStatistic(ctx, "statistics_users", "/statistics/users")
}

// FetchComprehensiveStatistics gathers the statistics endpoints. A failing
// sub-fetch leaves only its own field nil.
func (c *Client) FetchComprehensiveStatistics(ctx context.Context) Statistics {
	return Statistics{
		ChallengeSolves: c.FetchStatisticsChallengeSolves(ctx),
		Challenges:      c.FetchStatisticsChallenges(ctx),
		Teams:           c.FetchStatisticsTeams(ctx),
		Submissions:     c.FetchStatisticsSubmissions(ctx),
		Users:           c.FetchStatisticsUsers(ctx),
	}
}
