package ctfd

import (
	"context"
	"errors"
	"fmt"
)

// FetchTopTeams returns the first limit scoreboard rows in upstream order.
// A limit of zero or less means DefaultTopTeams.
func (c *Client) FetchTopTeams(ctx context.Context, limit int) ([]TeamStanding, error) {
	if limit <= 0 {
		limit = DefaultTopTeams
	}
	var teams []TeamStanding
	if err := c.getData(ctx, "scoreboard", "/scoreboard", nil, &teams); err != nil {
		return nil, err
	}
	if len(teams) > limit {
		teams = teams[:limit]
	}
	return teams, nil
}

// FetchChallenges lists visible challenges in upstream order. A 2xx response
// with a blank body is treated as no challenges.
func (c *Client) FetchChallenges(ctx context.Context) ([]Challenge, error) {
	var challenges []Challenge
	err := c.getData(ctx, "challenges", "/challenges", nil, &challenges)
	if errors.Is(err, ErrEmptyResponse) {
		return []Challenge{}, nil
	}
	if err != nil {
		return nil, err
	}
	if challenges == nil {
		challenges = []Challenge{}
	}
	return challenges, nil
}

// FetchSolves lists the solves of a challenge, earliest first.
func (c *Client) FetchSolves(ctx context.Context, challengeID int64) ([]Solve, error) {
	var solves []Solve
	path := fmt.Sprintf("/challenges/%d/solves", challengeID)
	if err := c.getData(ctx, "solves", path, nil, &solves); err != nil {
		return nil, err
	}
	return solves, nil
}

// Ping checks that the platform is reachable and accepts the API key. Any
// 2xx answer counts, whatever its body.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.get(ctx, "ping", "/challenges", nil)
	var ue *UpstreamError
	if errors.As(err, &ue) && ue.StatusCode >= 200 && ue.StatusCode <= 299 {
		return nil
	}
	return err
}
