package client

import (
	"context"
	"fmt"
	"net/http"

	"github.com/isdelr/vs-recorder/internal/models"
)

// ListTeams returns the signed-in user's teams.
func (c *Client) ListTeams(ctx context.Context) ([]models.Team, error) {
	var teams []models.Team
	if err := c.do(ctx, "teams.list", http.MethodGet, "/teams", nil, &teams); err != nil {
		return nil, err
	}
	return teams, nil
}

// GetTeam returns one team.
func (c *Client) GetTeam(ctx context.Context, id int64) (models.Team, error) {
	var team models.Team
	if err := c.do(ctx, "teams.get", http.MethodGet, fmt.Sprintf("/teams/%d", id), nil, &team); err != nil {
		return models.Team{}, err
	}
	return team, nil
}

// ListReplays returns the replays recorded for a team.
func (c *Client) ListReplays(ctx context.Context, teamID int64) ([]models.Replay, error) {
	var replays []models.Replay
	if err := c.do(ctx, "teams.replays", http.MethodGet, fmt.Sprintf("/teams/%d/replays", teamID), nil, &replays); err != nil {
		return nil, err
	}
	return replays, nil
}

// ImportTeam uploads an exported bundle and returns the created team.
func (c *Client) ImportTeam(ctx context.Context, bundle models.TeamBundle) (models.Team, error) {
	var team models.Team
	if err := c.do(ctx, "teams.import", http.MethodPost, "/teams/import", bundle, &team); err != nil {
		return models.Team{}, err
	}
	return team, nil
}

// DeleteTeam removes a team and its replays.
func (c *Client) DeleteTeam(ctx context.Context, id int64) error {
	return c.do(ctx, "teams.delete", http.MethodDelete, fmt.Sprintf("/teams/%d", id), nil, nil)
}
