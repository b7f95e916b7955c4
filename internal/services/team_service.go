package services

import (
	"context"
	"math"
	"strconv"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/isdelr/vs-recorder/internal/models"
)

// dashboardFanout caps concurrent replay fetches when building the dashboard.
const dashboardFanout = 4

// TeamAPI is the part of the API client the team service needs.
type TeamAPI interface {
	ListTeams(ctx context.Context) ([]models.Team, error)
	GetTeam(ctx context.Context, id int64) (models.Team, error)
	ListReplays(ctx context.Context, teamID int64) ([]models.Replay, error)
	ImportTeam(ctx context.Context, bundle models.TeamBundle) (models.Team, error)
	DeleteTeam(ctx context.Context, id int64) error
}

// TeamServiceProvider defines the interface for team services.
type TeamServiceProvider interface {
	ListTeams(ctx context.Context, userID int64) ([]models.Team, error)
	Dashboard(ctx context.Context, userID int64) ([]models.TeamSummary, error)
	Detail(ctx context.Context, id int64) (models.TeamDetail, error)
	Export(ctx context.Context, id int64) (models.TeamBundle, error)
	Import(ctx context.Context, userID int64, bundle models.TeamBundle) (models.Team, error)
	Delete(ctx context.Context, userID, id int64) error
	Invalidate(userID int64)
	Flush()
}

// TeamService reads teams and replays through the API and computes records.
// Team lists are cached per user for a short time.
type TeamService struct {
	api   TeamAPI
	cache *cache.Cache
	now   func() time.Time
}

// NewTeamService creates a new TeamService. ttl <= 0 disables expiry of
// cached lists; they are still dropped on import, delete and sign-out.
func NewTeamService(api TeamAPI, ttl time.Duration) *TeamService {
	exp := ttl
	if ttl <= 0 {
		exp = cache.NoExpiration
	}
	return &TeamService{api: api, cache: cache.New(exp, 2*exp), now: time.Now}
}

func teamsKey(userID int64) string { return "teams:" + strconv.FormatInt(userID, 10) }

// ListTeams returns the user's teams, from cache when fresh.
func (s *TeamService) ListTeams(ctx context.Context, userID int64) ([]models.Team, error) {
	key := teamsKey(userID)
	if v, ok := s.cache.Get(key); ok {
		return v.([]models.Team), nil
	}
	teams, err := s.api.ListTeams(ctx)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(key, teams)
	return teams, nil
}

// Dashboard returns every team with its record, in the API's order.
func (s *TeamService) Dashboard(ctx context.Context, userID int64) ([]models.TeamSummary, error) {
	teams, err := s.ListTeams(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.TeamSummary, len(teams))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(dashboardFanout)
	for i, team := range teams {
		g.Go(func() error {
			replays, err := s.api.ListReplays(gctx, team.ID)
			if err != nil {
				return err
			}
			summaries[i] = models.TeamSummary{Team: team, Stats: ComputeStats(replays)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// Detail loads a team and its replays concurrently.
func (s *TeamService) Detail(ctx context.Context, id int64) (models.TeamDetail, error) {
	var detail models.TeamDetail
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		team, err := s.api.GetTeam(gctx, id)
		detail.Team = team
		return err
	})
	g.Go(func() error {
		replays, err := s.api.ListReplays(gctx, id)
		detail.Replays = replays
		return err
	})
	if err := g.Wait(); err != nil {
		return models.TeamDetail{}, err
	}
	detail.Stats = ComputeStats(detail.Replays)
	return detail, nil
}

// Export builds a portable bundle for a team.
func (s *TeamService) Export(ctx context.Context, id int64) (models.TeamBundle, error) {
	detail, err := s.Detail(ctx, id)
	if err != nil {
		return models.TeamBundle{}, err
	}
	replays := detail.Replays
	if replays == nil {
		replays = []models.Replay{}
	}
	return models.TeamBundle{
		Version:    models.BundleVersion,
		ExportedAt: s.now().UTC(),
		Team:       detail.Team,
		Replays:    replays,
	}, nil
}

// Import uploads a bundle and drops the user's cached team list.
func (s *TeamService) Import(ctx context.Context, userID int64, bundle models.TeamBundle) (models.Team, error) {
	team, err := s.api.ImportTeam(ctx, bundle)
	if err != nil {
		return models.Team{}, err
	}
	s.Invalidate(userID)
	log.Info().Int64("team_id", team.ID).Int("replays", len(bundle.Replays)).Msg("Team imported")
	return team, nil
}

// Delete removes a team and drops the user's cached team list.
func (s *TeamService) Delete(ctx context.Context, userID, id int64) error {
	if err := s.api.DeleteTeam(ctx, id); err != nil {
		return err
	}
	s.Invalidate(userID)
	log.Info().Int64("team_id", id).Msg("Team deleted")
	return nil
}

// Invalidate drops the cached team list of one user.
func (s *TeamService) Invalidate(userID int64) { s.cache.Delete(teamsKey(userID)) }

// Flush drops every cached list. Called when the session ends.
func (s *TeamService) Flush() { s.cache.Flush() }

// ComputeStats tallies wins and losses. WinRate is a percentage rounded to
// one decimal place, 0 when no games were played.
func ComputeStats(replays []models.Replay) models.TeamStats {
	var st models.TeamStats
	for _, r := range replays {
		switch r.Result {
		case models.ResultWin:
			st.Wins++
		case models.ResultLoss:
			st.Losses++
		default:
			continue
		}
		st.Games++
	}
	if st.Games > 0 {
		st.WinRate = math.Round(float64(st.Wins)/float64(st.Games)*1000) / 10
	}
	return st
}
