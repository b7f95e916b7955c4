package models

import "time"

// Team is a saved VGC team.
type Team struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Format    string    `json:"format"`
	Pokepaste string    `json:"pokepaste"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Replay results.
const (
	ResultWin  = "win"
	ResultLoss = "loss"
)

// Replay is one recorded battle played with a team.
type Replay struct {
	ID       int64     `json:"id"`
	TeamID   int64     `json:"teamId"`
	URL      string    `json:"url"`
	Opponent string    `json:"opponent"`
	Result   string    `json:"result"`
	Notes    string    `json:"notes,omitempty"`
	PlayedAt time.Time `json:"playedAt"`
}

// TeamStats summarizes a team's record.
type TeamStats struct {
	Games   int     `json:"games"`
	Wins    int     `json:"wins"`
	Losses  int     `json:"losses"`
	WinRate float64 `json:"winRate"` // percentage, one decimal
}

// TeamSummary pairs a team with its record for the dashboard.
type TeamSummary struct {
	Team  Team      `json:"team"`
	Stats TeamStats `json:"stats"`
}

// TeamBundle is the import/export file format.
type TeamBundle struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exportedAt"`
	Team       Team      `json:"team"`
	Replays    []Replay  `json:"replays"`
}

// BundleVersion is the newest TeamBundle format this build reads and writes.
const BundleVersion = 1

// TeamDetail is everything the team page shows.
type TeamDetail struct {
	Team    Team      `json:"team"`
	Replays []Replay  `json:"replays"`
	Stats   TeamStats `json:"stats"`
}
