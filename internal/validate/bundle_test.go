package validate_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/isdelr/vs-recorder/internal/models"
	"github.com/isdelr/vs-recorder/internal/validate"
)

func TestBundle(t *testing.T) {
	good := models.TeamBundle{
		Version: 1,
		Team:    models.Team{Name: "Sun"},
		Replays: []models.Replay{{Result: models.ResultWin}, {Result: models.ResultLoss}},
	}
	assert.NoError(t, validate.Bundle(good))

	tests := []struct {
		name  string
		edit  func(b *models.TeamBundle)
		field string
	}{
		{"missing version", func(b *models.TeamBundle) { b.Version = 0 }, "version"},
		{"future version", func(b *models.TeamBundle) { b.Version = 2 }, "version"},
		{"blank name", func(b *models.TeamBundle) { b.Team.Name = "  " }, "name"},
		{"bad result", func(b *models.TeamBundle) { b.Replays = []models.Replay{{Result: "draw"}} }, "replays"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := good
			b.Replays = append([]models.Replay(nil), good.Replays...)
			tt.edit(&b)
			fields := validate.FieldErrors(validate.Bundle(b))
			assert.Contains(t, fields, tt.field)
		})
	}
}
