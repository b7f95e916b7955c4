package validate

import (
	"fmt"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"

	"github.com/isdelr/vs-recorder/internal/models"
)

const TeamNameMax = 100

// Bundle checks an uploaded team export before it is sent to the API.
func Bundle(b models.TeamBundle) error {
	errs := validation.Errors{
		"version": validation.Validate(b.Version,
			validation.Required.Error("File is missing its format version"),
			validation.Max(models.BundleVersion).Error("File was exported by a newer version of VS Recorder"),
		),
		"name": validation.Validate(strings.TrimSpace(b.Team.Name),
			validation.Required.Error("Team name is required"),
			validation.Length(1, TeamNameMax).Error("Team name must be at most 100 characters"),
		),
	}
	for i, r := range b.Replays {
		if r.Result != models.ResultWin && r.Result != models.ResultLoss {
			errs["replays"] = fmt.Errorf("Replay %d has an unknown result %q", i+1, r.Result)
			break
		}
	}
	return errs.Filter()
}
