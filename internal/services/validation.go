package services

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/activityreport/internal/models"
)

// MinPhotos is the number of activity photos a report needs.
const MinPhotos = 2

// ValidationError lists every problem found in a submitted record.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// ValidateRecord checks the fields a report cannot be produced without.
// Listed entries must carry a name or type, since queued records never pass
// through the form parser that drops blank ones.
// It returns a *ValidationError naming all of them, or nil.
func ValidateRecord(rec *models.ReportRecord) error {
	var problems []string
	if rec.GeneralInfo.Value(models.LabelActivityType) == "" {
		problems = append(problems, "Activity Type is required")
	}
	if rec.GeneralInfo.Value(models.LabelVenue) == "" {
		problems = append(problems, "Venue is required")
	}
	if len(rec.Speakers) == 0 {
		problems = append(problems, "At least one speaker is required")
	}
	for i, s := range rec.Speakers {
		if strings.TrimSpace(s.Name) == "" {
			problems = append(problems, fmt.Sprintf("Speaker %d name is required", i+1))
		}
	}
	if len(rec.Participants) == 0 {
		problems = append(problems, "At least one participant type is required")
	}
	for i, g := range rec.Participants {
		if strings.TrimSpace(g.Type) == "" {
			problems = append(problems, fmt.Sprintf("Participant group %d type is required", i+1))
		}
	}
	if len(rec.Preparers) == 0 {
		problems = append(problems, "At least one report preparer is required")
	}
	for i, p := range rec.Preparers {
		if strings.TrimSpace(p.Name) == "" {
			problems = append(problems, fmt.Sprintf("Preparer %d name is required", i+1))
		}
	}
	if len(rec.Photos) < MinPhotos {
		problems = append(problems, "At least 2 activity photos are required")
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
