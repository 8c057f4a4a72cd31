// Package scoring holds the provisional signal-strength heuristic and the
// open-week projection. Both are replaceable business logic; nothing in
// the pipeline contracts depends on the particular weights chosen here.
package scoring

import (
	"fmt"
	"strings"
	"time"

	"github.com/civicsignal/civicsignal/internal/models"
)

// Signal strength bounds. Every record scores at least BaseStrength; no
// combination of matches exceeds MaxStrength.
const (
	BaseStrength = 30
	MaxStrength  = 100
)

// DefaultLeadWeeks is the projection horizon from a record's event date to
// the predicted opening week.
const DefaultLeadWeeks = 8

// signalCategories map keyword families to score contributions. A category
// counts once no matter how many of its keywords appear.
var signalCategories = []struct {
	keywords []string
	weight   int
}{
	{[]string{"restaurant", "food", "cafe", "coffee", "bakery", "kitchen", "catering"}, 20},
	{[]string{"new business", "new construction", "grand opening", "license application"}, 20},
	{[]string{"build out", "buildout", "remodel", "renovation", "alteration", "tenant improvement"}, 15},
	{[]string{"liquor", "tavern", "bar", "brewery"}, 15},
	{[]string{"retail", "store", "shop", "salon"}, 10},
}

// SignalStrength ranks a normalized record by keyword matches against its
// type, description and status text. The result is monotone in the number
// of matched categories and always lands in [BaseStrength, MaxStrength].
func SignalStrength(rec *models.NormalizedRecord) int {
	text := strings.ToLower(rec.Type + " " + rec.Description + " " + rec.Status)

	score := BaseStrength
	for _, cat := range signalCategories {
		for _, kw := range cat.keywords {
			if strings.Contains(text, kw) {
				score += cat.weight
				break
			}
		}
	}

	if score > MaxStrength {
		score = MaxStrength
	}
	return score
}

// eventDateLayouts cover the formats seen in open-data portals.
var eventDateLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
}

// PredictedOpenWeek projects the ISO-8601 week ("2026-W35") in which the
// business behind rec is expected to open: the record's event date plus
// leadWeeks. Records without a parseable date are projected from the
// current time.
func PredictedOpenWeek(rec *models.NormalizedRecord, leadWeeks int) string {
	if leadWeeks <= 0 {
		leadWeeks = DefaultLeadWeeks
	}
	base := parseEventDate(rec.EventDate)
	year, week := base.AddDate(0, 0, leadWeeks*7).ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

func parseEventDate(s string) time.Time {
	s = strings.TrimSpace(s)
	if s != "" {
		for _, layout := range eventDateLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t
			}
		}
	}
	return time.Now().UTC()
}
