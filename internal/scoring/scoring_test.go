package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/civicsignal/civicsignal/internal/models"
)

func TestSignalStrength(t *testing.T) {
	tests := []struct {
		name string
		rec  models.NormalizedRecord
		want int
	}{
		{
			name: "no matches scores base",
			rec:  models.NormalizedRecord{Type: "Electrical Wiring", Description: "Panel upgrade"},
			want: BaseStrength,
		},
		{
			name: "single category",
			rec:  models.NormalizedRecord{Type: "Retail Food Establishment"},
			want: BaseStrength + 20,
		},
		{
			name: "multiple keywords in one category count once",
			rec:  models.NormalizedRecord{Description: "cafe bakery coffee kitchen"},
			want: BaseStrength + 20,
		},
		{
			name: "stacked categories",
			rec: models.NormalizedRecord{
				Type:        "New Business License Application",
				Description: "restaurant build out with liquor service",
			},
			want: BaseStrength + 20 + 20 + 15 + 15,
		},
		{
			name: "capped at max",
			rec: models.NormalizedRecord{
				Type:        "new business restaurant",
				Description: "buildout renovation liquor bar retail store grand opening",
			},
			want: MaxStrength,
		},
		{
			name: "case insensitive",
			rec:  models.NormalizedRecord{Type: "RESTAURANT"},
			want: BaseStrength + 20,
		},
		{
			name: "empty record",
			rec:  models.NormalizedRecord{},
			want: BaseStrength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SignalStrength(&tt.rec)
			assert.Equal(t, tt.want, got)
			assert.GreaterOrEqual(t, got, BaseStrength)
			assert.LessOrEqual(t, got, MaxStrength)
		})
	}
}

func TestSignalStrengthMonotone(t *testing.T) {
	weak := &models.NormalizedRecord{Type: "fence repair"}
	mid := &models.NormalizedRecord{Type: "retail store"}
	strong := &models.NormalizedRecord{Type: "retail store", Description: "restaurant buildout"}

	assert.Less(t, SignalStrength(weak), SignalStrength(mid))
	assert.Less(t, SignalStrength(mid), SignalStrength(strong))
}

func TestPredictedOpenWeek(t *testing.T) {
	tests := []struct {
		name      string
		eventDate string
		leadWeeks int
		want      string
	}{
		{
			name:      "iso timestamp",
			eventDate: "2026-06-01T00:00:00.000",
			leadWeeks: 8,
			// 2026-06-01 is a Monday of week 23; 8 weeks later is week 31.
			want: "2026-W31",
		},
		{
			name:      "plain date",
			eventDate: "2026-06-01",
			leadWeeks: 8,
			want:      "2026-W31",
		},
		{
			name:      "us date format",
			eventDate: "06/01/2026",
			leadWeeks: 8,
			want:      "2026-W31",
		},
		{
			name:      "year rollover",
			eventDate: "2026-12-01",
			leadWeeks: 8,
			want:      "2027-W04",
		},
		{
			name:      "default lead weeks",
			eventDate: "2026-06-01",
			leadWeeks: 0,
			want:      "2026-W31",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &models.NormalizedRecord{EventDate: tt.eventDate}
			assert.Equal(t, tt.want, PredictedOpenWeek(rec, tt.leadWeeks))
		})
	}
}

func TestPredictedOpenWeekDeterministicPerDate(t *testing.T) {
	rec := &models.NormalizedRecord{EventDate: "2026-03-15"}
	assert.Equal(t, PredictedOpenWeek(rec, 8), PredictedOpenWeek(rec, 8))
}

func TestPredictedOpenWeekNoDate(t *testing.T) {
	rec := &models.NormalizedRecord{}
	got := PredictedOpenWeek(rec, 8)
	assert.Regexp(t, `^\d{4}-W\d{2}$`, got)
}
