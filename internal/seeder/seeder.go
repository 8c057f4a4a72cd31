// Package seeder pushes synthetic raw records onto the raw queue for
// development and load testing, standing in for the real extractors.
package seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianvoe/gofakeit/v6"

	"github.com/civicsignal/civicsignal/internal/logging"
	"github.com/civicsignal/civicsignal/internal/models"
	"github.com/civicsignal/civicsignal/internal/queue"
)

// Datasets the generator can fake. They mirror the open-data feeds the
// extractors watch.
const (
	DatasetLicenses    = "business_licenses"
	DatasetPermits     = "building_permits"
	DatasetInspections = "food_inspections"
)

// DefaultDatasets is the generation mix when none is selected.
var DefaultDatasets = []string{DatasetLicenses, DatasetPermits, DatasetInspections}

// DefaultCount is the number of records seeded when none is requested.
const DefaultCount = 100

// Options control one seeding run.
type Options struct {
	City     string
	Datasets []string
	Count    int
	// Spread distributes record watermarks backwards from now. Zero
	// stamps every record with the current time.
	Spread time.Duration
}

// Runner pushes generated records onto the raw queue.
type Runner struct {
	queue *queue.Queue
	key   string
	log   *logging.Logger
}

// NewRunner creates a seeder pushing to rawKey through q.
func NewRunner(q *queue.Queue, rawKey string, log *logging.Logger) *Runner {
	if log == nil {
		log = logging.Default()
	}
	return &Runner{queue: q, key: rawKey, log: log}
}

// Run generates and pushes opts.Count records, returning how many were
// pushed. Records go out bare, the way the extractors push them; the
// ingest boundary wraps them in envelopes.
func (r *Runner) Run(ctx context.Context, opts Options) (int, error) {
	gofakeit.Seed(time.Now().UnixNano())

	if opts.City == "" {
		opts.City = "chicago"
	}
	if len(opts.Datasets) == 0 {
		opts.Datasets = DefaultDatasets
	}
	if opts.Count <= 0 {
		opts.Count = DefaultCount
	}

	pushed := 0
	for i := 0; i < opts.Count; i++ {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}
		dataset := opts.Datasets[i%len(opts.Datasets)]
		rec := GenerateRecord(opts.City, dataset, i, opts.Count, opts.Spread)
		if err := r.queue.PushJSON(ctx, r.key, rec); err != nil {
			return pushed, fmt.Errorf("failed to push record %s: %w", rec.ID, err)
		}
		pushed++
	}

	r.log.Info("seeded raw records",
		logging.Queue(r.key),
		slog.String(logging.FieldCity, opts.City),
		slog.Int("count", pushed),
	)
	return pushed, nil
}

// GenerateRecord fakes one raw record for a dataset. Watermarks spread
// evenly backwards over spread so ingested batches look like a real
// extraction window.
func GenerateRecord(city, dataset string, index, total int, spread time.Duration) *models.RawRecord {
	watermark := time.Now().UTC()
	if spread > 0 && total > 0 {
		step := spread / time.Duration(total)
		watermark = watermark.Add(-spread + time.Duration(index)*step)
	}

	var payload map[string]interface{}
	switch dataset {
	case DatasetPermits:
		payload = generatePermit()
	case DatasetInspections:
		payload = generateInspection()
	default:
		payload = generateLicense()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		data = nil
	}

	return &models.RawRecord{
		ID:        fmt.Sprintf("%s_%s_%06d", city, datasetAbbrev(dataset), index),
		City:      city,
		Dataset:   dataset,
		Watermark: watermark.Format("2006-01-02T15:04:05.000"),
		Payload:   data,
	}
}

func datasetAbbrev(dataset string) string {
	switch dataset {
	case DatasetPermits:
		return "bp"
	case DatasetInspections:
		return "fi"
	default:
		return "bl"
	}
}

var licenseDescriptions = []string{
	"Retail Food Establishment",
	"Tavern",
	"Package Goods",
	"Limited Business License",
	"Regulated Business License",
}

func generateLicense() map[string]interface{} {
	name := gofakeit.Company()
	return map[string]interface{}{
		"legal_name":             name,
		"doing_business_as_name": name,
		"address":                fmt.Sprintf("%d %s", gofakeit.Number(100, 9999), gofakeit.Street()),
		"city":                   "CHICAGO",
		"state":                  "IL",
		"zip_code":               gofakeit.Zip(),
		"license_description":    gofakeit.RandomString(licenseDescriptions),
		"application_type":       "ISSUE",
		"license_status":         "AAI",
	}
}

var permitTypes = []string{
	"PERMIT - NEW CONSTRUCTION",
	"PERMIT - RENOVATION/ALTERATION",
	"PERMIT - SIGNS",
}

var permitWork = []string{
	"interior build out for new restaurant",
	"tenant improvement and remodel of retail space",
	"new construction of commercial building",
	"renovation of existing storefront",
}

func generatePermit() map[string]interface{} {
	return map[string]interface{}{
		"permit_type":      gofakeit.RandomString(permitTypes),
		"work_description": gofakeit.RandomString(permitWork),
		"street_number":    gofakeit.Number(100, 9999),
		"street_name":      gofakeit.Street(),
		"contact_1_name":   gofakeit.Name(),
		"reported_cost":    gofakeit.Number(10000, 2000000),
	}
}

var facilityTypes = []string{"Restaurant", "Grocery Store", "Bakery", "Coffee Shop"}

func generateInspection() map[string]interface{} {
	return map[string]interface{}{
		"dba_name":        gofakeit.Company(),
		"facility_type":   gofakeit.RandomString(facilityTypes),
		"risk":            "Risk 1 (High)",
		"inspection_type": "License",
		"results":         "Pass",
		"address":         fmt.Sprintf("%d %s", gofakeit.Number(100, 9999), gofakeit.Street()),
	}
}
