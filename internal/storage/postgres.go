package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/civicsignal/civicsignal/internal/models"
)

// Postgres is the production Store backed by a pgx connection pool.
//
// The pool is created lazily: no connection is established at
// construction, so a database outage surfaces as per-item failures that
// the stages retry, not as a startup crash.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Store for the given DSN.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// Ping verifies database connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// UpsertRaw implements Store. A repeated natural key refreshes the
// watermark and payload of the existing row.
func (p *Postgres) UpsertRaw(ctx context.Context, rec *models.RawRecord) error {
	query := `
		INSERT INTO raw (id, city, dataset, watermark, payload, inserted_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE SET
			watermark = EXCLUDED.watermark,
			payload = EXCLUDED.payload,
			inserted_at = now()`

	_, err := p.pool.Exec(ctx, query,
		rec.ID, rec.City, rec.Dataset, rec.Watermark, []byte(rec.Payload))
	if err != nil {
		return fmt.Errorf("failed to upsert raw record %s: %w", rec.ID, err)
	}
	return nil
}

// InsertEvent implements Store. A repeated event_id is ignored, which
// keeps retried score sequences from minting duplicate events.
func (p *Postgres) InsertEvent(ctx context.Context, ev *models.Event) error {
	evidence, err := json.Marshal(ev.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal event evidence: %w", err)
	}

	query := `
		INSERT INTO events (event_id, city, address, name, predicted_open_week,
			signal_strength, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO NOTHING`

	_, err = p.pool.Exec(ctx, query,
		ev.EventID, ev.City, ev.Address, ev.Name, ev.PredictedOpenWeek,
		ev.SignalStrength, evidence, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event %s: %w", ev.EventID, err)
	}
	return nil
}

// InsertLead implements Store. A repeated lead_id is ignored.
func (p *Postgres) InsertLead(ctx context.Context, lead *models.Lead) error {
	evidence, err := json.Marshal(lead.Evidence)
	if err != nil {
		return fmt.Errorf("failed to marshal lead evidence: %w", err)
	}

	query := `
		INSERT INTO leads (lead_id, city, name, address, phone, email,
			score, intelligence, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (lead_id) DO NOTHING`

	_, err = p.pool.Exec(ctx, query,
		lead.LeadID, lead.City, lead.Name, lead.Address, lead.Phone, lead.Email,
		lead.Score, []byte(lead.Intelligence), evidence, lead.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert lead %s: %w", lead.LeadID, err)
	}
	return nil
}

// RawCount returns the number of raw records. Used by the integration
// tests and operator tooling.
func (p *Postgres) RawCount(ctx context.Context) (int, error) {
	var n int
	if err := p.pool.QueryRow(ctx, `SELECT count(*) FROM raw`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count raw records: %w", err)
	}
	return n, nil
}

// Close implements Store.
func (p *Postgres) Close() {
	p.pool.Close()
}
