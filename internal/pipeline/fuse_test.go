package pipeline

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civicsignal/civicsignal/internal/fusion"
	"github.com/civicsignal/civicsignal/internal/models"
	"github.com/civicsignal/civicsignal/internal/queue"
)

func setupFuse(t *testing.T) (*Fuse, *fusion.Deduper, *queue.Queue, queue.Keys) {
	t.Helper()
	q, _ := setupTestQueue(t)
	keys := queue.DefaultKeys("civicsignal")
	dedup := fusion.NewDeduper(q.Client(), "civicsignal", time.Hour)
	fu := NewFuse(testOptions(q, keys.Fuse, keys.FuseDLQ), dedup, keys.Export)
	return fu, dedup, q, keys
}

// testFusePair builds the event/lead pair the score stage would emit for
// the given raw record.
func testFusePair(rawID string) *models.FuseEnvelope {
	rec := testNormalizedRecord(rawID)
	ev := &models.Event{
		EventID:           models.EventID(rawID),
		City:              rec.City,
		Address:           rec.Address,
		Name:              rec.BusinessName,
		PredictedOpenWeek: "2026-W31",
		SignalStrength:    80,
		Evidence:          []models.NormalizedRecord{*rec},
		CreatedAt:         time.Now().UTC(),
	}
	lead := &models.Lead{
		LeadID:    models.LeadID(rawID),
		City:      rec.City,
		Name:      rec.BusinessName,
		Address:   rec.Address,
		Score:     ev.SignalStrength,
		Evidence:  []models.Event{*ev},
		CreatedAt: ev.CreatedAt,
	}
	return &models.FuseEnvelope{Event: ev, Lead: lead}
}

func TestFuseFirstClaimForwards(t *testing.T) {
	fu, dedup, q, keys := setupFuse(t)
	ctx := context.Background()

	pair := testFusePair("chicago_bl_001")
	msg, err := json.Marshal(pair)
	require.NoError(t, err)
	require.NoError(t, fu.processOne(ctx, msg))

	out, err := q.Pop(ctx, keys.Export)
	require.NoError(t, err)
	var fwd models.FuseEnvelope
	require.NoError(t, json.Unmarshal(out, &fwd))
	assert.Equal(t, pair.Event.EventID, fwd.Event.EventID)
	assert.Equal(t, 0, fwd.RetryCount)

	owner, err := dedup.Owner(ctx, fusion.Key(pair.Event))
	require.NoError(t, err)
	assert.Equal(t, pair.Event.EventID, owner)
}

func TestFuseDuplicateDropped(t *testing.T) {
	fu, _, q, keys := setupFuse(t)
	ctx := context.Background()

	// Same business signal surfacing from two raw records: different
	// event ids, identical fusion fields.
	first, err := json.Marshal(testFusePair("chicago_bl_001"))
	require.NoError(t, err)
	second, err := json.Marshal(testFusePair("chicago_bp_774"))
	require.NoError(t, err)

	require.NoError(t, fu.processOne(ctx, first))
	require.NoError(t, fu.processOne(ctx, second))

	assert.EqualValues(t, 1, queueLen(t, q, keys.Export))
	assert.EqualValues(t, 0, queueLen(t, q, keys.FuseDLQ))
	assert.EqualValues(t, 1, fu.Stats().Duplicates)
}

func TestFuseDedupIgnoresCase(t *testing.T) {
	fu, _, q, keys := setupFuse(t)
	ctx := context.Background()

	first, err := json.Marshal(testFusePair("chicago_bl_001"))
	require.NoError(t, err)

	shouting := testFusePair("chicago_bp_774")
	shouting.Event.Name = "STELLAR COFFEE"
	shouting.Event.Address = "4100 N DAMEN AVE"
	second, err := json.Marshal(shouting)
	require.NoError(t, err)

	require.NoError(t, fu.processOne(ctx, first))
	require.NoError(t, fu.processOne(ctx, second))

	assert.EqualValues(t, 1, queueLen(t, q, keys.Export))
	assert.EqualValues(t, 1, fu.Stats().Duplicates)
}

func TestFuseOwnClaimStillForwards(t *testing.T) {
	fu, dedup, q, keys := setupFuse(t)
	ctx := context.Background()

	// An earlier delivery claimed the key and then failed before the
	// forward. The redelivered envelope must still reach export.
	pair := testFusePair("chicago_bl_001")
	claimed, err := dedup.Claim(ctx, fusion.Key(pair.Event), pair.Event.EventID)
	require.NoError(t, err)
	require.True(t, claimed)

	msg, err := json.Marshal(pair)
	require.NoError(t, err)
	require.NoError(t, fu.processOne(ctx, msg))

	assert.EqualValues(t, 1, queueLen(t, q, keys.Export))
	assert.EqualValues(t, 0, fu.Stats().Duplicates)
}

func TestFuseMalformedDeadLetters(t *testing.T) {
	fu, _, q, keys := setupFuse(t)
	ctx := context.Background()

	raw := []byte(`{"event":`)
	require.Error(t, fu.processOne(ctx, raw))

	dl := popDeadLetter(t, q, keys.FuseDLQ)
	assert.Equal(t, StageFuse, dl.Stage)
	assert.Equal(t, models.ReasonInvalidEnvelope, dl.Reason)
	assert.Equal(t, string(raw), dl.Raw)
	assert.EqualValues(t, 0, queueLen(t, q, keys.Export))
}

func TestFuseIncompletePairDeadLetters(t *testing.T) {
	fu, _, q, keys := setupFuse(t)
	ctx := context.Background()

	raw := []byte(`{"event":{"event_id":"evt_123","city":"chicago"}}`)
	require.Error(t, fu.processOne(ctx, raw))

	dl := popDeadLetter(t, q, keys.FuseDLQ)
	assert.Equal(t, models.ReasonInvalidEnvelope, dl.Reason)
	assert.JSONEq(t, string(raw), string(dl.Envelope))
}
