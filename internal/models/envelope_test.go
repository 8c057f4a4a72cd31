package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRawEnvelope(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantID    string
		wantRetry int
		wantErr   bool
	}{
		{
			name:      "wrapped envelope",
			input:     `{"record":{"id":"r1","city":"chicago","dataset":"building_permits","watermark":"2024-01-01"},"retryCount":2,"lastError":"timeout"}`,
			wantID:    "r1",
			wantRetry: 2,
		},
		{
			name:      "bare record",
			input:     `{"id":"r2","city":"chicago","dataset":"business_licenses","payload":{"permit_":"123"}}`,
			wantID:    "r2",
			wantRetry: 0,
		},
		{
			name:      "bare record without id still decodes",
			input:     `{"city":"chicago","dataset":"building_permits"}`,
			wantID:    "",
			wantRetry: 0,
		},
		{
			name:    "not json",
			input:   `{{{`,
			wantErr: true,
		},
		{
			name:    "json but not a record",
			input:   `{"foo":"bar"}`,
			wantErr: true,
		},
		{
			name:    "null record",
			input:   `{"record":null,"retryCount":1}`,
			wantErr: true,
		},
		{
			name:    "array",
			input:   `[1,2,3]`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := DecodeRawEnvelope([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, env.Record)
			assert.Equal(t, tt.wantID, env.Record.ID)
			assert.Equal(t, tt.wantRetry, env.RetryCount)
		})
	}
}

func TestStampIncrementsOncePerAttempt(t *testing.T) {
	env := &RawEnvelope{Record: &RawRecord{ID: "r1"}}

	assert.Equal(t, 1, env.Stamp("first failure"))
	assert.Equal(t, 2, env.Stamp("second failure"))
	assert.Equal(t, "second failure", env.LastError)
}

func TestEnvelopeRoundTripPreservesRetryCount(t *testing.T) {
	env := &ScoreEnvelope{
		Normalized: &NormalizedRecord{RawID: "r1", City: "chicago"},
	}
	env.Stamp("storage down")

	data, err := json.Marshal(env)
	require.NoError(t, err)

	var decoded ScoreEnvelope
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 1, decoded.RetryCount)
	assert.Equal(t, "storage down", decoded.LastError)
	assert.Equal(t, "r1", decoded.Normalized.RawID)
}

func TestStableIdentifiers(t *testing.T) {
	assert.Equal(t, EventID("raw-1"), EventID("raw-1"))
	assert.Equal(t, LeadID("raw-1"), LeadID("raw-1"))
	assert.NotEqual(t, EventID("raw-1"), EventID("raw-2"))
	assert.Len(t, ShortHash("anything"), 16)

	assert.Equal(t, "evt_"+ShortHash("raw-1"), EventID("raw-1"))
	assert.Equal(t, "lead_"+ShortHash("raw-1"), LeadID("raw-1"))
}

func TestNewDeadLetter(t *testing.T) {
	t.Run("valid json kept as envelope", func(t *testing.T) {
		dl := NewDeadLetter("ingest", ReasonInvalidRecord, "missing natural key", []byte(`{"city":"chicago"}`))
		assert.Equal(t, "ingest", dl.Stage)
		assert.Equal(t, ReasonInvalidRecord, dl.Reason)
		assert.JSONEq(t, `{"city":"chicago"}`, string(dl.Envelope))
		assert.Empty(t, dl.Raw)
		assert.False(t, dl.At.IsZero())
	})

	t.Run("garbage kept verbatim", func(t *testing.T) {
		dl := NewDeadLetter("ingest", ReasonInvalidRecord, "parse error", []byte("not json"))
		assert.Empty(t, dl.Envelope)
		assert.Equal(t, "not json", dl.Raw)
	})
}
