package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRunRecordRoundTrip(t *testing.T) {
	t.Parallel()

	rec := RunRecord{
		Timestamp: time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC),
		Status:    RunStatusRunning,
	}
	raw, err := rec.Encode()
	require.NoError(t, err)

	got, err := DecodeRunRecord(raw)
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestDecodeRunRecordRejectsMalformedPayloads(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
	}{
		{name: "not json", raw: "{nope"},
		{name: "unknown status", raw: `{"timestamp":"2026-03-09T12:00:00Z","status":"paused"}`},
		{name: "missing timestamp", raw: `{"status":"running"}`},
		{name: "empty", raw: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := DecodeRunRecord(tc.raw)
			require.Error(t, err)
		})
	}
}
