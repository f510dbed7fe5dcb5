package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsrun-controller/internal/pipeline"
)

func TestPublisherRecordsNotifications(t *testing.T) {
	t.Parallel()

	pub := New()
	note := pipeline.Notification{
		Kind:    pipeline.NotifyRunCompleted,
		RunID:   "run-1",
		Message: "done",
		At:      time.Now().UTC(),
	}

	id, err := pub.Publish(context.Background(), note)
	require.NoError(t, err)
	require.Equal(t, "memory-1", id)

	notes := pub.Notifications()
	require.Len(t, notes, 1)
	require.Equal(t, note, notes[0])
}
