package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
	"github.com/StrathCole/gpu-index/pkg/logging"
	"github.com/StrathCole/gpu-index/pkg/sources/sourcestest"
	"github.com/StrathCole/gpu-index/pkg/version"
)

type recordingWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func testSnapshot() *aggregator.Snapshot {
	calc := aggregator.NewCalculator(aggregator.DefaultRegistry(), logging.NewNoopLogger().ZerologLogger())
	return calc.Compute(sourcestest.FromPrices("AWS", 1.00, "Azure", 1.50, "GCP", 1.20, "Vast.ai", 0.12))
}

func TestPublish(t *testing.T) {
	w := &recordingWriter{}
	p := NewPublisherWithWriter(w, "gpu-index.published", logging.NewNoopLogger().ZerologLogger())

	snap := testSnapshot()
	snap.Timestamp = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(context.Background(), NewIndexPublished("run-1", 42, snap)))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, "run-1", string(msg.Key))

	var event IndexPublished
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	assert.Equal(t, EventType, event.Type)
	assert.Equal(t, int64(42), event.IndexID)
	assert.Equal(t, "2025-03-01T12:00:00Z", event.Timestamp)
	assert.Equal(t, snap.FinalPrice, event.IndexPrice)
	assert.Equal(t, 4, event.ProviderCount)
	assert.Equal(t, version.AgentString(), event.Client)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestPublish_WriteError(t *testing.T) {
	w := &recordingWriter{err: errors.New("leader not available")}
	p := NewPublisherWithWriter(w, "t", logging.NewNoopLogger().ZerologLogger())

	err := p.Publish(context.Background(), NewIndexPublished("run-2", 1, testSnapshot()))
	assert.ErrorContains(t, err, "leader not available")
}

func TestNewPublisher_RequiresBrokers(t *testing.T) {
	_, err := NewPublisher(Config{Topic: "t"}, logging.NewNoopLogger().ZerologLogger())
	assert.ErrorIs(t, err, ErrNoBrokers)
}
