package monitor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/flowforge/internal/testutil"
)

type fakeStatsSource struct {
	tasks []string
}

func (s *fakeStatsSource) RunningTasks() []string {
	return s.tasks
}

func TestMetricsCollectorPublishesSamples(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping metrics sampling in short mode")
	}

	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	source := &fakeStatsSource{tasks: []string{"wf1/a", "wf1/b"}}
	collector := NewMetricsCollector(js, source, 200*time.Millisecond, zap.NewNop())

	require.NoError(t, collector.Start(context.Background()))
	defer collector.Stop()

	require.Eventually(t, func() bool {
		return collector.LastSample() != nil
	}, 10*time.Second, 100*time.Millisecond)

	sample := collector.LastSample()
	assert.Equal(t, 2, sample.RunningTasks)
	assert.GreaterOrEqual(t, sample.CPUUsage, 0.0)
	assert.Greater(t, sample.MemoryUsage, 0.0)
	assert.WithinDuration(t, time.Now(), sample.Timestamp, 10*time.Second)

	messages, err := testutil.ConsumeMessages(js, "metrics.engine", 2*time.Second)
	require.NoError(t, err)
	require.NotEmpty(t, messages)

	var published MetricsSample
	require.NoError(t, json.Unmarshal(messages[0], &published))
	assert.Equal(t, 2, published.RunningTasks)
}

func TestMetricsCollectorStop(t *testing.T) {
	js, cleanup := testutil.SetupJetStream(t)
	defer cleanup()

	collector := NewMetricsCollector(js, &fakeStatsSource{}, time.Hour, zap.NewNop())
	require.NoError(t, collector.Start(context.Background()))

	collector.Stop()
	assert.Nil(t, collector.LastSample())
}
