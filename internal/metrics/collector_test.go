package metrics

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMeasureCountsAndPassesThroughErrors(t *testing.T) {
	collector := NewCollector()

	require.NoError(t, collector.Measure("get", func() error { return nil }))

	boom := errors.New("boom")
	err := collector.Measure("get", func() error { return boom })
	assert.ErrorIs(t, err, boom)

	assert.EqualValues(t, 2, collector.Count("get"))

	snapshot := collector.Snapshot()
	assert.EqualValues(t, 2, snapshot["get.count"])
	assert.EqualValues(t, 1, snapshot["get.errors"])
	assert.Contains(t, snapshot, "get.avgLatencyNs")
}

func TestReset(t *testing.T) {
	collector := NewCollector()
	require.NoError(t, collector.Measure("put", func() error { return nil }))

	collector.Reset()
	assert.EqualValues(t, 0, collector.Count("put"))
	assert.Empty(t, collector.Snapshot())
}
