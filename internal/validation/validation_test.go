package validation

import (
	"bytes"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var labels = []string{"HP_ORIGINAL", "NAO_HP"}

func sample(id, expected, predicted string, ms int) Sample {
	return Sample{ID: id, Expected: expected, Predicted: predicted, Latency: time.Duration(ms) * time.Millisecond}
}

func TestMetrics(t *testing.T) {
	r := NewRecorder(labels)
	for _, s := range []Sample{
		sample("a", "HP_ORIGINAL", "HP_ORIGINAL", 10),
		sample("b", "HP_ORIGINAL", "HP_ORIGINAL", 20),
		sample("c", "HP_ORIGINAL", "NAO_HP", 30),
		sample("d", "NAO_HP", "NAO_HP", 40),
	} {
		require.NoError(t, r.Add(s))
	}

	m, err := r.Metrics()
	require.NoError(t, err)
	assert.Equal(t, r.RunID(), m.RunID)
	assert.Equal(t, 4, m.Samples)
	assert.Equal(t, 3, m.Correct)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-12)

	want := []ClassMetrics{
		{Label: "HP_ORIGINAL", Support: 3, TruePositives: 2, FalseNegatives: 1, Precision: 1, Recall: 2.0 / 3},
		{Label: "NAO_HP", Support: 1, TruePositives: 1, FalsePositives: 1, Precision: 0.5, Recall: 1},
	}
	if diff := cmp.Diff(want, m.Classes); diff != "" {
		t.Errorf("classes mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, [][]int{{2, 1}, {0, 1}}, m.Confusion)

	assert.InDelta(t, 25, m.Latency.MeanMs, 1e-9)
	assert.InDelta(t, 10, m.Latency.MinMs, 1e-9)
	assert.InDelta(t, 40, m.Latency.MaxMs, 1e-9)
	// Sample standard deviation of 10, 20, 30, 40.
	assert.InDelta(t, math.Sqrt(500.0/3), m.Latency.StdDevMs, 1e-9)
}

func TestMetrics_SingleSample(t *testing.T) {
	r := NewRecorder(labels)
	require.NoError(t, r.Add(sample("a", "NAO_HP", "HP_ORIGINAL", 5)))
	m, err := r.Metrics()
	require.NoError(t, err)
	assert.Zero(t, m.Accuracy)
	assert.Zero(t, m.Latency.StdDevMs)
	// No predictions of NAO_HP: precision falls back to zero.
	assert.Zero(t, m.Classes[1].Precision)
	assert.Zero(t, m.Classes[1].Recall)
}

func TestMetrics_Empty(t *testing.T) {
	_, err := NewRecorder(labels).Metrics()
	assert.ErrorIs(t, err, ErrNoSamples)
}

func TestAdd_UnknownLabel(t *testing.T) {
	r := NewRecorder(labels)
	assert.Error(t, r.Add(sample("a", "CAT", "NAO_HP", 1)))
	assert.Error(t, r.Add(sample("a", "NAO_HP", "CAT", 1)))
	assert.Empty(t, r.Samples())
}

func TestAdd_CopiesScores(t *testing.T) {
	r := NewRecorder(labels)
	scores := []int8{1, 2}
	s := sample("a", "NAO_HP", "NAO_HP", 1)
	s.Scores = scores
	require.NoError(t, r.Add(s))
	scores[0] = 99
	assert.Equal(t, []int8{1, 2}, r.Samples()[0].Scores)
}

func TestWriters(t *testing.T) {
	r := NewRecorder(labels)
	require.NoError(t, r.Add(sample("a", "HP_ORIGINAL", "HP_ORIGINAL", 2)))
	m, err := r.Metrics()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.WriteJSON(&buf))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, r.RunID().String(), decoded["run_id"])
	assert.Equal(t, float64(1), decoded["accuracy"])

	buf.Reset()
	require.NoError(t, m.WriteTable(&buf))
	assert.Contains(t, buf.String(), "1/1 correct (100.0%)")
	assert.Contains(t, buf.String(), "HP_ORIGINAL")
}
