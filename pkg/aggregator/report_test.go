package aggregator

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/gpu-index/pkg/sources/sourcestest"
)

func goldenSnapshot(t *testing.T) *Snapshot {
	t.Helper()
	obs := sourcestest.FromPrices("AWS", 1.00, "Azure", 1.50, "GCP", 1.20, "Vast.ai", 0.12, "Mystery Cloud", 0.30)
	return newTestCalculator().Compute(obs)
}

func TestReport_Shape(t *testing.T) {
	snap := goldenSnapshot(t)
	raw, err := json.Marshal(NewReport(snap, "run-1"))
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "2025-03-01 12:00:00", doc["timestamp"])
	assert.Equal(t, Round(snap.FinalPrice, 2), doc["final_index_price"])

	components := doc["components"].(map[string]interface{})
	assert.Equal(t, Round(snap.HyperscalerComponent, 4), components["hyperscaler"])
	assert.Equal(t, Round(snap.NeocloudComponent, 4), components["neocloud"])

	details := doc["details"].(map[string]interface{})
	aws := details["hyperscalers"].(map[string]interface{})["AWS"].(map[string]interface{})
	for _, key := range []string{"original", "discounted", "effective", "weight", "contribution"} {
		assert.Contains(t, aws, key)
	}
	vast := details["neoclouds"].(map[string]interface{})["Vast.ai"].(map[string]interface{})
	for _, key := range []string{"price", "raw_weight", "normalized_weight", "contribution"} {
		assert.Contains(t, vast, key)
	}

	meta := doc["meta"].(map[string]interface{})
	assert.Equal(t, "run-1", meta["run_id"])
}

func TestReport_KeepsProviderOrder(t *testing.T) {
	obs := sourcestest.FromPrices("Zeta Cloud", 0.5, "Vast.ai", 0.12, "Alpha GPU", 0.3)
	raw, err := json.Marshal(NewReport(newTestCalculator().Compute(obs), ""))
	require.NoError(t, err)

	s := string(raw)
	assert.Less(t, strings.Index(s, `"Zeta Cloud"`), strings.Index(s, `"Vast.ai"`))
	assert.Less(t, strings.Index(s, `"Vast.ai"`), strings.Index(s, `"Alpha GPU"`))
}

func TestReport_WriteReadRoundTrip(t *testing.T) {
	snap := goldenSnapshot(t)
	path := filepath.Join(t.TempDir(), "t4_weighted_index.json")

	require.NoError(t, WriteReport(path, NewReport(snap, "run-2")))

	back, report, err := ReadReport(path)
	require.NoError(t, err)

	assert.Equal(t, "run-2", report.Meta.RunID)
	assert.Equal(t, Round(snap.FinalPrice, 2), back.FinalPrice)
	assert.Equal(t, snap.Timestamp.Format(ReportTimeLayout), back.Timestamp.Format(ReportTimeLayout))
	assert.Equal(t, providers(snap.Hyperscalers), providers(back.Hyperscalers))
	assert.Equal(t, providers(snap.Neoclouds), providers(back.Neoclouds))

	aws := back.Hyperscalers[0]
	assert.InDelta(t, 0.44, aws.DiscountRate, 1e-12)
	assert.Equal(t, snap.Hyperscalers[0].Contribution, aws.Contribution)
	assert.Equal(t, snap.Neoclouds[1].NormalizedWeight, back.Neoclouds[1].NormalizedWeight)
}

func TestReadReport_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timestamp": "yesterday"}`), 0o600))

	_, _, err := ReadReport(path)
	assert.ErrorIs(t, err, ErrInvalidReport)
}

func TestHistory_AppendAndReadLast(t *testing.T) {
	path := filepath.Join(t.TempDir(), "t4_gpu_index.csv")

	first := goldenSnapshot(t)
	require.NoError(t, AppendHistory(path, first))

	second := newTestCalculator().Compute(sourcestest.FromPrices("AWS", 0.4512))
	require.NoError(t, AppendHistory(path, second))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, strings.Join(HistoryHeader, ","), lines[0])

	row, err := LastHistoryRow(path)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01 12:00:00", row["Calculation_Date"])
	assert.Equal(t, formatPrice(Round(second.FinalPrice, 4)), row["Full_Index_Price"])
	assert.Equal(t, "1", row["Provider_Count"])
}

func TestLastHistoryRow_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, []byte("Calculation_Date,Full_Index_Price\n"), 0o600))

	_, err := LastHistoryRow(path)
	assert.ErrorIs(t, err, ErrNoHistory)
}

func TestRound(t *testing.T) {
	assert.Equal(t, 0.47, Round(0.46554000000000006, 2))
	assert.Equal(t, 0.4235, Round(0.4235400000000001, 4))
}
