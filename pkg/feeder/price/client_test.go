package price

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
	"github.com/StrathCole/gpu-index/pkg/logging"
	"github.com/StrathCole/gpu-index/pkg/sources/sourcestest"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "t4_gpu_index.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestCSVClient(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		price     float64
		column    string
		timestamp string
	}{
		{
			name:      "pipeline history",
			content:   "Calculation_Date,Full_Index_Price,Hyperscaler_Component\n2025-02-28 12:00:00,0.44,0.4\n2025-03-01 12:00:00,0.4512,0.41\n",
			price:     0.4512,
			column:    "Full_Index_Price",
			timestamp: "2025-03-01 12:00:00",
		},
		{
			name:      "T4 column wins",
			content:   "timestamp,price,T4_Index_Price\n2025-03-01,9.99,0.47\n",
			price:     0.47,
			column:    "T4_Index_Price",
			timestamp: "2025-03-01",
		},
		{
			name:      "generic price column",
			content:   "date,price\n2025-03-01,0.5\n",
			price:     0.5,
			column:    "price",
			timestamp: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := NewCSVClient(writeCSV(t, tt.content)).GetPrice(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.price, q.Price)
			assert.Equal(t, tt.column, q.Column)
			assert.Equal(t, tt.timestamp, q.Timestamp)
		})
	}
}

func TestCSVClient_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		err     error
	}{
		{name: "no price column", content: "date,value\n2025-03-01,0.5\n", err: ErrNoPriceColumn},
		{name: "not a number", content: "Full_Index_Price\nabc\n", err: ErrInvalidPrice},
		{name: "header only", content: "Full_Index_Price\n", err: aggregator.ErrNoHistory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCSVClient(writeCSV(t, tt.content)).GetPrice(context.Background())
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestCSVClient_MissingFile(t *testing.T) {
	_, err := NewCSVClient(filepath.Join(t.TempDir(), "none.csv")).GetPrice(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestStaticClient(t *testing.T) {
	q, err := NewStaticClient(0.45).GetPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.45, q.Price)
	assert.Equal(t, "manual", q.Source)
}

func TestReportClient(t *testing.T) {
	calc := aggregator.NewCalculator(aggregator.DefaultRegistry(), logging.NewNoopLogger().ZerologLogger())
	snap := calc.Compute(sourcestest.FromPrices("AWS", 1.00, "Azure", 1.50, "GCP", 1.20, "Vast.ai", 0.12))

	path := filepath.Join(t.TempDir(), "t4_weighted_index.json")
	require.NoError(t, aggregator.WriteReport(path, aggregator.NewReport(snap, "run-1")))

	q, err := NewReportClient(path).GetPrice(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0.47, q.Price)
	assert.Equal(t, "final_index_price", q.Column)
}
