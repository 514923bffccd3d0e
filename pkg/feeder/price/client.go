package price

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
)

// PriceColumns are the accepted price columns of a history row, by priority.
var PriceColumns = []string{"T4_Index_Price", "Full_Index_Price", "index_price", "price"}

// TimestampColumns are the accepted timestamp columns, by priority.
var TimestampColumns = []string{"Calculation_Date", "timestamp"}

// Quote is a price to publish and where it came from.
type Quote struct {
	Price     float64
	Timestamp string // as written by the producer, "unknown" when absent
	Source    string
	Column    string
}

// Client resolves the price to push.
type Client interface {
	GetPrice(ctx context.Context) (Quote, error)
}

// StaticClient returns a fixed operator-supplied price.
type StaticClient struct {
	price float64
}

// NewStaticClient creates a client for a manual price override.
func NewStaticClient(price float64) Client {
	return &StaticClient{price: price}
}

// GetPrice returns the override.
func (c *StaticClient) GetPrice(context.Context) (Quote, error) {
	return Quote{Price: c.price, Timestamp: "unknown", Source: "manual"}, nil
}

// CSVClient reads the last row of the index history CSV.
type CSVClient struct {
	path string
}

// NewCSVClient creates a client reading path.
func NewCSVClient(path string) Client {
	return &CSVClient{path: path}
}

// GetPrice returns the price of the final row.
func (c *CSVClient) GetPrice(context.Context) (Quote, error) {
	row, err := aggregator.LastHistoryRow(c.path)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read %s: %w", c.path, err)
	}
	return quoteFromRow(row, c.path)
}

func quoteFromRow(row map[string]string, source string) (Quote, error) {
	col := ""
	for _, name := range PriceColumns {
		if _, ok := row[name]; ok {
			col = name
			break
		}
	}
	if col == "" {
		available := make([]string, 0, len(row))
		for name := range row {
			available = append(available, name)
		}
		sort.Strings(available)
		return Quote{}, fmt.Errorf("%w, available columns: %s", ErrNoPriceColumn, strings.Join(available, ", "))
	}

	d, err := decimal.NewFromString(strings.TrimSpace(row[col]))
	if err != nil {
		return Quote{}, fmt.Errorf("%w: %q in column %s", ErrInvalidPrice, row[col], col)
	}

	ts := "unknown"
	for _, name := range TimestampColumns {
		if v, ok := row[name]; ok {
			ts = v
			break
		}
	}

	return Quote{
		Price:     d.InexactFloat64(),
		Timestamp: ts,
		Source:    source,
		Column:    col,
	}, nil
}

// ReportClient reads the final price of a written index report.
type ReportClient struct {
	path string
}

// NewReportClient creates a client reading the report at path.
func NewReportClient(path string) Client {
	return &ReportClient{path: path}
}

// GetPrice returns the report's final index price.
func (c *ReportClient) GetPrice(context.Context) (Quote, error) {
	_, report, err := aggregator.ReadReport(c.path)
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		Price:     report.FinalIndexPrice,
		Timestamp: report.Timestamp,
		Source:    c.path,
		Column:    "final_index_price",
	}, nil
}
