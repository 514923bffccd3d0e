package aggregator

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// HistoryHeader is the column layout of the index history CSV.
var HistoryHeader = []string{
	"Calculation_Date",
	"Full_Index_Price",
	"Hyperscaler_Component",
	"Neocloud_Component",
	"Provider_Count",
}

// AppendHistory appends one row for snap, writing the header when the file
// is new or empty.
func AppendHistory(path string, snap *Snapshot) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644) // #nosec G304 -- configured history path
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat history file: %w", err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(HistoryHeader); err != nil {
			return fmt.Errorf("failed to write history header: %w", err)
		}
	}

	row := []string{
		snap.Timestamp.Format(ReportTimeLayout),
		formatPrice(Round(snap.FinalPrice, 4)),
		formatPrice(Round(snap.HyperscalerComponent, 4)),
		formatPrice(Round(snap.NeocloudComponent, 4)),
		strconv.Itoa(snap.ProviderCount()),
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write history row: %w", err)
	}
	w.Flush()
	return w.Error()
}

// LastHistoryRow returns the final data row of a CSV file keyed by header.
func LastHistoryRow(path string) (map[string]string, error) {
	f, err := os.Open(path) // #nosec G304 -- operator supplied history path
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read history header: %w", err)
	}

	var last []string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read history row: %w", err)
		}
		last = rec
	}
	if last == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoHistory, path)
	}

	row := make(map[string]string, len(header))
	for i, col := range header {
		if i < len(last) {
			row[col] = last[i]
		}
	}
	return row, nil
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
