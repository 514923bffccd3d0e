// Package store persists accepted index snapshots to a SQL database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/aggregator"
	"github.com/StrathCole/gpu-index/pkg/feeder"
	"github.com/StrathCole/gpu-index/pkg/metrics"
)

const sinkName = "store"

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// ErrUnsupportedDriver indicates a driver name other than postgres or sqlite3.
var ErrUnsupportedDriver = errors.New("unsupported store driver")

// Config configures the store.
type Config struct {
	Driver         string
	DSN            string
	ConnectTimeout time.Duration
}

// IndexRecord is one row of t4_index_prices.
type IndexRecord struct {
	ID                   int64
	Timestamp            time.Time
	IndexPrice           float64
	HyperscalerComponent float64
	NeocloudComponent    float64
	Metadata             json.RawMessage
}

// ProviderRecord is one row of t4_provider_prices.
type ProviderRecord struct {
	IndexID              int64
	Timestamp            time.Time
	ProviderName         string
	ProviderType         string
	OriginalPrice        float64
	EffectivePrice       float64
	DiscountRate         float64
	RelativeWeight       float64
	AbsoluteWeight       float64
	WeightedContribution float64
}

// Store writes index snapshots and their provider breakdown.
type Store struct {
	db     *sql.DB
	driver string
	logger zerolog.Logger
}

// Open connects to the database, verifies it is reachable and ensures the
// schema exists.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	if cfg.Driver != DriverPostgres && cfg.Driver != DriverSQLite {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, &feeder.ConnectivityError{Sink: sinkName, Op: "ping", Err: err}
	}

	s := &Store{
		db:     db,
		driver: cfg.Driver,
		logger: logger.With().Str("component", "store").Str("driver", cfg.Driver).Logger(),
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if s.driver == DriverSQLite {
		if _, err := s.db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
			return fmt.Errorf("failed to enable foreign keys: %w", err)
		}
	}
	for _, stmt := range schemaFor(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return feeder.Connectivity(sinkName, "migrate", fmt.Errorf("failed to create schema: %w", err))
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Latest returns the most recently created index row, or nil when the
// table is empty.
func (s *Store) Latest(ctx context.Context) (*IndexRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, timestamp, index_price, hyperscaler_component, neocloud_component, metadata
		FROM t4_index_prices
		ORDER BY created_at DESC, id DESC
		LIMIT 1`))

	var (
		rec  IndexRecord
		ts   sql.NullTime
		meta sql.NullString
	)
	err := row.Scan(&rec.ID, &ts, &rec.IndexPrice, &rec.HyperscalerComponent, &rec.NeocloudComponent, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, feeder.Connectivity(sinkName, "query latest", fmt.Errorf("failed to read latest index: %w", err))
	}
	if ts.Valid {
		rec.Timestamp = ts.Time
	}
	if meta.Valid {
		rec.Metadata = json.RawMessage(meta.String)
	}
	return &rec, nil
}

// LatestPrice returns the last accepted index price, or nil when none exists.
func (s *Store) LatestPrice(ctx context.Context) (*float64, error) {
	rec, err := s.Latest(ctx)
	if err != nil || rec == nil {
		return nil, err
	}
	price := rec.IndexPrice
	return &price, nil
}

// Append writes the snapshot and one row per provider in a single
// transaction and returns the new index id. On any error nothing is kept.
func (s *Store) Append(ctx context.Context, snap *aggregator.Snapshot, metadata json.RawMessage) (id int64, err error) {
	defer func() { metrics.RecordSinkWrite(sinkName, err) }()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, feeder.Connectivity(sinkName, "begin", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				s.logger.Error().Err(rbErr).Msg("Rollback failed")
			}
		}
	}()

	if len(metadata) == 0 {
		metadata = json.RawMessage("{}")
	}

	err = tx.QueryRowContext(ctx, s.rebind(`
		INSERT INTO t4_index_prices (timestamp, index_price, hyperscaler_component, neocloud_component, metadata)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`),
		snap.Timestamp.UTC(),
		snap.FinalPrice,
		snap.HyperscalerComponent,
		snap.NeocloudComponent,
		string(metadata),
	).Scan(&id)
	if err != nil {
		return 0, feeder.Connectivity(sinkName, "insert index", fmt.Errorf("failed to insert index row: %w", err))
	}

	breakdown := snap.Breakdown()
	if len(breakdown) > 0 {
		stmt, err := tx.PrepareContext(ctx, s.rebind(`
			INSERT INTO t4_provider_prices (
				index_id, timestamp, provider_name, provider_type, original_price, effective_price,
				discount_rate, relative_weight, absolute_weight, weighted_contribution
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
		if err != nil {
			return 0, fmt.Errorf("failed to prepare provider insert: %w", err)
		}
		defer stmt.Close()

		for _, rec := range providerRecords(id, snap) {
			if _, err := stmt.ExecContext(ctx,
				rec.IndexID,
				rec.Timestamp.UTC(),
				rec.ProviderName,
				rec.ProviderType,
				rec.OriginalPrice,
				rec.EffectivePrice,
				rec.DiscountRate,
				rec.RelativeWeight,
				rec.AbsoluteWeight,
				rec.WeightedContribution,
			); err != nil {
				return 0, feeder.Connectivity(sinkName, "insert provider", fmt.Errorf("failed to insert provider %s: %w", rec.ProviderName, err))
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, feeder.Connectivity(sinkName, "commit", fmt.Errorf("failed to commit: %w", err))
	}

	s.logger.Info().
		Int64("index_id", id).
		Float64("index_price", snap.FinalPrice).
		Int("providers", len(breakdown)).
		Msg("Index stored")
	return id, nil
}

// Providers returns the provider rows of one index, in insertion order.
func (s *Store) Providers(ctx context.Context, indexID int64) ([]ProviderRecord, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT index_id, timestamp, provider_name, provider_type, original_price, effective_price,
			discount_rate, relative_weight, absolute_weight, weighted_contribution
		FROM t4_provider_prices
		WHERE index_id = ?
		ORDER BY id`), indexID)
	if err != nil {
		return nil, feeder.Connectivity(sinkName, "query providers", err)
	}
	defer rows.Close()

	var out []ProviderRecord
	for rows.Next() {
		var (
			rec ProviderRecord
			ts  sql.NullTime
		)
		if err := rows.Scan(&rec.IndexID, &ts, &rec.ProviderName, &rec.ProviderType,
			&rec.OriginalPrice, &rec.EffectivePrice, &rec.DiscountRate,
			&rec.RelativeWeight, &rec.AbsoluteWeight, &rec.WeightedContribution); err != nil {
			return nil, fmt.Errorf("failed to scan provider row: %w", err)
		}
		if ts.Valid {
			rec.Timestamp = ts.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// providerRecords flattens the snapshot breakdown into table rows.
func providerRecords(indexID int64, snap *aggregator.Snapshot) []ProviderRecord {
	breakdown := snap.Breakdown()
	out := make([]ProviderRecord, 0, len(breakdown))
	for _, c := range breakdown {
		out = append(out, ProviderRecord{
			IndexID:              indexID,
			Timestamp:            snap.Timestamp,
			ProviderName:         c.Provider,
			ProviderType:         string(c.Category),
			OriginalPrice:        c.OriginalPrice,
			EffectivePrice:       c.EffectivePrice,
			DiscountRate:         c.DiscountRate,
			RelativeWeight:       c.Weight,
			AbsoluteWeight:       c.AbsoluteWeight(),
			WeightedContribution: c.Contribution,
		})
	}
	return out
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
