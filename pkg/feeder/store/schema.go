package store

// Postgres schema. It matches the hosted tables, so running it against an
// existing database is a no-op.
var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS t4_index_prices (
		id BIGSERIAL PRIMARY KEY,
		timestamp TIMESTAMPTZ NOT NULL,
		index_price DOUBLE PRECISION NOT NULL,
		hyperscaler_component DOUBLE PRECISION NOT NULL,
		neocloud_component DOUBLE PRECISION NOT NULL,
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_t4_index_prices_created_at ON t4_index_prices (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS t4_provider_prices (
		id BIGSERIAL PRIMARY KEY,
		index_id BIGINT NOT NULL REFERENCES t4_index_prices(id) ON DELETE CASCADE,
		timestamp TIMESTAMPTZ NOT NULL,
		provider_name TEXT NOT NULL,
		provider_type TEXT NOT NULL CHECK (provider_type IN ('hyperscaler', 'neocloud')),
		original_price DOUBLE PRECISION NOT NULL,
		effective_price DOUBLE PRECISION NOT NULL,
		discount_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
		relative_weight DOUBLE PRECISION NOT NULL,
		absolute_weight DOUBLE PRECISION NOT NULL,
		weighted_contribution DOUBLE PRECISION NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_t4_provider_prices_index_id ON t4_provider_prices (index_id)`,
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS t4_index_prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		index_price REAL NOT NULL,
		hyperscaler_component REAL NOT NULL,
		neocloud_component REAL NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_t4_index_prices_created_at ON t4_index_prices (created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS t4_provider_prices (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		index_id INTEGER NOT NULL REFERENCES t4_index_prices(id) ON DELETE CASCADE,
		timestamp DATETIME NOT NULL,
		provider_name TEXT NOT NULL,
		provider_type TEXT NOT NULL CHECK (provider_type IN ('hyperscaler', 'neocloud')),
		original_price REAL NOT NULL,
		effective_price REAL NOT NULL,
		discount_rate REAL NOT NULL DEFAULT 0,
		relative_weight REAL NOT NULL,
		absolute_weight REAL NOT NULL,
		weighted_contribution REAL NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_t4_provider_prices_index_id ON t4_provider_prices (index_id)`,
}

func schemaFor(driver string) []string {
	if driver == DriverPostgres {
		return postgresSchema
	}
	return sqliteSchema
}
