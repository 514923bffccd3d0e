package updater

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

// DefaultAuditLogSize is the number of entries retained in the audit log.
const DefaultAuditLogSize = 100

// Submission statuses recorded in the audit log.
const (
	StatusConfirmed = "confirmed"
	StatusPending   = "pending"
	StatusReverted  = "reverted"
)

// AuditEntry records one oracle submission.
type AuditEntry struct {
	Timestamp        string   `json:"timestamp"`
	Asset            string   `json:"asset"`
	AssetID          string   `json:"asset_id"`
	IndexPriceUSD    float64  `json:"index_price_usd"`
	IndexPriceScaled *big.Int `json:"index_price_scaled"`
	TxHash           string   `json:"tx_hash"`
	BlockNumber      uint64   `json:"block_number"`
	ContractAddress  string   `json:"contract_address"`
	Network          string   `json:"network"`
	UpdaterAddress   string   `json:"updater_address"`
	Status           string   `json:"status"`
	Verified         bool     `json:"verified"`
}

// AuditLog is a capped JSON array of submissions, oldest first.
type AuditLog struct {
	path   string
	size   int
	logger zerolog.Logger
	mu     sync.Mutex
}

// NewAuditLog creates an audit log at path retaining size entries.
func NewAuditLog(path string, size int, logger zerolog.Logger) *AuditLog {
	if size <= 0 {
		size = DefaultAuditLogSize
	}
	return &AuditLog{
		path:   path,
		size:   size,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Entries returns the stored entries. A missing file yields none.
func (a *AuditLog) Entries() ([]AuditEntry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.read()
}

// Append adds entry and evicts the oldest entries beyond the cap. An
// unreadable existing log is replaced.
func (a *AuditLog) Append(entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries, err := a.read()
	if err != nil {
		a.logger.Warn().Err(err).Str("path", a.path).Msg("Existing audit log unreadable, starting a new one")
		entries = nil
	}

	entries = append(entries, entry)
	if len(entries) > a.size {
		entries = entries[len(entries)-a.size:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode audit log: %w", err)
	}
	if err := writeFileAtomic(a.path, data); err != nil {
		return err
	}

	a.logger.Info().
		Str("path", a.path).
		Int("entries", len(entries)).
		Int("cap", a.size).
		Msg("Audit entry written")
	return nil
}

func (a *AuditLog) read() ([]AuditEntry, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	var entries []AuditEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit log: %w", err)
	}
	return entries, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	return os.Rename(tmpName, path)
}
