package updater

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/feeder"
	"github.com/StrathCole/gpu-index/pkg/feeder/gate"
	"github.com/StrathCole/gpu-index/pkg/feeder/oracle"
	"github.com/StrathCole/gpu-index/pkg/feeder/tx"
	"github.com/StrathCole/gpu-index/pkg/metrics"
)

const sinkName = "oracle"

// DefaultMaxSanePrice is the USD/hr above which a push logs a warning.
const DefaultMaxSanePrice = 10.0

// State represents the current step of a push.
type State string

const (
	StateIdle              State = "idle"
	StateCheckRegistration State = "check_registration"
	StateReadCurrent       State = "read_current"
	StateSubmit            State = "submit"
	StateWaitReceipt       State = "wait_receipt"
	StateVerify            State = "verify"
	StateDone              State = "done"
	StateError             State = "error"
)

// Contract is the MultiAssetOracle surface the updater drives.
type Contract interface {
	Address() common.Address
	Sender() common.Address
	IsAssetRegistered(ctx context.Context, asset common.Hash) (bool, error)
	GetPriceData(ctx context.Context, asset common.Hash) (oracle.PriceData, error)
	UpdatePrice(ctx context.Context, asset common.Hash, scaled *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, t *types.Transaction) (*types.Receipt, error)
}

// Config contains updater configuration.
type Config struct {
	Asset        string
	Network      string
	MaxSanePrice float64
	ReadOnly     bool
}

// Result describes a completed push.
type Result struct {
	Price       float64
	Scaled      *big.Int
	Previous    oracle.PriceData
	TxHash      common.Hash
	BlockNumber uint64
	GasUsed     uint64
	Verified    bool
	OnChain     *big.Int
}

// Updater pushes one price per run to the oracle.
type Updater struct {
	contract Contract
	gate     *gate.Gate
	audit    *AuditLog
	abi      abi.ABI
	asset    string
	assetID  common.Hash
	network  string
	maxSane  float64
	readOnly bool
	state    State
	now      func() time.Time
	logger   zerolog.Logger
}

// New creates an updater. A nil gate skips the drift check; non-positive
// prices are always refused. A nil audit log disables auditing.
func New(cfg Config, contract Contract, g *gate.Gate, audit *AuditLog, logger zerolog.Logger) (*Updater, error) {
	parsed, err := oracle.ParseABI()
	if err != nil {
		return nil, err
	}
	if cfg.Asset == "" {
		cfg.Asset = oracle.DefaultAsset
	}
	if cfg.MaxSanePrice <= 0 {
		cfg.MaxSanePrice = DefaultMaxSanePrice
	}

	assetID := oracle.AssetID(cfg.Asset)
	return &Updater{
		contract: contract,
		gate:     g,
		audit:    audit,
		abi:      parsed,
		asset:    cfg.Asset,
		assetID:  assetID,
		network:  cfg.Network,
		maxSane:  cfg.MaxSanePrice,
		readOnly: cfg.ReadOnly,
		state:    StateIdle,
		now:      time.Now,
		logger: logger.With().
			Str("component", "updater").
			Str("asset", cfg.Asset).
			Str("asset_id", assetID.Hex()).
			Logger(),
	}, nil
}

// State returns the current push step.
func (u *Updater) State() State {
	return u.state
}

// AssetID returns the keccak256 id of the configured asset.
func (u *Updater) AssetID() common.Hash {
	return u.assetID
}

// Read returns the current on-chain price of the asset. The asset must be
// registered, as for Push.
func (u *Updater) Read(ctx context.Context) (oracle.PriceData, error) {
	if err := u.checkRegistration(ctx); err != nil {
		u.state = StateError
		return oracle.PriceData{}, err
	}

	u.state = StateReadCurrent
	pd, err := u.contract.GetPriceData(ctx, u.assetID)
	if err != nil {
		u.state = StateError
		return oracle.PriceData{}, err
	}
	u.state = StateDone
	u.logger.Info().
		Float64("price", pd.Price()).
		Str("raw", scaledString(pd.Scaled)).
		Str("last_updated", pd.LastUpdated()).
		Msg("Current on-chain price")
	return pd, nil
}

// Push submits price and verifies it by reading it back. A readback that
// differs returns the result together with *VerificationMismatchError.
func (u *Updater) Push(ctx context.Context, price float64) (*Result, error) {
	if u.readOnly {
		return nil, ErrReadOnly
	}

	res, err := u.push(ctx, price)
	if err != nil {
		var mismatch *VerificationMismatchError
		if errors.As(err, &mismatch) {
			u.state = StateDone
		} else {
			u.state = StateError
		}
		return res, err
	}
	u.state = StateDone
	return res, nil
}

func (u *Updater) checkRegistration(ctx context.Context) error {
	u.state = StateCheckRegistration
	registered, err := u.contract.IsAssetRegistered(ctx, u.assetID)
	if err != nil {
		return fmt.Errorf("failed to check asset registration: %w", err)
	}
	if !registered {
		return fmt.Errorf("%w: %s (%s)", ErrAssetNotRegistered, u.asset, u.assetID.Hex())
	}
	return nil
}

func (u *Updater) push(ctx context.Context, price float64) (*Result, error) {
	if err := u.checkRegistration(ctx); err != nil {
		return nil, err
	}

	u.state = StateReadCurrent
	current, err := u.contract.GetPriceData(ctx, u.assetID)
	if err != nil {
		return nil, fmt.Errorf("failed to read current price: %w", err)
	}

	if err := u.check(price, current); err != nil {
		return nil, err
	}

	scaled, err := oracle.EncodePrice(price)
	if err != nil {
		return nil, err
	}

	res := &Result{Price: price, Scaled: scaled, Previous: current}

	u.state = StateSubmit
	start := time.Now()
	signed, err := u.contract.UpdatePrice(ctx, u.assetID, scaled)
	if err != nil {
		metrics.RecordSinkWrite(sinkName, err)
		return nil, err
	}
	res.TxHash = signed.Hash()

	u.state = StateWaitReceipt
	receipt, err := u.contract.WaitMined(ctx, signed)
	metrics.RecordOracleTx(time.Since(start))
	if receipt != nil && receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
		res.GasUsed = receipt.GasUsed
	}
	if err != nil {
		metrics.RecordSinkWrite(sinkName, err)
		status := StatusPending
		if errors.Is(err, tx.ErrTransactionReverted) {
			status = StatusReverted
		}
		u.record(res, status)
		if status == StatusPending {
			return res, &feeder.ConnectivityError{Sink: sinkName, Op: "wait receipt", Err: err}
		}
		return res, err
	}
	metrics.RecordSinkWrite(sinkName, nil)

	u.logger.Info().
		Str("tx_hash", res.TxHash.Hex()).
		Uint64("block", res.BlockNumber).
		Uint64("gas_used", res.GasUsed).
		Msg("Transaction confirmed")

	if ev, ok := oracle.FindPriceUpdated(u.abi, receipt, u.assetID); ok {
		u.logger.Debug().
			Str("event_price", ev.Price.String()).
			Time("event_timestamp", ev.Timestamp).
			Msg("PriceUpdated emitted")
	}

	u.state = StateVerify
	verifyErr := u.verify(ctx, res)
	u.record(res, StatusConfirmed)
	return res, verifyErr
}

// check applies the positivity and drift rules against the on-chain value.
// An empty slot on chain counts as the first publication.
func (u *Updater) check(price float64, current oracle.PriceData) error {
	var previous *float64
	if !current.IsZero() {
		p := current.Price()
		previous = &p
		change := (price - p) / p * 100
		u.logger.Info().
			Float64("current", p).
			Float64("new", price).
			Float64("change_pct", change).
			Msg("Preparing price update")
	}

	if u.gate != nil {
		if _, err := u.gate.Accept(price, previous); err != nil {
			return err
		}
	} else if price <= 0 {
		return &gate.ValidationError{Price: price, Previous: previous, Reason: gate.ErrNonPositive}
	}

	if price > u.maxSane {
		u.logger.Warn().
			Float64("price", price).
			Float64("threshold", u.maxSane).
			Msg("Price seems high for a T4 GPU hour, expected range is $0.10-$2.00, proceeding anyway")
	}
	return nil
}

func (u *Updater) verify(ctx context.Context, res *Result) error {
	latest, err := u.contract.GetPriceData(ctx, u.assetID)
	if err != nil {
		metrics.RecordVerification(false)
		u.logger.Warn().Err(err).Msg("On-chain readback failed")
		return &VerificationMismatchError{Expected: res.Scaled, Err: err}
	}

	res.OnChain = latest.Scaled
	if latest.Scaled != nil && latest.Scaled.Cmp(res.Scaled) == 0 {
		res.Verified = true
		metrics.RecordVerification(true)
		u.logger.Info().Float64("price", latest.Price()).Msg("On-chain price verified")
		return nil
	}

	metrics.RecordVerification(false)
	u.logger.Warn().
		Str("expected", res.Scaled.String()).
		Str("got", scaledString(latest.Scaled)).
		Float64("expected_usd", res.Price).
		Float64("got_usd", latest.Price()).
		Msg("On-chain price mismatch")
	return &VerificationMismatchError{Expected: res.Scaled, Got: latest.Scaled}
}

func (u *Updater) record(res *Result, status string) {
	if u.audit == nil {
		return
	}
	entry := AuditEntry{
		Timestamp:        u.now().UTC().Format(time.RFC3339Nano),
		Asset:            u.asset,
		AssetID:          u.assetID.Hex(),
		IndexPriceUSD:    res.Price,
		IndexPriceScaled: res.Scaled,
		TxHash:           res.TxHash.Hex(),
		BlockNumber:      res.BlockNumber,
		ContractAddress:  u.contract.Address().Hex(),
		Network:          u.network,
		UpdaterAddress:   u.contract.Sender().Hex(),
		Status:           status,
		Verified:         res.Verified,
	}
	if err := u.audit.Append(entry); err != nil {
		u.logger.Error().Err(err).Msg("Failed to write audit log")
	}
}

func scaledString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
