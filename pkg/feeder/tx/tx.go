package tx

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog"
)

// Fee parameters for EIP-1559 transactions, in wei.
var (
	PriorityFee = big.NewInt(1_000_000_000) // 1 gwei
	MinMaxFee   = big.NewInt(2_000_000_000) // 2 gwei
)

// DefaultGasLimit covers a single oracle price update.
const DefaultGasLimit uint64 = 100_000

// Backend is the subset of an RPC client the broadcaster needs.
type Backend interface {
	bind.DeployBackend
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Broadcaster signs transactions for one account and waits for them to be mined.
type Broadcaster struct {
	backend        Backend
	key            *ecdsa.PrivateKey
	from           common.Address
	chainID        *big.Int
	gasLimit       uint64
	receiptTimeout time.Duration
	logger         zerolog.Logger
}

// BroadcasterConfig holds configuration for creating a Broadcaster.
type BroadcasterConfig struct {
	Backend        Backend
	Key            *ecdsa.PrivateKey
	ChainID        int64
	GasLimit       uint64        // 0 selects DefaultGasLimit
	ReceiptTimeout time.Duration // 0 waits for the caller's context only
	Logger         zerolog.Logger
}

// NewBroadcaster creates a new transaction broadcaster.
func NewBroadcaster(cfg BroadcasterConfig) (*Broadcaster, error) {
	if cfg.Key == nil {
		return nil, fmt.Errorf("%w: signing key is required", ErrInvalidParameter)
	}
	if cfg.ChainID <= 0 {
		return nil, fmt.Errorf("%w: chain id must be positive", ErrInvalidParameter)
	}
	if cfg.GasLimit == 0 {
		cfg.GasLimit = DefaultGasLimit
	}
	return &Broadcaster{
		backend:        cfg.Backend,
		key:            cfg.Key,
		from:           crypto.PubkeyToAddress(cfg.Key.PublicKey),
		chainID:        big.NewInt(cfg.ChainID),
		gasLimit:       cfg.GasLimit,
		receiptTimeout: cfg.ReceiptTimeout,
		logger:         cfg.Logger.With().Str("component", "tx").Logger(),
	}, nil
}

// From returns the signing address.
func (b *Broadcaster) From() common.Address {
	return b.from
}

// Fees returns the priority fee and fee cap for the given network gas price:
// a fixed 1 gwei tip and max(2*gasPrice, 2 gwei).
func Fees(gasPrice *big.Int) (tip, maxFee *big.Int) {
	tip = new(big.Int).Set(PriorityFee)
	maxFee = new(big.Int).Mul(gasPrice, big.NewInt(2))
	if maxFee.Cmp(MinMaxFee) < 0 {
		maxFee = new(big.Int).Set(MinMaxFee)
	}
	return tip, maxFee
}

// TransactOpts returns signing options with the pending nonce and EIP-1559
// fees filled in.
func (b *Broadcaster) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(b.key, b.chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	nonce, err := b.backend.PendingNonceAt(ctx, b.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := b.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	tip, maxFee := Fees(gasPrice)

	opts.Context = ctx
	opts.Nonce = new(big.Int).SetUint64(nonce)
	opts.GasLimit = b.gasLimit
	opts.GasTipCap = tip
	opts.GasFeeCap = maxFee

	b.logger.Debug().
		Str("from", b.from.Hex()).
		Uint64("nonce", nonce).
		Str("gas_price", gasPrice.String()).
		Str("max_fee", maxFee.String()).
		Uint64("gas_limit", b.gasLimit).
		Msg("Building transaction")

	return opts, nil
}

// WaitMined blocks until tx has a receipt and fails on a reverted status.
func (b *Broadcaster) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if b.receiptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.receiptTimeout)
		defer cancel()
	}

	start := time.Now()
	receipt, err := bind.WaitMined(ctx, b.backend, tx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %s", ErrReceiptTimeout, b.receiptTimeout, tx.Hash().Hex())
		}
		return nil, fmt.Errorf("failed waiting for %s: %w", tx.Hash().Hex(), err)
	}

	b.logger.Info().
		Str("tx_hash", tx.Hash().Hex()).
		Uint64("block", receipt.BlockNumber.Uint64()).
		Uint64("gas_used", receipt.GasUsed).
		Dur("elapsed", time.Since(start)).
		Msg("Transaction mined")

	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %d", ErrTransactionReverted, tx.Hash().Hex(), receipt.BlockNumber.Uint64())
	}
	return receipt, nil
}
