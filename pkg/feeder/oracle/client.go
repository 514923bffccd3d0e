package oracle

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/StrathCole/gpu-index/pkg/feeder"
	"github.com/StrathCole/gpu-index/pkg/feeder/tx"
)

const sinkName = "oracle"

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	RPCURL         string
	Address        common.Address
	ChainID        int64
	Key            *ecdsa.PrivateKey // nil for a read-only client
	GasLimit       uint64
	ReceiptTimeout time.Duration
	Logger         zerolog.Logger
}

// Client is a MultiAssetOracle binding over an Ethereum JSON-RPC endpoint.
type Client struct {
	eth         *ethclient.Client
	address     common.Address
	abi         abi.ABI
	contract    *bind.BoundContract
	broadcaster *tx.Broadcaster
	logger      zerolog.Logger
}

// Dial connects to the RPC endpoint and checks that it serves the configured chain.
func Dial(ctx context.Context, cfg ClientConfig) (*Client, error) {
	parsed, err := ParseABI()
	if err != nil {
		return nil, err
	}

	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, &feeder.ConnectivityError{Sink: sinkName, Op: "dial", Err: err}
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, &feeder.ConnectivityError{Sink: sinkName, Op: "chain id", Err: err}
	}
	if cfg.ChainID > 0 && chainID.Cmp(big.NewInt(cfg.ChainID)) != 0 {
		eth.Close()
		return nil, fmt.Errorf("%w: endpoint serves %s, configured %d", ErrChainIDMismatch, chainID, cfg.ChainID)
	}

	c := &Client{
		eth:      eth,
		address:  cfg.Address,
		abi:      parsed,
		contract: bind.NewBoundContract(cfg.Address, parsed, eth, eth, eth),
		logger:   cfg.Logger.With().Str("component", "oracle").Str("contract", cfg.Address.Hex()).Logger(),
	}

	if cfg.Key != nil {
		c.broadcaster, err = tx.NewBroadcaster(tx.BroadcasterConfig{
			Backend:        eth,
			Key:            cfg.Key,
			ChainID:        chainID.Int64(),
			GasLimit:       cfg.GasLimit,
			ReceiptTimeout: cfg.ReceiptTimeout,
			Logger:         cfg.Logger,
		})
		if err != nil {
			eth.Close()
			return nil, err
		}
	}

	c.logger.Info().Str("chain_id", chainID.String()).Bool("read_only", c.broadcaster == nil).Msg("Connected to oracle")
	return c, nil
}

// Close closes the RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Address returns the contract address.
func (c *Client) Address() common.Address {
	return c.address
}

// Sender returns the signing address, or the zero address for a read-only client.
func (c *Client) Sender() common.Address {
	if c.broadcaster == nil {
		return common.Address{}
	}
	return c.broadcaster.From()
}

// IsAssetRegistered calls isAssetRegistered(asset).
func (c *Client) IsAssetRegistered(ctx context.Context, asset common.Hash) (bool, error) {
	var registered bool
	if err := c.call(ctx, &registered, "isAssetRegistered", [32]byte(asset)); err != nil {
		return false, err
	}
	return registered, nil
}

// GetPriceData calls getPriceData(asset).
func (c *Client) GetPriceData(ctx context.Context, asset common.Hash) (PriceData, error) {
	var out struct {
		Price     *big.Int
		UpdatedAt *big.Int
	}
	if err := c.call(ctx, &out, "getPriceData", [32]byte(asset)); err != nil {
		return PriceData{}, err
	}
	return PriceData{Scaled: out.Price, UpdatedAt: unixTime(out.UpdatedAt)}, nil
}

// UpdatePrice submits updatePrice(asset, scaled) and returns the pending transaction.
func (c *Client) UpdatePrice(ctx context.Context, asset common.Hash, scaled *big.Int) (*types.Transaction, error) {
	if c.broadcaster == nil {
		return nil, ErrReadOnly
	}

	opts, err := c.broadcaster.TransactOpts(ctx)
	if err != nil {
		return nil, feeder.Connectivity(sinkName, "prepare tx", err)
	}

	signed, err := c.contract.Transact(opts, "updatePrice", [32]byte(asset), scaled)
	if err != nil {
		return nil, feeder.Connectivity(sinkName, "send tx", fmt.Errorf("failed to send updatePrice: %w", err))
	}

	c.logger.Info().
		Str("tx_hash", signed.Hash().Hex()).
		Uint64("nonce", signed.Nonce()).
		Str("scaled_price", scaled.String()).
		Msg("Submitted price update")
	return signed, nil
}

// WaitMined waits for the receipt of tx.
func (c *Client) WaitMined(ctx context.Context, t *types.Transaction) (*types.Receipt, error) {
	if c.broadcaster == nil {
		return nil, ErrReadOnly
	}
	return c.broadcaster.WaitMined(ctx, t)
}

func (c *Client) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	result, err := c.eth.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	}, nil) // nil = latest block
	if err != nil {
		return feeder.Connectivity(sinkName, method, fmt.Errorf("failed to call %s: %w", method, err))
	}

	if err := c.abi.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return nil
}
