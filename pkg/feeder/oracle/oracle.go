package oracle

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// PriceDecimals is the fixed-point scale of on-chain prices.
const PriceDecimals = 18

// DefaultAsset is the symbol of the T4 hourly rental price.
const DefaultAsset = "T4_HOURLY"

// MultiAssetOracle ABI (only the members the updater uses).
const multiAssetOracleABIJSON = `[
	{
		"type": "function",
		"name": "updatePrice",
		"inputs": [
			{"name": "assetId", "type": "bytes32"},
			{"name": "newPrice", "type": "uint256"}
		],
		"outputs": [],
		"stateMutability": "nonpayable"
	},
	{
		"type": "function",
		"name": "getPrice",
		"inputs": [{"name": "assetId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "uint256"}],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "getPriceData",
		"inputs": [{"name": "assetId", "type": "bytes32"}],
		"outputs": [
			{"name": "price", "type": "uint256"},
			{"name": "updatedAt", "type": "uint256"}
		],
		"stateMutability": "view"
	},
	{
		"type": "function",
		"name": "isAssetRegistered",
		"inputs": [{"name": "assetId", "type": "bytes32"}],
		"outputs": [{"name": "", "type": "bool"}],
		"stateMutability": "view"
	},
	{
		"type": "event",
		"name": "PriceUpdated",
		"anonymous": false,
		"inputs": [
			{"name": "assetId", "type": "bytes32", "indexed": true},
			{"name": "price", "type": "uint256", "indexed": false},
			{"name": "timestamp", "type": "uint256", "indexed": false}
		]
	}
]`

// ParseABI returns the parsed MultiAssetOracle ABI.
func ParseABI() (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(multiAssetOracleABIJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse oracle ABI: %w", err)
	}
	return parsed, nil
}

// AssetID returns keccak256 of the asset symbol.
func AssetID(symbol string) common.Hash {
	return crypto.Keccak256Hash([]byte(symbol))
}

// EncodePrice converts a USD price to its on-chain integer, floor(price * 10^18).
// The decimal expansion of the float is used, so 0.4512 encodes to exactly
// 451200000000000000.
func EncodePrice(price float64) (*big.Int, error) {
	if price < 0 {
		return nil, fmt.Errorf("%w: %v", ErrNegativePrice, price)
	}
	return decimal.NewFromFloat(price).Shift(PriceDecimals).Floor().BigInt(), nil
}

// DecodePrice converts an on-chain integer back to a USD price.
func DecodePrice(scaled *big.Int) float64 {
	if scaled == nil {
		return 0
	}
	return decimal.NewFromBigInt(scaled, -PriceDecimals).InexactFloat64()
}

// PriceData is the stored price of one asset.
type PriceData struct {
	Scaled    *big.Int
	UpdatedAt time.Time // zero when never updated
}

// Price returns the decoded USD price.
func (p PriceData) Price() float64 {
	return DecodePrice(p.Scaled)
}

// IsZero reports whether no price has been stored.
func (p PriceData) IsZero() bool {
	return p.Scaled == nil || p.Scaled.Sign() == 0
}

// LastUpdated formats UpdatedAt for display.
func (p PriceData) LastUpdated() string {
	if p.UpdatedAt.IsZero() {
		return "never"
	}
	return p.UpdatedAt.UTC().Format("2006-01-02 15:04:05 UTC")
}

// PriceUpdated is the decoded PriceUpdated event.
type PriceUpdated struct {
	AssetID   common.Hash
	Price     *big.Int
	Timestamp time.Time
}

// FindPriceUpdated returns the first PriceUpdated event for asset in receipt.
func FindPriceUpdated(parsed abi.ABI, receipt *types.Receipt, asset common.Hash) (*PriceUpdated, bool) {
	if receipt == nil {
		return nil, false
	}
	event, ok := parsed.Events["PriceUpdated"]
	if !ok {
		return nil, false
	}

	for _, l := range receipt.Logs {
		if l == nil || len(l.Topics) < 2 || l.Topics[0] != event.ID || l.Topics[1] != asset {
			continue
		}
		var data struct {
			Price     *big.Int
			Timestamp *big.Int
		}
		if err := parsed.UnpackIntoInterface(&data, "PriceUpdated", l.Data); err != nil {
			continue
		}
		return &PriceUpdated{
			AssetID:   asset,
			Price:     data.Price,
			Timestamp: unixTime(data.Timestamp),
		}, true
	}
	return nil, false
}

func unixTime(v *big.Int) time.Time {
	if v == nil || v.Sign() == 0 || !v.IsInt64() {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}
