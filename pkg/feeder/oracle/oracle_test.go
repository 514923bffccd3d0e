package oracle

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssetID(t *testing.T) {
	assert.Equal(t,
		"0x3579a517d9a62c57f1158cfdc01603549103ed87556523a42712c9fda4f8439e",
		AssetID(DefaultAsset).Hex())
}

func TestEncodePrice(t *testing.T) {
	tests := []struct {
		name   string
		price  float64
		scaled string
	}{
		{name: "typical index", price: 0.4512, scaled: "451200000000000000"},
		{name: "golden index", price: 0.46554000000000006, scaled: "465540000000000060"},
		{name: "whole dollars", price: 2, scaled: "2000000000000000000"},
		{name: "zero", price: 0, scaled: "0"},
		{name: "below resolution floors", price: 1e-19, scaled: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodePrice(tt.price)
			require.NoError(t, err)
			assert.Equal(t, tt.scaled, got.String())
		})
	}
}

func TestEncodePrice_Negative(t *testing.T) {
	_, err := EncodePrice(-0.1)
	assert.ErrorIs(t, err, ErrNegativePrice)
}

func TestDecodePrice(t *testing.T) {
	scaled, err := EncodePrice(0.4512)
	require.NoError(t, err)

	assert.Equal(t, 0.4512, DecodePrice(scaled))
	assert.Equal(t, 0.0, DecodePrice(nil))
}

func TestPriceData(t *testing.T) {
	var empty PriceData
	assert.True(t, empty.IsZero())
	assert.Equal(t, "never", empty.LastUpdated())

	pd := PriceData{
		Scaled:    big.NewInt(450_000_000_000_000_000),
		UpdatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	assert.False(t, pd.IsZero())
	assert.Equal(t, 0.45, pd.Price())
	assert.Equal(t, "2025-03-01 12:00:00 UTC", pd.LastUpdated())
}

func TestParseABI(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	for _, method := range []string{"updatePrice", "getPrice", "getPriceData", "isAssetRegistered"} {
		assert.Contains(t, parsed.Methods, method)
	}
	assert.Contains(t, parsed.Events, "PriceUpdated")
}

func TestFindPriceUpdated(t *testing.T) {
	parsed, err := ParseABI()
	require.NoError(t, err)

	asset := AssetID(DefaultAsset)
	event := parsed.Events["PriceUpdated"]
	data, err := event.Inputs.NonIndexed().Pack(big.NewInt(451_200_000_000_000_000), big.NewInt(1_740_830_400))
	require.NoError(t, err)

	receipt := &types.Receipt{Logs: []*types.Log{
		{Topics: []common.Hash{common.HexToHash("0x01")}},
		{Topics: []common.Hash{event.ID, AssetID("H100_HOURLY")}, Data: data},
		{Topics: []common.Hash{event.ID, asset}, Data: data},
	}}

	got, ok := FindPriceUpdated(parsed, receipt, asset)
	require.True(t, ok)
	assert.Equal(t, asset, got.AssetID)
	assert.Equal(t, "451200000000000000", got.Price.String())
	assert.Equal(t, time.Unix(1_740_830_400, 0).UTC(), got.Timestamp)

	_, ok = FindPriceUpdated(parsed, &types.Receipt{}, asset)
	assert.False(t, ok)
	_, ok = FindPriceUpdated(parsed, nil, asset)
	assert.False(t, ok)
}
