package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePayloadOrders(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]interface{}
		wantErr bool
	}{
		{
			name: "market order",
			payload: map[string]interface{}{
				"symbol": "AAPL", "side": "BUY", "quantity": 10.0,
			},
		},
		{
			name: "limit order",
			payload: map[string]interface{}{
				"symbol": "AAPL", "side": "SELL", "order_type": "LIMIT",
				"quantity": 1.0, "price": 99.5,
			},
		},
		{
			name:    "missing symbol",
			payload: map[string]interface{}{"side": "BUY", "quantity": 1.0},
			wantErr: true,
		},
		{
			name: "bad side",
			payload: map[string]interface{}{
				"symbol": "AAPL", "side": "HOLD", "quantity": 1.0,
			},
			wantErr: true,
		},
		{
			name: "zero quantity",
			payload: map[string]interface{}{
				"symbol": "AAPL", "side": "BUY", "quantity": 0.0,
			},
			wantErr: true,
		},
		{
			name: "limit without price",
			payload: map[string]interface{}{
				"symbol": "AAPL", "side": "BUY", "order_type": "LIMIT", "quantity": 1.0,
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayload(CmdOrderTest, tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePayloadModeAndService(t *testing.T) {
	assert.NoError(t, ValidatePayload(CmdModeSet, map[string]interface{}{"mode": "mock"}))
	assert.NoError(t, ValidatePayload(CmdModeSet, map[string]interface{}{"mode": "real"}))
	assert.Error(t, ValidatePayload(CmdModeSet, map[string]interface{}{"mode": "paper"}))
	assert.Error(t, ValidatePayload(CmdModeSet, map[string]interface{}{}))

	assert.NoError(t, ValidatePayload(CmdSvcStart, map[string]interface{}{"service": "worker"}))
	err := ValidatePayload(CmdSvcRestart, map[string]interface{}{"service": "database"})
	assert.ErrorIs(t, err, ErrUnknownService)

	assert.NoError(t, ValidatePayload(CmdStatePause, map[string]interface{}{}))
	assert.NoError(t, ValidatePayload(CmdStateResume, map[string]interface{}{}))
}

func TestValidatePayloadUnknownType(t *testing.T) {
	err := ValidatePayload("order.cancel", map[string]interface{}{})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestIsSensitive(t *testing.T) {
	assert.True(t, IsSensitive(CmdOrderNew, `{"symbol":"AAPL"}`))
	assert.False(t, IsSensitive(CmdOrderTest, `{"symbol":"AAPL"}`))
	assert.True(t, IsSensitive(CmdModeSet, `{"mode":"real"}`))
	assert.False(t, IsSensitive(CmdModeSet, `{"mode":"mock"}`))
	assert.True(t, IsSensitive(CmdModeSet, `not json`), "unreadable payloads default to sensitive")
	assert.False(t, IsSensitive(CmdStatePause, `{}`))
}

func TestDecodeOrder(t *testing.T) {
	order, err := DecodeOrder(`{"symbol":"MSFT","side":"SELL","quantity":4}`)
	require.NoError(t, err)
	assert.Equal(t, "MSFT", order.Symbol)
	assert.Equal(t, 4.0, order.Quantity)

	_, err = DecodeOrder(`{"symbol":"MSFT"}`)
	assert.Error(t, err)

	_, err = DecodeOrder(`{`)
	assert.Error(t, err)
}

func TestDecodeMode(t *testing.T) {
	mp, err := DecodeMode(`{"mode":"real"}`)
	require.NoError(t, err)
	assert.Equal(t, ModeReal, mp.Mode)

	_, err = DecodeMode(`{"mode":"paper"}`)
	assert.Error(t, err)
}

func TestDecodeService(t *testing.T) {
	sp, err := DecodeService(`{"service":"slack"}`)
	require.NoError(t, err)
	assert.Equal(t, "slack", sp.Service)

	_, err = DecodeService(`{"service":"nginx"}`)
	assert.ErrorIs(t, err, ErrUnknownService)
}
