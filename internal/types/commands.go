package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Command types accepted by the queue. Payloads are a tagged union keyed by
// type and validated at enqueue time.
const (
	CmdOrderNew    = "order.new"
	CmdOrderTest   = "order.test"
	CmdStatePause  = "state.pause"
	CmdStateResume = "state.resume"
	CmdModeSet     = "mode.set"
	CmdSvcStart    = "svc.start"
	CmdSvcStop     = "svc.stop"
	CmdSvcRestart  = "svc.restart"
)

// Trading modes.
const (
	ModeMock = "mock"
	ModeReal = "real"
)

var (
	ErrUnknownCommand = errors.New("unknown command type")
	ErrUnknownService = errors.New("unknown service name")
)

// KnownServices are the processes the supervisor manages. config.Load
// replaces it with the configured service set so validation and supervision
// agree.
var KnownServices = []string{"server", "worker", "slack", "adapter"}

// OrderPayload describes order.new and order.test commands.
type OrderPayload struct {
	Symbol    string  `json:"symbol"`
	Side      string  `json:"side"`       // BUY or SELL
	OrderType string  `json:"order_type"` // MARKET or LIMIT
	Quantity  float64 `json:"quantity"`
	Price     float64 `json:"price"`
}

// ModePayload describes mode.set commands.
type ModePayload struct {
	Mode string `json:"mode"`
}

// ServicePayload describes svc.start, svc.stop and svc.restart commands.
type ServicePayload struct {
	Service string `json:"service"`
}

// ValidatePayload checks a payload against the schema for its command type.
// Commands with invalid payloads are rejected at submission and never enter
// the queue.
func ValidatePayload(cmdType string, payload map[string]interface{}) error {
	switch cmdType {
	case CmdOrderNew, CmdOrderTest:
		order, err := decodeOrder(payload)
		if err != nil {
			return err
		}
		return order.validate()
	case CmdStatePause, CmdStateResume:
		return nil
	case CmdModeSet:
		mode, _ := payload["mode"].(string)
		if mode != ModeMock && mode != ModeReal {
			return fmt.Errorf("mode must be %q or %q", ModeMock, ModeReal)
		}
		return nil
	case CmdSvcStart, CmdSvcStop, CmdSvcRestart:
		name, _ := payload["service"].(string)
		return validateService(name)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmdType)
	}
}

// IsSensitive reports whether a command requires an OK approval before the
// executor may claim it. Placing a live order is always sensitive; switching
// mode is sensitive only when the target is real.
func IsSensitive(cmdType string, payload string) bool {
	switch cmdType {
	case CmdOrderNew:
		return true
	case CmdModeSet:
		var mp ModePayload
		if err := json.Unmarshal([]byte(payload), &mp); err != nil {
			return true
		}
		return mp.Mode == ModeReal
	default:
		return false
	}
}

// DecodeOrder parses a stored order payload.
func DecodeOrder(payload string) (OrderPayload, error) {
	var order OrderPayload
	if err := json.Unmarshal([]byte(payload), &order); err != nil {
		return order, fmt.Errorf("invalid order payload: %w", err)
	}
	return order, order.validate()
}

// DecodeMode parses a stored mode.set payload.
func DecodeMode(payload string) (ModePayload, error) {
	var mp ModePayload
	if err := json.Unmarshal([]byte(payload), &mp); err != nil {
		return mp, fmt.Errorf("invalid mode payload: %w", err)
	}
	if mp.Mode != ModeMock && mp.Mode != ModeReal {
		return mp, fmt.Errorf("mode must be %q or %q", ModeMock, ModeReal)
	}
	return mp, nil
}

// DecodeService parses a stored svc.* payload.
func DecodeService(payload string) (ServicePayload, error) {
	var sp ServicePayload
	if err := json.Unmarshal([]byte(payload), &sp); err != nil {
		return sp, fmt.Errorf("invalid service payload: %w", err)
	}
	return sp, validateService(sp.Service)
}

func decodeOrder(payload map[string]interface{}) (OrderPayload, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return OrderPayload{}, err
	}
	var order OrderPayload
	if err := json.Unmarshal(raw, &order); err != nil {
		return order, fmt.Errorf("invalid order payload: %w", err)
	}
	return order, nil
}

func (o OrderPayload) validate() error {
	if o.Symbol == "" {
		return errors.New("order symbol is required")
	}
	side := strings.ToUpper(o.Side)
	if side != "BUY" && side != "SELL" {
		return errors.New("order side must be BUY or SELL")
	}
	if o.OrderType != "" && o.OrderType != "MARKET" && o.OrderType != "LIMIT" {
		return errors.New("order type must be MARKET or LIMIT")
	}
	if o.Quantity <= 0 {
		return errors.New("order quantity must be positive")
	}
	if o.OrderType == "LIMIT" && o.Price <= 0 {
		return errors.New("limit orders require a positive price")
	}
	return nil
}

func validateService(name string) error {
	for _, svc := range KnownServices {
		if svc == name {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownService, name)
}
