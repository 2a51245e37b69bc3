package types

import (
	"errors"
	"fmt"
)

// Gateway errors
var (
	ErrNotFound          = errors.New("no market data for token")
	ErrMalformedResponse = errors.New("malformed gateway response")
	ErrRejected          = errors.New("request rejected by gateway")
)

// Gateway names used in GatewayError and metrics labels.
const (
	GatewayMarket    = "market"
	GatewayTrade     = "trade"
	GatewayFee       = "fee"
	GatewayProvision = "provision"
)

// GatewayError wraps a failure from an external collaborator.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// NewGatewayError wraps err, or returns nil if err is nil.
func NewGatewayError(gateway, op string, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Gateway: gateway, Op: op, Err: err}
}

// GatewayOf returns the gateway name of a wrapped GatewayError, or "".
func GatewayOf(err error) string {
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Gateway
	}
	return ""
}
