package orchestrator

import "context"

// PositionSizer computes the quantity proposed to the risk sentinel.
// TODO: add a risk-per-trade sizer once portfolio equity tracking is
// reliable enough to size against.
type PositionSizer interface {
	Size(ctx context.Context, symbol string, entryPrice float64) float64
}

// FixedSizer proposes a constant micro quantity
type FixedSizer struct {
	Quantity float64
}

// Size returns the fixed quantity regardless of symbol or price
func (s FixedSizer) Size(ctx context.Context, symbol string, entryPrice float64) float64 {
	return s.Quantity
}
