package types

// Signal is the three-way output of the moving-average comparison
type Signal string

// Constants for signal types
const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

func (s Signal) String() string {
	return string(s)
}
