package core

// PositionMode selects how the position tracker infers deltas.
type PositionMode string

const (
	// PositionByOrder infers deltas from shrinking resting-order balances.
	PositionByOrder PositionMode = "by_order"
	// PositionByTrade infers deltas directly from fill volumes.
	PositionByTrade PositionMode = "by_trade"
)

// Settings holds the host-configurable analytics toggles. The Use* flags
// gate which market-data classes feed unrealized PnL.
type Settings struct {
	UseTicks     bool         `yaml:"use_ticks" json:"useTicks"`
	UseOrderLog  bool         `yaml:"use_order_log" json:"useOrderLog"`
	UseOrderBook bool         `yaml:"use_order_book" json:"useOrderBook"`
	UseLevel1    bool         `yaml:"use_level1" json:"useLevel1"`
	UseCandles   bool         `yaml:"use_candles" json:"useCandles"`
	PositionMode PositionMode `yaml:"position_mode" json:"positionMode"`
}

// DefaultSettings mirrors the defaults of the original engine: tick and
// candle feeds on, order-log, order-book and level-1 off, order-based
// position accounting.
func DefaultSettings() Settings {
	return Settings{
		UseTicks:     true,
		UseOrderLog:  false,
		UseOrderBook: false,
		UseLevel1:    false,
		UseCandles:   true,
		PositionMode: PositionByOrder,
	}
}
