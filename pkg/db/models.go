package db

// Candle is a stored OHLCV row; OpenTime is Unix milliseconds.
type Candle struct {
	Pair      string
	Timeframe string
	OpenTime  int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Run records one batch analysis of a candle table.
type Run struct {
	ID        string
	Pair      string
	Timeframe string
	Strategy  string
	Rows      int
	Entries   int
	Exits     int
}

// Signal is one row on which the entry or exit rule fired. RunID is empty
// for signals produced by the live engine.
type Signal struct {
	ID        int64    `json:"id"`
	RunID     string   `json:"run_id,omitempty"`
	Pair      string   `json:"pair"`
	Timeframe string   `json:"timeframe"`
	OpenTime  int64    `json:"open_time"`
	Close     float64  `json:"close"`
	RSI       *float64 `json:"rsi"`
	Enter     bool     `json:"enter"`
	Exit      bool     `json:"exit"`
}
