package market

// Kline is one Binance candlestick. Closed is false while the interval is
// still forming; REST klines are reported closed once CloseTime has passed.
type Kline struct {
	Symbol              string  // trading pair symbol
	Interval            string  // e.g. "5m"
	OpenTime            int64   // 0: Open time (ms)
	Open                float64 // 1: Open price
	High                float64 // 2: High price
	Low                 float64 // 3: Low price
	Close               float64 // 4: Close price
	Volume              float64 // 5: Base asset volume
	CloseTime           int64   // 6: Close time (ms)
	QuoteVolume         float64 // 7: Quote asset volume
	NumberOfTrades      int     // 8: Number of trades
	TakerBuyBaseVolume  float64 // 9: Taker buy base asset volume
	TakerBuyQuoteVolume float64 // 10: Taker buy quote asset volume
	Closed              bool
}
