package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// StreamClient manages lightweight streaming from Binance public websockets.
type StreamClient struct {
	StreamURL string
	Logger    zerolog.Logger
	dialer    *websocket.Dialer
}

// NewStreamClient builds a websocket client; testnet toggles the host.
func NewStreamClient(testnet bool, logger zerolog.Logger) *StreamClient {
	host := "stream.binance.com:9443"
	if testnet {
		host = "testnet.binance.vision"
	}
	return &StreamClient{
		StreamURL: (&url.URL{Scheme: "wss", Host: host, Path: "/ws"}).String(),
		Logger:    logger,
		dialer:    websocket.DefaultDialer,
	}
}

// SubscribeKlines listens to the kline stream of symbol and pushes parsed
// klines into a channel. Every update of the forming candle is delivered;
// the final one carries Closed. It returns the channel and a stop function.
func (c *StreamClient) SubscribeKlines(ctx context.Context, symbol, interval string) (<-chan Kline, func(), error) {
	// Binance requires lowercase symbols for WebSocket streams
	stream := fmt.Sprintf("%s@kline_%s", strings.ToLower(symbol), interval)
	u := fmt.Sprintf("%s/%s", c.StreamURL, stream)
	log := c.Logger.With().Str("stream", stream).Logger()

	conn, _, err := c.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("dial binance ws: %w", err)
	}

	out := make(chan Kline, 100)
	var once sync.Once
	stop := func() {
		once.Do(func() {
			// Ignore errors; connection may already be closed.
			_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = conn.Close()
		})
	}

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	go func() {
		defer close(out)
		defer close(done)
		defer stop()
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				// If connection already closed by caller/context, just exit quietly.
				if ctx.Err() != nil ||
					websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
					strings.Contains(err.Error(), "use of closed network connection") {
					return
				}
				log.Warn().Err(err).Msg("binance ws read error")
				return
			}

			parsed, err := parseKlineMessage(msg)
			if err != nil {
				log.Debug().Err(err).Msg("binance ws parse error")
				continue
			}
			select {
			case out <- parsed:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, stop, nil
}

// Ping keeps the connection alive; useful if the caller wants manual control.
func (c *StreamClient) Ping(conn *websocket.Conn) error {
	return conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(time.Second))
}

// parseKlineMessage decodes a raw kline event. Combined-stream envelopes
// ({"stream": ..., "data": {...}}) are unwrapped first.
func parseKlineMessage(msg []byte) (Kline, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(msg, &envelope); err == nil && len(envelope.Data) > 0 {
		msg = envelope.Data
	}

	var raw struct {
		Event string `json:"e"`
		Data  *struct {
			StartTime int64  `json:"t"`
			CloseTime int64  `json:"T"`
			Symbol    string `json:"s"`
			Interval  string `json:"i"`
			Open      any    `json:"o"`
			Close     any    `json:"c"`
			High      any    `json:"h"`
			Low       any    `json:"l"`
			Volume    any    `json:"v"`
			Trades    any    `json:"n"`
			Quote     any    `json:"q"`
			Closed    bool   `json:"x"`
		} `json:"k"`
	}
	if err := json.Unmarshal(msg, &raw); err != nil {
		return Kline{}, err
	}
	if raw.Data == nil {
		return Kline{}, fmt.Errorf("not a kline event: %q", raw.Event)
	}
	k := raw.Data
	return Kline{
		Symbol:         k.Symbol,
		Interval:       k.Interval,
		OpenTime:       k.StartTime,
		CloseTime:      k.CloseTime,
		Open:           toFloat(k.Open),
		Close:          toFloat(k.Close),
		High:           toFloat(k.High),
		Low:            toFloat(k.Low),
		Volume:         toFloat(k.Volume),
		QuoteVolume:    toFloat(k.Quote),
		NumberOfTrades: toInt(k.Trades),
		Closed:         k.Closed,
	}, nil
}
