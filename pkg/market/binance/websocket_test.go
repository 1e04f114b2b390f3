package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const klineEvent = `{"e":"kline","E":1700000123456,"s":"BTCUSDT","k":{"t":1700000100000,"T":1700000399999,"s":"BTCUSDT","i":"5m","f":1,"L":2,"o":"100.0","c":"101.0","h":"102.0","l":"99.0","v":"3.5","n":7,"x":%s,"q":"350.0","V":"1.0","Q":"100.0","B":"0"}}`

func klineMsg(closed string) string {
	return strings.Replace(klineEvent, "%s", closed, 1)
}

func TestParseKlineMessage(t *testing.T) {
	k, err := parseKlineMessage([]byte(klineMsg("true")))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if k.Symbol != "BTCUSDT" || k.Interval != "5m" || !k.Closed {
		t.Errorf("identity = %+v", k)
	}
	if k.OpenTime != 1700000100000 || k.CloseTime != 1700000399999 {
		t.Errorf("times = %d..%d", k.OpenTime, k.CloseTime)
	}
	if k.Open != 100 || k.Close != 101 || k.High != 102 || k.Low != 99 || k.Volume != 3.5 || k.NumberOfTrades != 7 {
		t.Errorf("values = %+v", k)
	}

	open, err := parseKlineMessage([]byte(klineMsg("false")))
	if err != nil || open.Closed {
		t.Errorf("open kline = %+v, %v", open, err)
	}
}

func TestParseKlineCombinedStream(t *testing.T) {
	msg := `{"stream":"btcusdt@kline_5m","data":` + klineMsg("false") + `}`
	k, err := parseKlineMessage([]byte(msg))
	if err != nil || k.Symbol != "BTCUSDT" {
		t.Fatalf("combined parse = %+v, %v", k, err)
	}
}

func TestParseKlineRejectsOtherEvents(t *testing.T) {
	if _, err := parseKlineMessage([]byte(`{"e":"trade","s":"BTCUSDT","p":"1"}`)); err == nil {
		t.Error("expected error for trade event")
	}
	if _, err := parseKlineMessage([]byte(`not json`)); err == nil {
		t.Error("expected error for bad json")
	}
}

func TestSubscribeKlines(t *testing.T) {
	upgrader := websocket.Upgrader{}
	paths := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths <- r.URL.Path
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))
		conn.WriteMessage(websocket.TextMessage, []byte(klineMsg("false")))
		conn.WriteMessage(websocket.TextMessage, []byte(klineMsg("true")))
		// Hold the connection until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	c := NewStreamClient(false, zerolog.Nop())
	c.StreamURL = "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, stop, err := c.SubscribeKlines(ctx, "BTCUSDT", "5m")
	if err != nil {
		t.Fatalf("SubscribeKlines: %v", err)
	}
	defer stop()

	var got []Kline
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case k := <-ch:
			got = append(got, k)
		case <-timeout:
			t.Fatalf("received %d klines before timeout", len(got))
		}
	}
	if path := <-paths; path != "/ws/btcusdt@kline_5m" {
		t.Errorf("stream path = %q", path)
	}
	if got[0].Closed || !got[1].Closed {
		t.Errorf("closed flags = %v,%v", got[0].Closed, got[1].Closed)
	}

	cancel()
	select {
	case _, ok := <-ch:
		for ok {
			_, ok = <-ch
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
