package monitor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"emacross-core/internal/events"
	"emacross-core/internal/strategy"
)

type memorySink struct {
	mu   sync.Mutex
	msgs []string
	fail bool
}

func (s *memorySink) Send(message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, message)
	if s.fail {
		return errors.New("sink down")
	}
	return nil
}

func (s *memorySink) messages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.msgs...)
}

func TestFormatAlert(t *testing.T) {
	ts := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	tests := []struct {
		name string
		msg  any
		want string
	}{
		{"entry", strategy.Decision{Pair: "BTCUSDT", Timeframe: "5m", Time: ts, Close: 42.5, Enter: true, Closed: true},
			"[2024-03-01T12:05:00Z] BTCUSDT 5m entry signal at 42.5 (closed)"},
		{"exit provisional", strategy.Decision{Pair: "ETHUSDT", Timeframe: "5m", Time: ts, Close: 7, Exit: true},
			"[2024-03-01T12:05:00Z] ETHUSDT 5m exit signal at 7 (provisional)"},
		{"both", strategy.Decision{Pair: "BTCUSDT", Timeframe: "5m", Time: ts, Close: 1, Enter: true, Exit: true, Closed: true},
			"[2024-03-01T12:05:00Z] BTCUSDT 5m entry+exit signal at 1 (closed)"},
		{"unknown payload", "x", "signal triggered"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatAlert(tt.msg); got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMonitorForwardsSignals(t *testing.T) {
	bus := events.NewBus()
	sink := &memorySink{fail: true}
	m := &Monitor{Bus: bus, Sink: sink, Logger: zerolog.Nop()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	bus.Publish(events.EventStrategySignal, strategy.Decision{Pair: "BTCUSDT", Timeframe: "5m", Enter: true, Closed: true})
	bus.Publish(events.EventStrategySignal, strategy.Decision{Pair: "BTCUSDT", Timeframe: "5m", Exit: true, Closed: true})

	deadline := time.Now().Add(2 * time.Second)
	for len(sink.messages()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("alerts = %v", sink.messages())
		}
		time.Sleep(5 * time.Millisecond)
	}
	msgs := sink.messages()
	if !strings.Contains(msgs[0], "entry") || !strings.Contains(msgs[1], "exit") {
		t.Fatalf("alerts = %v", msgs)
	}
}

func TestMonitorSkipsWithoutSink(t *testing.T) {
	bus := events.NewBus()
	m := &Monitor{Bus: bus, Logger: zerolog.Nop()}
	m.Start(context.Background())
	if n := bus.Publish(events.EventStrategySignal, strategy.Decision{}); n != 0 {
		t.Fatalf("unconfigured monitor subscribed: %d receivers", n)
	}
}
