package monitor

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"emacross-core/internal/events"
	"emacross-core/internal/strategy"
)

// Monitor watches strategy signals and forwards a one-line alert per signal.
type Monitor struct {
	Bus    *events.Bus
	Sink   AlertSink
	Logger zerolog.Logger
}

// Start subscribes to the bus and returns once the subscription is live.
func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		m.Logger.Warn().Msg("monitor not fully configured; skipping")
		return
	}
	stream, unsub := m.Bus.Subscribe(events.EventStrategySignal, 50)
	go func() {
		defer unsub()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-stream:
				if !ok {
					return
				}
				if err := m.Sink.Send(formatAlert(msg)); err != nil {
					m.Logger.Warn().Err(err).Msg("alert delivery failed")
				}
			}
		}
	}()
}

func formatAlert(msg any) string {
	d, ok := msg.(strategy.Decision)
	if !ok {
		return "signal triggered"
	}
	kind := "entry"
	switch {
	case d.Enter && d.Exit:
		kind = "entry+exit"
	case d.Exit:
		kind = "exit"
	}
	state := "closed"
	if !d.Closed {
		state = "provisional"
	}
	return fmt.Sprintf("[%s] %s %s %s signal at %g (%s)",
		d.Time.UTC().Format("2006-01-02T15:04:05Z"), d.Pair, d.Timeframe, kind, d.Close, state)
}
