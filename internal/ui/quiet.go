package ui

import (
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// quietPresenter drains events and prints nothing. It still remembers the
// completion event so callers can ask for the outcome.
type quietPresenter struct {
	stats    *stats.Collector
	complete event.Event
}

func (p *quietPresenter) Run(events <-chan event.Event) error {
	for ev := range events {
		if ev.Type == event.OperationComplete {
			p.complete = ev
		}
	}
	return nil
}

func (p *quietPresenter) Summary() string {
	return ""
}
