package events

import (
	"github.com/rs/zerolog"

	"voiceui/internal/domain"
)

// Fanout delivers each outcome to every observer in order.
type Fanout []domain.Observer

func (f Fanout) Observe(o domain.Outcome) {
	for _, obs := range f {
		if obs != nil {
			obs.Observe(o)
		}
	}
}

// Log returns an observer writing one log line per outcome.
func Log(logger zerolog.Logger) domain.Observer {
	return domain.ObserverFunc(func(o domain.Outcome) {
		ev := logger.Info()
		if !o.Succeeded() {
			ev = logger.Warn().AnErr("reason", o.Err)
		}
		ev.Str("id", o.ID).Str("path", string(o.Path)).Str("status", string(o.Status)).
			Str("command", o.Command).Msg(o.Result)
	})
}
