package metrics

import (
	"context"

	coremetrics "github.com/kilianp07/batsim/core/metrics"
	"github.com/kilianp07/batsim/infra/logger"
	"github.com/kilianp07/batsim/internal/eventbus"
)

// StartDiagnosticCollector subscribes to the diagnostics bus and records every
// event on rec. It stops when the context is canceled or the bus is closed;
// the returned channel is closed once the collector has exited.
func StartDiagnosticCollector(ctx context.Context, bus *eventbus.TypedBus[coremetrics.DiagnosticEvent], rec coremetrics.DiagnosticRecorder, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || rec == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.SubscribeBuffered(256)
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := rec.RecordDiagnostic(ev); err != nil {
					log.Warnf("record diagnostic %s/%s: %v", ev.DeviceID, ev.Kind, err)
				}
			}
		}
	}()
	return done
}
