package lifecycle

import (
	"context"
	"time"

	"code.cloudfoundry.org/clock"
	events "github.com/docker/go-events"
	"github.com/savi/fpgavirt/log"
)

// StateEvent is published by EventReporter on every state change.
type StateEvent struct {
	Instance  string
	State     State
	Message   string
	Timestamp time.Time
}

// EventReporter publishes StateEvents to a sink.
type EventReporter struct {
	sink  events.Sink
	clock clock.Clock
}

var _ Reporter = &EventReporter{}

// NewEventReporter returns a reporter writing to sink. A nil clk uses the
// real clock.
func NewEventReporter(sink events.Sink, clk clock.Clock) *EventReporter {
	if clk == nil {
		clk = clock.NewClock()
	}
	return &EventReporter{sink: sink, clock: clk}
}

// Report implements Reporter.
func (r *EventReporter) Report(ctx context.Context, inst *Instance, state State, msg string) error {
	return r.sink.Write(StateEvent{
		Instance:  inst.Name,
		State:     state,
		Message:   msg,
		Timestamp: r.clock.Now(),
	})
}

// LogReporter logs state changes using the context logger.
type LogReporter struct{}

// Report implements Reporter.
func (LogReporter) Report(ctx context.Context, inst *Instance, state State, msg string) error {
	log.G(ctx).Info(msg)
	return nil
}

// multiReporter reports to each reporter in turn, stopping at the first error.
type multiReporter []Reporter

// MultiReporter combines reporters.
func MultiReporter(reporters ...Reporter) Reporter {
	return multiReporter(reporters)
}

func (m multiReporter) Report(ctx context.Context, inst *Instance, state State, msg string) error {
	for _, r := range m {
		if err := r.Report(ctx, inst, state, msg); err != nil {
			return err
		}
	}
	return nil
}
