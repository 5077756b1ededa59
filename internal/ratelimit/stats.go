package ratelimit

import (
	"context"
	"errors"
	"time"
)

// StatsEvent describes one admit/reject decision.
type StatsEvent struct {
	Identity Identity
	Class    Class
	Allowed  bool
	At       time.Time
}

// StatsSink receives decisions for diagnostics. Sinks never influence admission.
type StatsSink interface {
	Record(ctx context.Context, ev StatsEvent) error
}

// MultiSink fans an event out to every non-nil sink.
type MultiSink []StatsSink

// Record forwards ev to all sinks and joins their errors.
func (m MultiSink) Record(ctx context.Context, ev StatsEvent) error {
	var errs []error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
