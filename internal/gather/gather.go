// Package gather defines the contract shared by the data-gathering stages
// that feed the datalake.
package gather

import (
	"context"
	"fmt"
	"time"
)

// Stage is one unit of gathering work, such as ingesting a day's report or
// rolling a month up.
type Stage interface {
	// Name returns the stage identifier used in logs and metrics.
	Name() string
	// Run performs the stage once. It returns when the work is done or ctx
	// is cancelled.
	Run(ctx context.Context) error
}

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Validate rejects ranges whose end precedes their start.
func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("date range needs both ends")
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("date range end %s before start %s",
			r.End.Format("2006-01-02"), r.Start.Format("2006-01-02"))
	}
	return nil
}

// Days returns every day in the range, oldest first.
func (r DateRange) Days() []time.Time {
	start := time.Date(r.Start.Year(), r.Start.Month(), r.Start.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(r.End.Year(), r.End.Month(), r.End.Day(), 0, 0, 0, 0, time.UTC)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// StageFunc adapts a function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(ctx context.Context) error
}

// Name implements Stage.
func (s StageFunc) Name() string { return s.StageName }

// Run implements Stage.
func (s StageFunc) Run(ctx context.Context) error { return s.Fn(ctx) }
