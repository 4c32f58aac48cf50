package system

import (
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Diagnostic records one system failure within a tick.
type Diagnostic struct {
	System string
	Phase  Phase
	Err    error
	// Panic is set when Err came from a recovered panic.
	Panic bool
	// Commands is set when Err came from applying the system's command buffer.
	Commands bool
}

func (d Diagnostic) Error() string {
	switch {
	case d.Panic:
		return fmt.Sprintf("%s/%s panicked: %v", d.Phase, d.System, d.Err)
	case d.Commands:
		return fmt.Sprintf("%s/%s commands: %v", d.Phase, d.System, d.Err)
	}
	return fmt.Sprintf("%s/%s: %v", d.Phase, d.System, d.Err)
}

func (d Diagnostic) Unwrap() error { return d.Err }

// Report summarizes one Tick.
type Report struct {
	Tick        uint64
	Dt          float32
	Duration    time.Duration
	Executed    int
	Diagnostics []Diagnostic
	// Failure is set when the tick did not run at all.
	Failure error
}

// OK reports whether the tick ran and every system succeeded.
func (r Report) OK() bool { return r.Failure == nil && len(r.Diagnostics) == 0 }

// Err combines the tick failure and every diagnostic into one error.
func (r Report) Err() error {
	err := r.Failure
	for _, d := range r.Diagnostics {
		err = multierr.Append(err, d)
	}
	return err
}
