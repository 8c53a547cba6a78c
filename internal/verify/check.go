// Package verify runs named checks of a live environment against
// expectations and collects the outcome of each into a Report.
package verify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hemantobora/cloudcheck/internal/log"
	"github.com/hemantobora/cloudcheck/internal/models"
)

// Status is the outcome of one check
type Status string

const (
	StatusPass  Status = "PASS"
	StatusFail  Status = "FAIL"
	StatusError Status = "ERROR" // a precondition of the check itself did not hold
)

// Check is a single named assertion about the environment. Run returns nil
// when the environment matches.
type Check struct {
	ID          string
	Description string
	Run         func(ctx context.Context) error
}

// Suite groups the checks of one area
type Suite struct {
	Name   string
	Checks []Check
}

// Result records how one check ended
type Result struct {
	Suite       string        `json:"suite"`
	ID          string        `json:"id"`
	Description string        `json:"description"`
	Status      Status        `json:"status"`
	Message     string        `json:"message,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
}

// Run executes every check of every suite in order. Checks never abort the
// run; once ctx is done the remaining checks are reported as ERROR.
func Run(ctx context.Context, suites ...Suite) Report {
	return RunWithProgress(ctx, nil, suites...)
}

// RunWithProgress is Run with progress called as each check starts
func RunWithProgress(ctx context.Context, progress func(suite string, check Check), suites ...Suite) Report {
	var report Report
	for _, suite := range suites {
		for _, check := range suite.Checks {
			if progress != nil {
				progress(suite.Name, check)
			}
			report.Results = append(report.Results, runCheck(ctx, suite.Name, check))
		}
	}
	return report
}

func runCheck(ctx context.Context, suite string, check Check) Result {
	res := Result{Suite: suite, ID: check.ID, Description: check.Description}
	if err := ctx.Err(); err != nil {
		res.Status, res.Message = StatusError, err.Error()
		return res
	}

	start := time.Now()
	err := check.Run(ctx)
	res.Duration = time.Since(start)
	res.Status = classify(err)
	if err != nil {
		res.Message = err.Error()
	}

	entry := log.WithField("check", check.ID).WithField("status", res.Status)
	if err != nil {
		entry.WithError(err).Debug("check finished")
	} else {
		entry.Debug("check finished")
	}
	return res
}

func classify(err error) Status {
	switch {
	case err == nil:
		return StatusPass
	case errors.Is(err, models.ErrPrecondition):
		return StatusError
	default:
		return StatusFail
	}
}

// findings accumulates the mismatches of one check so that a single run
// reports all of them rather than the first.
type findings struct {
	errs []error
}

func (f *findings) expect(ok bool, format string, args ...interface{}) {
	if !ok {
		f.errs = append(f.errs, fmt.Errorf(format, args...))
	}
}

func (f *findings) err() error {
	return errors.Join(f.errs...)
}
