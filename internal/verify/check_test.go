package verify

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemantobora/cloudcheck/internal/models"
)

func constant(err error) func(context.Context) error {
	return func(context.Context) error { return err }
}

func TestRun_Statuses(t *testing.T) {
	precondition := &models.PreconditionError{Operation: "DescribeVolumes", Resource: "vol-1", Expected: "exactly one volume", Got: 0}
	suite := Suite{Name: "demo", Checks: []Check{
		{ID: "ok", Run: constant(nil)},
		{ID: "mismatch", Run: constant(errors.New("type t3.small, expected t3.micro"))},
		{ID: "precondition", Run: constant(precondition)},
		{ID: "wrapped precondition", Run: constant(fmt.Errorf("listing: %w", precondition))},
		{ID: "api", Run: constant(&models.ProviderError{Service: "ec2", Operation: "DescribeInstances", Cause: errors.New("throttled")})},
	}}

	report := Run(context.Background(), suite)
	require.Len(t, report.Results, 5)

	want := []Status{StatusPass, StatusFail, StatusError, StatusError, StatusFail}
	for i, res := range report.Results {
		assert.Equal(t, "demo", res.Suite)
		assert.Equal(t, want[i], res.Status, res.ID)
	}
	assert.Empty(t, report.Results[0].Message)
	assert.Contains(t, report.Results[1].Message, "expected t3.micro")
	assert.True(t, report.Failed())
	assert.Equal(t, map[Status]int{StatusPass: 1, StatusFail: 2, StatusError: 2}, report.Counts())
}

func TestRun_MultipleSuitesKeepOrder(t *testing.T) {
	a := Suite{Name: "a", Checks: []Check{{ID: "a1", Run: constant(nil)}, {ID: "a2", Run: constant(nil)}}}
	b := Suite{Name: "b", Checks: []Check{{ID: "b1", Run: constant(nil)}}}

	report := Run(context.Background(), a, b)

	ids := make([]string, 0, len(report.Results))
	for _, res := range report.Results {
		ids = append(ids, res.ID)
	}
	assert.Equal(t, []string{"a1", "a2", "b1"}, ids)
	assert.False(t, report.Failed())
}

func TestRunWithProgress(t *testing.T) {
	var started []string
	report := RunWithProgress(context.Background(), func(suite string, check Check) {
		started = append(started, suite+"/"+check.ID)
	},
		Suite{Name: "compute", Checks: []Check{{ID: "EC2-01", Run: constant(nil)}}},
		Suite{Name: "identity", Checks: []Check{{ID: "IAM-USER/a", Run: constant(errors.New("missing"))}}},
	)

	assert.Equal(t, []string{"compute/EC2-01", "identity/IAM-USER/a"}, started)
	require.Len(t, report.Results, 2)
	assert.Equal(t, StatusFail, report.Results[1].Status)
}

func TestRun_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	suite := Suite{Name: "demo", Checks: []Check{
		{ID: "first", Run: func(context.Context) error {
			calls++
			cancel()
			return nil
		}},
		{ID: "second", Run: func(context.Context) error {
			calls++
			return nil
		}},
	}}

	report := Run(ctx, suite)
	require.Len(t, report.Results, 2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, StatusPass, report.Results[0].Status)
	assert.Equal(t, StatusError, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Message, context.Canceled.Error())
}

func TestFindings(t *testing.T) {
	var f findings
	assert.NoError(t, f.err())

	f.expect(true, "never")
	f.expect(false, "port %d", 443)
	f.expect(false, "cidr %q", "10.0.0.0/8")

	err := f.err()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 443")
	assert.Contains(t, err.Error(), `cidr "10.0.0.0/8"`)
	assert.NotContains(t, err.Error(), "never")
}
