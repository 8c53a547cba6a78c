package verify

import (
	"bytes"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemantobora/cloudcheck/internal/models"
)

func sampleReport() Report {
	return Report{
		Account: &models.AccountInfo{AccountID: "123456789012", ARN: "arn:aws:iam::123456789012:user/qa", Region: "eu-central-1"},
		Results: []Result{
			{Suite: "compute", ID: "EC2-01", Description: "2 application instances are running", Status: StatusPass, Duration: 120 * time.Millisecond},
			{Suite: "compute", ID: "EC2-03", Description: "security groups", Status: StatusFail, Message: "i-private: outbound rule targets 10.0.0.0/16"},
			{Suite: "identity", ID: "IAM-POLICY/ReadAccessPolicyS3", Status: StatusError, Message: "GetPolicyVersion: expected exactly one policy version, got 0"},
		},
	}
}

func TestReport_WriteTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteTable(&buf))

	out := buf.String()
	for _, want := range []string{
		"EC2-01", "EC2-03", "IAM-POLICY/ReadAccessPolicyS3",
		"outbound rule targets 10.0.0.0/16",
		"account 123456789012",
		"1 passed, 1 failed, 1 errored",
	} {
		assert.Contains(t, out, want)
	}
	// not a terminal: no escape sequences
	assert.NotContains(t, out, "\x1b[")
}

func TestReport_WriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, sampleReport().WriteJSON(&buf))

	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, sampleReport(), decoded)
	assert.Contains(t, buf.String(), `"status": "ERROR"`)
}

func TestReport_Failed(t *testing.T) {
	assert.False(t, Report{}.Failed())
	assert.False(t, Report{Results: []Result{{Status: StatusPass}}}.Failed())
	assert.True(t, Report{Results: []Result{{Status: StatusPass}, {Status: StatusError}}}.Failed())
}
