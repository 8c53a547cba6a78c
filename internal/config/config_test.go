package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemantobora/cloudcheck/internal/models"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, key := range []string{
		"CLOUDCHECK_PROFILE", "CLOUDCHECK_REGION", "CLOUDCHECK_EXPECTATIONS",
		"CLOUDCHECK_LOG", "CLOUDCHECK_OUTPUT", "CLOUDCHECK_PROBE_TIMEOUT",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, Config{
		Region:       "eu-central-1",
		LogLevel:     "info",
		Output:       OutputTable,
		ProbeTimeout: 10 * time.Second,
	}, cfg)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("CLOUDCHECK_PROFILE", "qa")
	t.Setenv("CLOUDCHECK_REGION", "us-east-1")
	t.Setenv("CLOUDCHECK_EXPECTATIONS", "/tmp/exp.yaml")
	t.Setenv("CLOUDCHECK_LOG", "debug")
	t.Setenv("CLOUDCHECK_OUTPUT", "json")
	t.Setenv("CLOUDCHECK_PROBE_TIMEOUT", "3s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "qa", cfg.Profile)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "/tmp/exp.yaml", cfg.Expectations)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, OutputJSON, cfg.Output)
	assert.Equal(t, 3*time.Second, cfg.ProbeTimeout)
}

func TestFromEnv_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown output", key: "CLOUDCHECK_OUTPUT", value: "xml"},
		{name: "bad duration", key: "CLOUDCHECK_PROBE_TIMEOUT", value: "soon"},
		{name: "negative duration", key: "CLOUDCHECK_PROBE_TIMEOUT", value: "-1s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := FromEnv()
			assert.Error(t, err)
		})
	}
}

func TestDefaultExpectations(t *testing.T) {
	exp := DefaultExpectations()

	assert.Equal(t, 2, exp.Compute.InstanceCount)
	assert.Equal(t, "t3.micro", exp.Compute.InstanceType)
	assert.Equal(t, []int32{22, 80}, exp.Compute.AllowedPorts)
	assert.Len(t, exp.Identity.Users, 3)
	assert.Len(t, exp.Identity.Groups, 3)
	assert.Len(t, exp.Identity.Roles, 3)
	require.Len(t, exp.Identity.Policies, 3)
	assert.True(t, exp.Identity.Policies[2].Action.Equal(models.MultipleActions("s3:Get*", "s3:List*", "s3:Describe*")))

	// callers may mutate their copy
	exp.Compute.AllowedPorts[0] = 443
	assert.Equal(t, int32(22), DefaultExpectations().Compute.AllowedPorts[0])
}

func TestParseExpectations(t *testing.T) {
	exp, err := ParseExpectations([]byte(`
compute:
  instance_type: t3.small
  allowed_ports: [443]
identity:
  policies:
    - name: ReadOnly
      action: [ "ec2:Describe*", "ec2:Get*" ]
      resource: "*"
      effect: Allow
    - name: Admin
      action: "*"
      resource: "*"
      effect: Allow
`))
	require.NoError(t, err)

	assert.Equal(t, "t3.small", exp.Compute.InstanceType)
	assert.Equal(t, []int32{443}, exp.Compute.AllowedPorts)
	// untouched fields keep their defaults
	assert.Equal(t, 2, exp.Compute.InstanceCount)
	assert.Equal(t, "cloudx:qa", exp.Compute.Tag)
	assert.Len(t, exp.Identity.Users, 3)

	require.Len(t, exp.Identity.Policies, 2)
	assert.True(t, exp.Identity.Policies[0].Action.Equal(models.MultipleActions("ec2:Get*", "ec2:Describe*")))
	assert.True(t, exp.Identity.Policies[1].Action.Equal(models.SingleAction("*")))
}

func TestParseExpectations_Empty(t *testing.T) {
	exp, err := ParseExpectations(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultExpectations(), exp)
}

func TestParseExpectations_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "unknown key", data: "compute:\n  instance_typo: t3.small\n"},
		{name: "action mapping", data: "identity:\n  policies:\n    - name: p\n      action: {a: b}\n"},
		{name: "malformed", data: "compute: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseExpectations([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestLoadExpectations(t *testing.T) {
	exp, err := LoadExpectations("")
	require.NoError(t, err)
	assert.Equal(t, DefaultExpectations(), exp)

	path := filepath.Join(t.TempDir(), "expectations.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compute:\n  instance_count: 3\n"), 0o600))

	exp, err = LoadExpectations(path)
	require.NoError(t, err)
	assert.Equal(t, 3, exp.Compute.InstanceCount)

	_, err = LoadExpectations(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestExpectations_Validate(t *testing.T) {
	require.NoError(t, DefaultExpectations().Validate())

	exp := DefaultExpectations()
	exp.Compute.OpenCIDR = "anywhere"
	exp.Compute.AllowedPorts = []int32{22, 70000}
	exp.Identity.Users = append(exp.Identity.Users, UserExpectation{Name: "orphan"})
	exp.Identity.Policies[0].Effect = "allow"
	exp.Identity.Policies[1].Action = ActionValue{}

	err := exp.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"compute.open_cidr",
		"70000 is not a port",
		"identity.users[3]: name and group are required",
		`identity.policies[0]: effect must be Allow or Deny, got "allow"`,
		"identity.policies[1]: action is required",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestLoadExpectations_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "expectations.yaml")
	require.NoError(t, os.WriteFile(path, []byte("compute:\n  open_cidr: everywhere\n"), 0o600))

	_, err := LoadExpectations(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid expectations")
}
