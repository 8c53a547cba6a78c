package verify

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hemantobora/cloudcheck/internal/cloud/aws/awstest"
	"github.com/hemantobora/cloudcheck/internal/config"
	"github.com/hemantobora/cloudcheck/internal/models"
)

type fakeProber struct {
	md        models.InstanceMetadata
	err       error
	addresses []string
}

func (p *fakeProber) Fetch(_ context.Context, address string) (models.InstanceMetadata, error) {
	p.addresses = append(p.addresses, address)
	return p.md, p.err
}

func healthyProber() *fakeProber {
	return &fakeProber{md: models.InstanceMetadata{
		AvailabilityZone: "eu-central-1a",
		Region:           "eu-central-1",
		PrivateIPv4:      "10.0.1.10",
	}}
}

func runCompute(t *testing.T, client *awstest.FakeEC2, prober Prober) map[string]Result {
	t.Helper()
	suite := ComputeSuite(client, prober, config.DefaultExpectations().Compute)
	report := Run(context.Background(), suite)
	require.Len(t, report.Results, 4)

	byID := make(map[string]Result, len(report.Results))
	for _, res := range report.Results {
		byID[res.ID] = res
	}
	return byID
}

func TestComputeSuite_Healthy(t *testing.T) {
	prober := healthyProber()
	results := runCompute(t, awstest.TwoTier(), prober)

	for id, res := range results {
		assert.Equal(t, StatusPass, res.Status, "%s: %s", id, res.Message)
	}
	assert.Equal(t, []string{"3.120.0.10"}, prober.addresses)
}

func TestComputeSuite_InstanceCount(t *testing.T) {
	client := awstest.TwoTier()
	client.InstancePages = client.InstancePages[:1]

	results := runCompute(t, client, healthyProber())
	assert.Equal(t, StatusFail, results["EC2-01"].Status)
	assert.Contains(t, results["EC2-01"].Message, "expected 2 running instance(s), found 1")
	// no private instance to compare against
	assert.Equal(t, StatusError, results["EC2-03"].Status)
	assert.Equal(t, StatusPass, results["EC2-04"].Status)
}

func TestComputeSuite_Configuration(t *testing.T) {
	client := awstest.TwoTier()
	client.InstancePages[1][0].Instances[0].InstanceType = types.InstanceTypeT3Small
	client.InstancePages[1][0].Instances[0].Tags = nil
	client.Volumes["vol-public"] = []types.Volume{awstest.Volume("vol-public", 30)}

	results := runCompute(t, client, healthyProber())
	res := results["EC2-02"]
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, `i-private: type "t3.small", expected "t3.micro"`)
	assert.Contains(t, res.Message, `i-private: missing tag "cloudx:qa"`)
	assert.Contains(t, res.Message, "i-public: root volume 30 GiB, expected 8")
	assert.Equal(t, StatusPass, results["EC2-01"].Status)
}

func TestComputeSuite_MissingPrivateAddress(t *testing.T) {
	client := awstest.TwoTier()
	client.InstancePages[1][0].Instances[0].PrivateIpAddress = nil

	results := runCompute(t, client, healthyProber())
	assert.Equal(t, StatusFail, results["EC2-02"].Status)
	assert.Contains(t, results["EC2-02"].Message, "i-private: no private address")
}

func TestComputeSuite_SecurityGroups(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(f *awstest.FakeEC2)
		message string
	}{
		{
			name: "public port outside allowed set",
			mutate: func(f *awstest.FakeEC2) {
				f.Rules["sg-public"] = append(f.Rules["sg-public"], awstest.IngressFromCIDR("sg-public", 3389, "0.0.0.0/0"))
			},
			message: "public inbound rule sgr-sg-public-in-3389 opens port 3389",
		},
		{
			name: "public rule narrower than open cidr",
			mutate: func(f *awstest.FakeEC2) {
				f.Rules["sg-public"][0] = awstest.IngressFromCIDR("sg-public", 22, "10.0.0.0/8")
			},
			message: `allows "10.0.0.0/8", expected "0.0.0.0/0"`,
		},
		{
			name: "private open to the internet",
			mutate: func(f *awstest.FakeEC2) {
				f.Rules["sg-private"][0] = awstest.IngressFromCIDR("sg-private", 22, "0.0.0.0/0")
			},
			message: `private inbound rule sgr-sg-private-in-22 is open to "0.0.0.0/0"`,
		},
		{
			name: "private referencing another group",
			mutate: func(f *awstest.FakeEC2) {
				f.Rules["sg-private"][1] = awstest.IngressFromGroup("sg-private", 80, "sg-bastion")
			},
			message: `references "sg-bastion", expected the public group "sg-public"`,
		},
		{
			name: "restricted egress",
			mutate: func(f *awstest.FakeEC2) {
				f.Rules["sg-private"][2] = awstest.EgressToCIDR("sg-private", "10.0.0.0/16")
			},
			message: `i-private: outbound rule sgr-sg-private-out--1 targets "10.0.0.0/16"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := awstest.TwoTier()
			tt.mutate(client)

			res := runCompute(t, client, healthyProber())["EC2-03"]
			assert.Equal(t, StatusFail, res.Status)
			assert.Contains(t, res.Message, tt.message)
		})
	}
}

func TestComputeSuite_NoPublicInstance(t *testing.T) {
	client := awstest.TwoTier()
	client.InstancePages[0][0].Instances[0].PublicIpAddress = nil

	results := runCompute(t, client, healthyProber())
	assert.Equal(t, StatusError, results["EC2-03"].Status)
	assert.Contains(t, results["EC2-03"].Message, "a public instance")
	assert.Equal(t, StatusError, results["EC2-04"].Status)
}

func TestComputeSuite_Endpoint(t *testing.T) {
	prober := healthyProber()
	prober.md.Region = "us-east-1"
	prober.md.PrivateIPv4 = "10.0.9.9"

	res := runCompute(t, awstest.TwoTier(), prober)["EC2-04"]
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, `endpoint reports region "us-east-1", instance is in "eu-central-1"`)
	assert.Contains(t, res.Message, `endpoint reports private address "10.0.9.9", instance has "10.0.1.10"`)
	assert.NotContains(t, res.Message, "zone")
}

func TestComputeSuite_EndpointUnreachable(t *testing.T) {
	prober := &fakeProber{err: &models.ProbeError{URL: "http://3.120.0.10:80/", Cause: errors.New("connection refused")}}

	res := runCompute(t, awstest.TwoTier(), prober)["EC2-04"]
	assert.Equal(t, StatusFail, res.Status)
	assert.Contains(t, res.Message, "connection refused")
}

func TestComputeSuite_PreconditionFromRetriever(t *testing.T) {
	client := awstest.TwoTier()
	client.Zones["eu-central-1b"] = nil

	results := runCompute(t, client, healthyProber())
	for id, res := range results {
		assert.Equal(t, StatusError, res.Status, id)
		assert.Contains(t, res.Message, "exactly one availability zone", id)
	}
}

func TestComputeSuite_APIError(t *testing.T) {
	client := awstest.TwoTier()
	client.Err = errors.New("RequestLimitExceeded")

	results := runCompute(t, client, healthyProber())
	for id, res := range results {
		assert.Equal(t, StatusFail, res.Status, id)
	}
	assert.Equal(t, 4, client.Calls("DescribeInstances"))
}

func TestComputeSuite_PublicWithoutGroups(t *testing.T) {
	client := awstest.TwoTier()
	client.InstancePages[0][0].Instances[0].SecurityGroups = nil

	res := runCompute(t, client, healthyProber())["EC2-03"]
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Message, "at least one security group")
}

func TestSplitTiers(t *testing.T) {
	instances := []models.ComputeInstance{
		{InstanceID: "i-a", IsPrivate: true},
		{InstanceID: "i-b", PublicAddress: "1.2.3.4"},
		{InstanceID: "i-c", IsPrivate: true},
	}

	public, private, err := splitTiers(instances)
	require.NoError(t, err)
	assert.Equal(t, "i-b", public.InstanceID)
	assert.Equal(t, "i-a", private.InstanceID)

	_, _, err = splitTiers(instances[:1])
	assert.ErrorIs(t, err, models.ErrPrecondition)
}
