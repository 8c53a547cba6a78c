package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	awscloud "github.com/hemantobora/cloudcheck/internal/cloud/aws"
	"github.com/hemantobora/cloudcheck/internal/config"
	"github.com/hemantobora/cloudcheck/internal/models"
)

// Prober reads the placement an instance's application endpoint reports
type Prober interface {
	Fetch(ctx context.Context, address string) (models.InstanceMetadata, error)
}

// ComputeSuite checks the two-tier EC2 deployment. Each check lists the
// running instances itself so checks can run alone.
func ComputeSuite(client awscloud.ComputeAPI, prober Prober, exp config.ComputeExpectations) Suite {
	c := computeChecks{client: client, prober: prober, exp: exp}
	return Suite{
		Name: "compute",
		Checks: []Check{
			{ID: "EC2-01", Description: fmt.Sprintf("%d application instances are running", exp.InstanceCount), Run: c.instanceCount},
			{ID: "EC2-02", Description: "each instance has the expected configuration", Run: c.configuration},
			{ID: "EC2-03", Description: "security groups expose only the expected ports", Run: c.securityGroups},
			{ID: "EC2-04", Description: "the public endpoint reports the instance's placement", Run: c.endpoint},
		},
	}
}

type computeChecks struct {
	client awscloud.ComputeAPI
	prober Prober
	exp    config.ComputeExpectations
}

func (c computeChecks) instanceCount(ctx context.Context) error {
	instances, err := awscloud.ListRunningInstances(ctx, c.client)
	if err != nil {
		return err
	}
	if len(instances) != c.exp.InstanceCount {
		return fmt.Errorf("expected %d running instance(s), found %d", c.exp.InstanceCount, len(instances))
	}
	return nil
}

func (c computeChecks) configuration(ctx context.Context) error {
	instances, err := awscloud.ListRunningInstances(ctx, c.client)
	if err != nil {
		return err
	}
	var f findings
	for _, inst := range instances {
		id := inst.InstanceID
		f.expect(inst.Type == c.exp.InstanceType, "%s: type %q, expected %q", id, inst.Type, c.exp.InstanceType)
		f.expect(inst.HasTag(c.exp.Tag), "%s: missing tag %q (has %v)", id, c.exp.Tag, inst.Tags)
		f.expect(inst.StorageSize == c.exp.RootVolumeSize, "%s: root volume %d GiB, expected %d", id, inst.StorageSize, c.exp.RootVolumeSize)
		f.expect(strings.Contains(inst.ImageDescription, c.exp.ImageDescription),
			"%s: image %q does not mention %q", id, inst.ImageDescription, c.exp.ImageDescription)
		f.expect(inst.PrivateAddress != "", "%s: no private address", id)
	}
	return f.err()
}

func (c computeChecks) securityGroups(ctx context.Context) error {
	instances, err := awscloud.ListRunningInstances(ctx, c.client)
	if err != nil {
		return err
	}
	if err := expectInstances(len(instances), c.exp.InstanceCount); err != nil {
		return err
	}
	public, private, err := splitTiers(instances)
	if err != nil {
		return err
	}
	if len(public.AccessGroupIDs) == 0 {
		return &models.PreconditionError{Operation: "select-public-group", Resource: public.InstanceID, Expected: "at least one security group"}
	}
	publicGroup := public.AccessGroupIDs[0]

	var f findings
	for _, r := range public.InboundRules {
		f.expect(c.allowedPort(r), "%s: public inbound rule %s opens port %d", public.InstanceID, r.RuleID, r.ToPort)
		f.expect(r.CIDR == c.exp.OpenCIDR, "%s: public inbound rule %s allows %q, expected %q", public.InstanceID, r.RuleID, r.CIDR, c.exp.OpenCIDR)
	}
	for _, r := range private.InboundRules {
		f.expect(c.allowedPort(r), "%s: private inbound rule %s opens port %d", private.InstanceID, r.RuleID, r.ToPort)
		f.expect(r.CIDR != c.exp.OpenCIDR, "%s: private inbound rule %s is open to %q", private.InstanceID, r.RuleID, r.CIDR)
		f.expect(r.ReferencedGroupID == publicGroup,
			"%s: private inbound rule %s references %q, expected the public group %q", private.InstanceID, r.RuleID, r.ReferencedGroupID, publicGroup)
	}
	for _, inst := range instances {
		for _, r := range inst.OutboundRules {
			f.expect(r.CIDR == c.exp.OpenCIDR, "%s: outbound rule %s targets %q, expected %q", inst.InstanceID, r.RuleID, r.CIDR, c.exp.OpenCIDR)
		}
	}
	return f.err()
}

func (c computeChecks) endpoint(ctx context.Context) error {
	instances, err := awscloud.ListRunningInstances(ctx, c.client)
	if err != nil {
		return err
	}
	public, ok := lo.Find(instances, func(i models.ComputeInstance) bool { return !i.IsPrivate })
	if !ok {
		return noPublicInstance()
	}
	md, err := c.prober.Fetch(ctx, public.PublicAddress)
	if err != nil {
		return err
	}

	var f findings
	f.expect(md.AvailabilityZone == public.AvailabilityZone, "endpoint reports zone %q, instance is in %q", md.AvailabilityZone, public.AvailabilityZone)
	f.expect(md.Region == public.Region, "endpoint reports region %q, instance is in %q", md.Region, public.Region)
	f.expect(md.PrivateIPv4 == public.PrivateAddress, "endpoint reports private address %q, instance has %q", md.PrivateIPv4, public.PrivateAddress)
	return f.err()
}

func (c computeChecks) allowedPort(r models.AccessRule) bool {
	return lo.Contains(c.exp.AllowedPorts, r.ToPort)
}

func expectInstances(got, want int) error {
	if got == want {
		return nil
	}
	return &models.PreconditionError{
		Operation: "list-running-instances",
		Resource:  "instance-state-name=running",
		Expected:  fmt.Sprintf("%d instance(s)", want),
		Got:       got,
	}
}

// splitTiers returns the first public and the first private instance
func splitTiers(instances []models.ComputeInstance) (public, private models.ComputeInstance, err error) {
	privates, publics := lo.FilterReject(instances, func(i models.ComputeInstance, _ int) bool {
		return i.IsPrivate
	})
	if len(publics) == 0 {
		return public, private, noPublicInstance()
	}
	if len(privates) == 0 {
		return public, private, &models.PreconditionError{Operation: "select-private-instance", Resource: "instance-state-name=running", Expected: "a private instance"}
	}
	return publics[0], privates[0], nil
}

func noPublicInstance() error {
	return &models.PreconditionError{Operation: "select-public-instance", Resource: "instance-state-name=running", Expected: "a public instance"}
}
