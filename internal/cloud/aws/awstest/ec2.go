// Package awstest provides in-memory EC2, IAM and STS clients that serve
// canned, paginated responses for tests of the retrievers and checks.
package awstest

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// FakeEC2 serves DescribeInstances from InstancePages (one slice of
// reservations per page) and answers the per-instance lookups from maps.
type FakeEC2 struct {
	InstancePages [][]types.Reservation
	Volumes       map[string][]types.Volume            // by volume id
	Images        map[string][]types.Image             // by image id
	Rules         map[string][]types.SecurityGroupRule // by group id
	RulePageSize  int                                  // 0 serves all rules in one page
	Zones         map[string][]types.AvailabilityZone  // by zone name
	Err           error                                // returned by every call when set

	mu    sync.Mutex
	calls map[string]int
}

func (f *FakeEC2) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

// Calls returns how many times op was invoked
func (f *FakeEC2) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FakeEC2) DescribeInstances(_ context.Context, in *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	f.record("DescribeInstances")
	if f.Err != nil {
		return nil, f.Err
	}
	if len(f.InstancePages) == 0 {
		return &ec2.DescribeInstancesOutput{}, nil
	}
	i, err := pageIndex(in.NextToken, len(f.InstancePages))
	if err != nil {
		return nil, err
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: inState(f.InstancePages[i], filterValues(in.Filters, "instance-state-name")),
		NextToken:    nextToken(i, len(f.InstancePages)),
	}, nil
}

// inState keeps the instances whose state is one of states; no states keeps
// everything.
func inState(reservations []types.Reservation, states []string) []types.Reservation {
	if len(states) == 0 {
		return reservations
	}
	out := make([]types.Reservation, 0, len(reservations))
	for _, r := range reservations {
		kept := r
		kept.Instances = nil
		for _, inst := range r.Instances {
			if inst.State != nil && slices.Contains(states, string(inst.State.Name)) {
				kept.Instances = append(kept.Instances, inst)
			}
		}
		out = append(out, kept)
	}
	return out
}

func (f *FakeEC2) DescribeVolumes(_ context.Context, in *ec2.DescribeVolumesInput, _ ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error) {
	f.record("DescribeVolumes")
	if f.Err != nil {
		return nil, f.Err
	}
	var out []types.Volume
	for _, id := range in.VolumeIds {
		out = append(out, f.Volumes[id]...)
	}
	return &ec2.DescribeVolumesOutput{Volumes: out}, nil
}

func (f *FakeEC2) DescribeImages(_ context.Context, in *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	f.record("DescribeImages")
	if f.Err != nil {
		return nil, f.Err
	}
	var out []types.Image
	for _, id := range in.ImageIds {
		out = append(out, f.Images[id]...)
	}
	return &ec2.DescribeImagesOutput{Images: out}, nil
}

func (f *FakeEC2) DescribeSecurityGroupRules(_ context.Context, in *ec2.DescribeSecurityGroupRulesInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupRulesOutput, error) {
	f.record("DescribeSecurityGroupRules")
	if f.Err != nil {
		return nil, f.Err
	}
	var all []types.SecurityGroupRule
	for _, id := range filterValues(in.Filters, "group-id") {
		all = append(all, f.Rules[id]...)
	}
	if f.RulePageSize <= 0 || len(all) <= f.RulePageSize {
		return &ec2.DescribeSecurityGroupRulesOutput{SecurityGroupRules: all}, nil
	}

	pages := (len(all) + f.RulePageSize - 1) / f.RulePageSize
	i, err := pageIndex(in.NextToken, pages)
	if err != nil {
		return nil, err
	}
	end := min((i+1)*f.RulePageSize, len(all))
	return &ec2.DescribeSecurityGroupRulesOutput{
		SecurityGroupRules: all[i*f.RulePageSize : end],
		NextToken:          nextToken(i, pages),
	}, nil
}

func (f *FakeEC2) DescribeAvailabilityZones(_ context.Context, in *ec2.DescribeAvailabilityZonesInput, _ ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error) {
	f.record("DescribeAvailabilityZones")
	if f.Err != nil {
		return nil, f.Err
	}
	var out []types.AvailabilityZone
	for _, name := range filterValues(in.Filters, "zone-name") {
		out = append(out, f.Zones[name]...)
	}
	return &ec2.DescribeAvailabilityZonesOutput{AvailabilityZones: out}, nil
}

func filterValues(filters []types.Filter, name string) []string {
	for _, f := range filters {
		if aws.ToString(f.Name) == name {
			return f.Values
		}
	}
	return nil
}

// pageIndex decodes the "page-N" tokens handed out by nextToken
func pageIndex(token *string, pages int) (int, error) {
	if token == nil {
		return 0, nil
	}
	i, err := strconv.Atoi(strings.TrimPrefix(*token, "page-"))
	if err != nil || i <= 0 || i >= pages {
		return 0, fmt.Errorf("awstest: invalid pagination token %q", *token)
	}
	return i, nil
}

func nextToken(i, pages int) *string {
	if i+1 >= pages {
		return nil
	}
	return aws.String("page-" + strconv.Itoa(i+1))
}

// InstanceSpec describes an instance for Instance. State defaults to running.
type InstanceSpec struct {
	ID        string
	State     types.InstanceStateName
	Type      string
	ImageID   string
	VolumeID  string
	Zone      string
	PublicIP  string
	PrivateIP string
	GroupIDs  []string
	Tags      map[string]string
}

// Instance builds an EC2 instance whose root device is VolumeID
func Instance(spec InstanceSpec) types.Instance {
	inst := types.Instance{
		InstanceId:     aws.String(spec.ID),
		InstanceType:   types.InstanceType(spec.Type),
		ImageId:        aws.String(spec.ImageID),
		RootDeviceName: aws.String("/dev/xvda"),
		Placement:      &types.Placement{AvailabilityZone: aws.String(spec.Zone)},
		State:          &types.InstanceState{Name: types.InstanceStateNameRunning},
	}
	if spec.State != "" {
		inst.State.Name = spec.State
	}
	if spec.VolumeID != "" {
		inst.BlockDeviceMappings = []types.InstanceBlockDeviceMapping{{
			DeviceName: aws.String("/dev/xvda"),
			Ebs:        &types.EbsInstanceBlockDevice{VolumeId: aws.String(spec.VolumeID)},
		}}
	}
	if spec.PublicIP != "" {
		inst.PublicIpAddress = aws.String(spec.PublicIP)
	}
	if spec.PrivateIP != "" {
		inst.PrivateIpAddress = aws.String(spec.PrivateIP)
	}
	for _, id := range spec.GroupIDs {
		inst.SecurityGroups = append(inst.SecurityGroups, types.GroupIdentifier{GroupId: aws.String(id)})
	}
	keys := make([]string, 0, len(spec.Tags))
	for k := range spec.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		inst.Tags = append(inst.Tags, types.Tag{Key: aws.String(k), Value: aws.String(spec.Tags[k])})
	}
	return inst
}

// Reservation wraps instances into a single reservation
func Reservation(instances ...types.Instance) types.Reservation {
	return types.Reservation{Instances: instances}
}

// Volume returns a volume of the given size in GiB
func Volume(id string, size int32) types.Volume {
	return types.Volume{VolumeId: aws.String(id), Size: aws.Int32(size)}
}

// Image returns an image with the given description
func Image(id, description string) types.Image {
	return types.Image{ImageId: aws.String(id), Description: aws.String(description)}
}

// Zone returns an availability zone belonging to region
func Zone(name, region string) types.AvailabilityZone {
	return types.AvailabilityZone{ZoneName: aws.String(name), RegionName: aws.String(region)}
}

// IngressFromCIDR returns an inbound TCP rule on port open to cidr
func IngressFromCIDR(groupID string, port int32, cidr string) types.SecurityGroupRule {
	return rule(groupID, port, false, aws.String(cidr), nil)
}

// IngressFromGroup returns an inbound TCP rule on port open to another group
func IngressFromGroup(groupID string, port int32, sourceGroupID string) types.SecurityGroupRule {
	return rule(groupID, port, false, nil, &types.ReferencedSecurityGroup{GroupId: aws.String(sourceGroupID)})
}

// EgressToCIDR returns an outbound all-traffic rule to cidr
func EgressToCIDR(groupID, cidr string) types.SecurityGroupRule {
	r := rule(groupID, -1, true, aws.String(cidr), nil)
	r.IpProtocol = aws.String("-1")
	return r
}

func rule(groupID string, port int32, egress bool, cidr *string, ref *types.ReferencedSecurityGroup) types.SecurityGroupRule {
	direction := "in"
	if egress {
		direction = "out"
	}
	return types.SecurityGroupRule{
		SecurityGroupRuleId: aws.String(fmt.Sprintf("sgr-%s-%s-%d", groupID, direction, port)),
		GroupId:             aws.String(groupID),
		IpProtocol:          aws.String("tcp"),
		FromPort:            aws.Int32(port),
		ToPort:              aws.Int32(port),
		IsEgress:            aws.Bool(egress),
		CidrIpv4:            cidr,
		ReferencedGroupInfo: ref,
	}
}

// TwoTier returns a deployment of one public web instance and one private
// instance reachable only from the public instance's security group, split
// over two DescribeInstances pages.
func TwoTier() *FakeEC2 {
	public := Instance(InstanceSpec{
		ID: "i-public", Type: "t3.micro", ImageID: "ami-1", VolumeID: "vol-public",
		Zone: "eu-central-1a", PublicIP: "3.120.0.10", PrivateIP: "10.0.1.10",
		GroupIDs: []string{"sg-public"}, Tags: map[string]string{"cloudx": "qa"},
	})
	private := Instance(InstanceSpec{
		ID: "i-private", Type: "t3.micro", ImageID: "ami-1", VolumeID: "vol-private",
		Zone: "eu-central-1b", PrivateIP: "10.0.2.20",
		GroupIDs: []string{"sg-private"}, Tags: map[string]string{"cloudx": "qa"},
	})
	return &FakeEC2{
		InstancePages: [][]types.Reservation{
			{Reservation(public)},
			{Reservation(private)},
		},
		Volumes: map[string][]types.Volume{
			"vol-public":  {Volume("vol-public", 8)},
			"vol-private": {Volume("vol-private", 8)},
		},
		Images: map[string][]types.Image{
			"ami-1": {Image("ami-1", "Amazon Linux 2 Kernel 5.10 AMI 2.0.20240131.0 x86_64 HVM gp2")},
		},
		Rules: map[string][]types.SecurityGroupRule{
			"sg-public": {
				IngressFromCIDR("sg-public", 22, "0.0.0.0/0"),
				IngressFromCIDR("sg-public", 80, "0.0.0.0/0"),
				EgressToCIDR("sg-public", "0.0.0.0/0"),
			},
			"sg-private": {
				IngressFromGroup("sg-private", 22, "sg-public"),
				IngressFromGroup("sg-private", 80, "sg-public"),
				EgressToCIDR("sg-private", "0.0.0.0/0"),
			},
		},
		Zones: map[string][]types.AvailabilityZone{
			"eu-central-1a": {Zone("eu-central-1a", "eu-central-1")},
			"eu-central-1b": {Zone("eu-central-1b", "eu-central-1")},
		},
	}
}
