package aws

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"github.com/samber/lo"

	"github.com/hemantobora/cloudcheck/internal/log"
	"github.com/hemantobora/cloudcheck/internal/models"
)

// ComputeAPI is the subset of the EC2 client the compute retriever reads from
type ComputeAPI interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVolumes(ctx context.Context, params *ec2.DescribeVolumesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVolumesOutput, error)
	DescribeImages(ctx context.Context, params *ec2.DescribeImagesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error)
	DescribeSecurityGroupRules(ctx context.Context, params *ec2.DescribeSecurityGroupRulesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupRulesOutput, error)
	DescribeAvailabilityZones(ctx context.Context, params *ec2.DescribeAvailabilityZonesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeAvailabilityZonesOutput, error)
}

// ListRunningInstances returns one ComputeInstance per running instance, in
// the order DescribeInstances returns them. Any lookup that does not yield
// exactly one volume, image or zone aborts the whole listing with a
// *models.PreconditionError.
func ListRunningInstances(ctx context.Context, client ComputeAPI) ([]models.ComputeInstance, error) {
	instances, err := collectPages(ctx, "DescribeInstances", func(ctx context.Context, token *string) (page[types.Instance], error) {
		out, err := client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
			Filters: []types.Filter{{
				Name:   aws.String("instance-state-name"),
				Values: []string{string(types.InstanceStateNameRunning)},
			}},
			NextToken: token,
		})
		if err != nil {
			return page[types.Instance]{}, apiError("ec2", "DescribeInstances", "instance-state-name=running", err)
		}
		var items []types.Instance
		for _, r := range out.Reservations {
			items = append(items, r.Instances...)
		}
		return tokenPage(items, out.NextToken), nil
	})
	if err != nil {
		return nil, err
	}

	result := make([]models.ComputeInstance, 0, len(instances))
	for _, inst := range instances {
		record, err := describeInstance(ctx, client, inst)
		if err != nil {
			return nil, err
		}
		result = append(result, record)
	}
	log.Debugf("resolved %d running instance(s)", len(result))
	return result, nil
}

func describeInstance(ctx context.Context, client ComputeAPI, inst types.Instance) (models.ComputeInstance, error) {
	instanceID := aws.ToString(inst.InstanceId)

	size, err := rootVolumeSize(ctx, client, inst)
	if err != nil {
		return models.ComputeInstance{}, err
	}

	description, err := imageDescription(ctx, client, aws.ToString(inst.ImageId))
	if err != nil {
		return models.ComputeInstance{}, err
	}

	groupIDs := lo.Map(inst.SecurityGroups, func(g types.GroupIdentifier, _ int) string {
		return aws.ToString(g.GroupId)
	})
	rules, err := securityGroupRules(ctx, client, groupIDs)
	if err != nil {
		return models.ComputeInstance{}, err
	}
	outbound, inbound := lo.FilterReject(rules, func(r models.AccessRule, _ int) bool {
		return r.Egress
	})

	var zone string
	if inst.Placement != nil {
		zone = aws.ToString(inst.Placement.AvailabilityZone)
	}
	region, err := zoneRegion(ctx, client, zone)
	if err != nil {
		return models.ComputeInstance{}, err
	}

	publicAddress := aws.ToString(inst.PublicIpAddress)
	return models.ComputeInstance{
		InstanceID: instanceID,
		Type:       string(inst.InstanceType),
		IsPrivate:  publicAddress == "",
		Tags: lo.Map(inst.Tags, func(t types.Tag, _ int) string {
			return models.FormatTag(aws.ToString(t.Key), aws.ToString(t.Value))
		}),
		StorageSize:      size,
		ImageDescription: description,
		PublicAddress:    publicAddress,
		PrivateAddress:   aws.ToString(inst.PrivateIpAddress),
		AccessGroupIDs:   groupIDs,
		InboundRules:     inbound,
		OutboundRules:    outbound,
		AvailabilityZone: zone,
		Region:           region,
	}, nil
}

// rootVolumeID picks the EBS mapping of the root device, falling back to the
// first mapping when the root device name matches none.
func rootVolumeID(inst types.Instance) (string, bool) {
	ebs := lo.Filter(inst.BlockDeviceMappings, func(m types.InstanceBlockDeviceMapping, _ int) bool {
		return m.Ebs != nil && aws.ToString(m.Ebs.VolumeId) != ""
	})
	if len(ebs) == 0 {
		return "", false
	}
	root, ok := lo.Find(ebs, func(m types.InstanceBlockDeviceMapping) bool {
		return inst.RootDeviceName != nil && aws.ToString(m.DeviceName) == aws.ToString(inst.RootDeviceName)
	})
	if !ok {
		root = ebs[0]
	}
	return aws.ToString(root.Ebs.VolumeId), true
}

func rootVolumeSize(ctx context.Context, client ComputeAPI, inst types.Instance) (int32, error) {
	volumeID, ok := rootVolumeID(inst)
	if !ok {
		return 0, exactlyOne("resolve-root-volume", aws.ToString(inst.InstanceId), "EBS root device mapping", 0)
	}

	out, err := client.DescribeVolumes(ctx, &ec2.DescribeVolumesInput{
		VolumeIds: []string{volumeID},
	})
	if err != nil {
		return 0, apiError("ec2", "DescribeVolumes", volumeID, err)
	}
	if err := exactlyOne("DescribeVolumes", volumeID, "volume", len(out.Volumes)); err != nil {
		return 0, err
	}
	return aws.ToInt32(out.Volumes[0].Size), nil
}

func imageDescription(ctx context.Context, client ComputeAPI, imageID string) (string, error) {
	out, err := client.DescribeImages(ctx, &ec2.DescribeImagesInput{
		ImageIds: []string{imageID},
	})
	if err != nil {
		return "", apiError("ec2", "DescribeImages", imageID, err)
	}
	if err := exactlyOne("DescribeImages", imageID, "image", len(out.Images)); err != nil {
		return "", err
	}
	return aws.ToString(out.Images[0].Description), nil
}

// securityGroupRules returns every rule of the given groups. An instance
// without groups has no rules; the filter is never sent empty because that
// would match every rule in the account.
func securityGroupRules(ctx context.Context, client ComputeAPI, groupIDs []string) ([]models.AccessRule, error) {
	if len(groupIDs) == 0 {
		return nil, nil
	}
	resource := strings.Join(groupIDs, ",")
	rules, err := collectPages(ctx, "DescribeSecurityGroupRules", func(ctx context.Context, token *string) (page[types.SecurityGroupRule], error) {
		out, err := client.DescribeSecurityGroupRules(ctx, &ec2.DescribeSecurityGroupRulesInput{
			Filters: []types.Filter{{
				Name:   aws.String("group-id"),
				Values: groupIDs,
			}},
			NextToken: token,
		})
		if err != nil {
			return page[types.SecurityGroupRule]{}, apiError("ec2", "DescribeSecurityGroupRules", resource, err)
		}
		return tokenPage(out.SecurityGroupRules, out.NextToken), nil
	})
	if err != nil {
		return nil, err
	}
	return lo.Map(rules, func(r types.SecurityGroupRule, _ int) models.AccessRule {
		rule := models.AccessRule{
			RuleID:   aws.ToString(r.SecurityGroupRuleId),
			GroupID:  aws.ToString(r.GroupId),
			Protocol: aws.ToString(r.IpProtocol),
			FromPort: aws.ToInt32(r.FromPort),
			ToPort:   aws.ToInt32(r.ToPort),
			CIDR:     aws.ToString(r.CidrIpv4),
			Egress:   aws.ToBool(r.IsEgress),
		}
		if r.ReferencedGroupInfo != nil {
			rule.ReferencedGroupID = aws.ToString(r.ReferencedGroupInfo.GroupId)
		}
		return rule
	}), nil
}

func zoneRegion(ctx context.Context, client ComputeAPI, zone string) (string, error) {
	out, err := client.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []types.Filter{{
			Name:   aws.String("zone-name"),
			Values: []string{zone},
		}},
	})
	if err != nil {
		return "", apiError("ec2", "DescribeAvailabilityZones", zone, err)
	}
	if err := exactlyOne("DescribeAvailabilityZones", zone, "availability zone", len(out.AvailabilityZones)); err != nil {
		return "", err
	}
	return aws.ToString(out.AvailabilityZones[0].RegionName), nil
}
