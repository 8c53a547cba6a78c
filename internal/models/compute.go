// Package models provides the records assembled from cloud API responses
package models

import "github.com/samber/lo"

// ComputeInstance is the composite view of one running EC2 instance, joined
// from the instance, its root volume, its image, its security group rules
// and its availability zone.
type ComputeInstance struct {
	InstanceID       string       `json:"instance_id"`
	Type             string       `json:"type"`
	IsPrivate        bool         `json:"is_private"` // no public address assigned
	Tags             []string     `json:"tags"`       // "key:value"
	StorageSize      int32        `json:"storage_size"`
	ImageDescription string       `json:"image_description"`
	PublicAddress    string       `json:"public_address,omitempty"`
	PrivateAddress   string       `json:"private_address,omitempty"`
	AccessGroupIDs   []string     `json:"access_group_ids"`
	InboundRules     []AccessRule `json:"inbound_rules"`
	OutboundRules    []AccessRule `json:"outbound_rules"`
	AvailabilityZone string       `json:"availability_zone"`
	Region           string       `json:"region"`
}

// AccessRule is a single security group rule
type AccessRule struct {
	RuleID            string `json:"rule_id"`
	GroupID           string `json:"group_id"`
	Protocol          string `json:"protocol"`
	FromPort          int32  `json:"from_port"`
	ToPort            int32  `json:"to_port"`
	CIDR              string `json:"cidr,omitempty"`
	ReferencedGroupID string `json:"referenced_group_id,omitempty"`
	Egress            bool   `json:"egress"`
}

// HasTag reports whether the instance carries the given "key:value" tag
func (i ComputeInstance) HasTag(tag string) bool {
	return lo.Contains(i.Tags, tag)
}

// FormatTag renders a tag the way ComputeInstance.Tags stores it
func FormatTag(key, value string) string {
	return key + ":" + value
}

// InstanceMetadata is what an instance's own HTTP endpoint reports about
// its placement
type InstanceMetadata struct {
	AvailabilityZone string `json:"availability_zone"`
	Region           string `json:"region"`
	PrivateIPv4      string `json:"private_ipv4"`
}

// AccountInfo identifies the caller the checks run as
type AccountInfo struct {
	AccountID string `json:"account_id"`
	UserID    string `json:"user_id"`
	ARN       string `json:"arn"`
	Region    string `json:"region"`
}
