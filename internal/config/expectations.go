package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hemantobora/cloudcheck/internal/models"
)

// Expectations describes the environment the checks compare against
type Expectations struct {
	Compute  ComputeExpectations  `yaml:"compute"`
	Identity IdentityExpectations `yaml:"identity"`
}

// ComputeExpectations describes the expected EC2 deployment
type ComputeExpectations struct {
	InstanceCount    int     `yaml:"instance_count"`
	InstanceType     string  `yaml:"instance_type"`
	Tag              string  `yaml:"tag"` // "key:value"
	RootVolumeSize   int32   `yaml:"root_volume_size"`
	ImageDescription string  `yaml:"image_description"` // substring of the AMI description
	AllowedPorts     []int32 `yaml:"allowed_ports"`
	OpenCIDR         string  `yaml:"open_cidr"`
}

// IdentityExpectations lists the IAM entities that must exist
type IdentityExpectations struct {
	Users    []UserExpectation   `yaml:"users"`
	Groups   []AttachExpectation `yaml:"groups"`
	Roles    []AttachExpectation `yaml:"roles"`
	Policies []PolicyExpectation `yaml:"policies"`
}

// UserExpectation is a user that must exist and belong to Group
type UserExpectation struct {
	Name  string `yaml:"name"`
	Group string `yaml:"group"`
}

// AttachExpectation is a group or role that must have Policy attached
type AttachExpectation struct {
	Name   string `yaml:"name"`
	Policy string `yaml:"policy"`
}

// PolicyExpectation is a managed policy with a single expected statement
type PolicyExpectation struct {
	Name     string      `yaml:"name"`
	Action   ActionValue `yaml:"action"`
	Resource string      `yaml:"resource"`
	Effect   string      `yaml:"effect"`
}

// ActionValue reads an IAM action from YAML as either a scalar or a list,
// mirroring the two forms a policy document allows
type ActionValue struct {
	models.Action
}

func (a *ActionValue) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		a.Action = models.SingleAction(value.Value)
		return nil
	case yaml.SequenceNode:
		var actions []string
		if err := value.Decode(&actions); err != nil {
			return err
		}
		a.Action = models.MultipleActions(actions...)
		return nil
	default:
		return fmt.Errorf("line %d: action must be a string or a list of strings", value.Line)
	}
}

// DefaultExpectations returns the reference two-tier deployment: two t3.micro
// instances behind SSH/HTTP security groups and three EC2/S3 access tiers
// of IAM users, groups, roles and policies
func DefaultExpectations() Expectations {
	return Expectations{
		Compute: ComputeExpectations{
			InstanceCount:    2,
			InstanceType:     "t3.micro",
			Tag:              "cloudx:qa",
			RootVolumeSize:   8,
			ImageDescription: "Amazon Linux 2",
			AllowedPorts:     []int32{22, 80},
			OpenCIDR:         "0.0.0.0/0",
		},
		Identity: IdentityExpectations{
			Users: []UserExpectation{
				{Name: "FullAccessUserEC2", Group: "FullAccessGroupEC2"},
				{Name: "FullAccessUserS3", Group: "FullAccessGroupS3"},
				{Name: "ReadAccessUserS3", Group: "ReadAccessGroupS3"},
			},
			Groups: []AttachExpectation{
				{Name: "FullAccessGroupEC2", Policy: "FullAccessPolicyEC2"},
				{Name: "FullAccessGroupS3", Policy: "FullAccessPolicyS3"},
				{Name: "ReadAccessGroupS3", Policy: "ReadAccessPolicyS3"},
			},
			Roles: []AttachExpectation{
				{Name: "FullAccessRoleEC2", Policy: "FullAccessPolicyEC2"},
				{Name: "FullAccessRoleS3", Policy: "FullAccessPolicyS3"},
				{Name: "ReadAccessRoleS3", Policy: "ReadAccessPolicyS3"},
			},
			Policies: []PolicyExpectation{
				{Name: "FullAccessPolicyEC2", Action: ActionValue{models.SingleAction("ec2:*")}, Resource: "*", Effect: "Allow"},
				{Name: "FullAccessPolicyS3", Action: ActionValue{models.SingleAction("s3:*")}, Resource: "*", Effect: "Allow"},
				{
					Name:     "ReadAccessPolicyS3",
					Action:   ActionValue{models.MultipleActions("s3:Describe*", "s3:Get*", "s3:List*")},
					Resource: "*",
					Effect:   "Allow",
				},
			},
		},
	}
}

// LoadExpectations reads path over DefaultExpectations. Sections and fields
// absent from the file keep their defaults; lists present in the file
// replace the default list. An empty path returns the defaults.
func LoadExpectations(path string) (Expectations, error) {
	if path == "" {
		return DefaultExpectations(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Expectations{}, fmt.Errorf("read expectations: %w", err)
	}
	exp, err := ParseExpectations(data)
	if err != nil {
		return Expectations{}, fmt.Errorf("parse expectations %s: %w", path, err)
	}
	if err := exp.Validate(); err != nil {
		return Expectations{}, fmt.Errorf("invalid expectations %s: %w", path, err)
	}
	return exp, nil
}

// ParseExpectations decodes YAML over DefaultExpectations. Unknown keys are
// rejected so that typos do not silently fall back to defaults.
func ParseExpectations(data []byte) (Expectations, error) {
	exp := DefaultExpectations()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&exp); err != nil && !errors.Is(err, io.EOF) {
		return Expectations{}, err
	}
	return exp, nil
}

// Validate reports every entry no check could be evaluated against
func (e Expectations) Validate() error {
	var errs []error
	add := func(format string, args ...interface{}) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	c := e.Compute
	if c.InstanceCount < 0 {
		add("compute.instance_count must not be negative, got %d", c.InstanceCount)
	}
	if _, err := netip.ParsePrefix(c.OpenCIDR); err != nil {
		add("compute.open_cidr: %v", err)
	}
	for _, port := range c.AllowedPorts {
		if port < 0 || port > 65535 {
			add("compute.allowed_ports: %d is not a port", port)
		}
	}

	for i, u := range e.Identity.Users {
		if u.Name == "" || u.Group == "" {
			add("identity.users[%d]: name and group are required", i)
		}
	}
	for i, g := range e.Identity.Groups {
		if g.Name == "" || g.Policy == "" {
			add("identity.groups[%d]: name and policy are required", i)
		}
	}
	for i, r := range e.Identity.Roles {
		if r.Name == "" || r.Policy == "" {
			add("identity.roles[%d]: name and policy are required", i)
		}
	}
	for i, p := range e.Identity.Policies {
		if p.Name == "" {
			add("identity.policies[%d]: name is required", i)
		}
		if len(p.Action.Values()) == 0 {
			add("identity.policies[%d]: action is required", i)
		}
		if p.Effect != "Allow" && p.Effect != "Deny" {
			add("identity.policies[%d]: effect must be Allow or Deny, got %q", i, p.Effect)
		}
	}
	return errors.Join(errs...)
}
