package awstest

import (
	"context"
	"fmt"
	"net/url"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
)

// FakeIAM serves each listing from pre-split pages. Groups and roles missing
// from the maps answer with NoSuchEntity, like the real service.
type FakeIAM struct {
	UserPages     [][]string
	GroupMembers  map[string][][]string // group -> pages of user names
	GroupPolicies map[string][][]string // group -> pages of policy names
	RolePolicies  map[string][][]string // role -> pages of policy names
	PolicyPages   [][]types.Policy
	Documents     map[string]string // "arn@version" -> URL-encoded document
	Err           error             // returned by every call when set

	mu    sync.Mutex
	calls map[string]int
}

func (f *FakeIAM) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[op]++
}

// Calls returns how many times op was invoked
func (f *FakeIAM) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

// servePage returns page N of pages (selected by marker) and the truncation state
func servePage[T any](pages [][]T, marker *string) ([]T, bool, *string, error) {
	if len(pages) == 0 {
		return nil, false, nil, nil
	}
	i, err := pageIndex(marker, len(pages))
	if err != nil {
		return nil, false, nil, err
	}
	next := nextToken(i, len(pages))
	return pages[i], next != nil, next, nil
}

func users(names []string) []types.User {
	out := make([]types.User, 0, len(names))
	for _, n := range names {
		out = append(out, types.User{UserName: aws.String(n)})
	}
	return out
}

func attached(names []string) []types.AttachedPolicy {
	out := make([]types.AttachedPolicy, 0, len(names))
	for _, n := range names {
		out = append(out, types.AttachedPolicy{
			PolicyName: aws.String(n),
			PolicyArn:  aws.String(PolicyARN(n)),
		})
	}
	return out
}

func noSuchEntity(kind, name string) error {
	return &types.NoSuchEntityException{Message: aws.String(fmt.Sprintf("The %s with name %s cannot be found.", kind, name))}
}

func (f *FakeIAM) ListUsers(_ context.Context, in *iam.ListUsersInput, _ ...func(*iam.Options)) (*iam.ListUsersOutput, error) {
	f.record("ListUsers")
	if f.Err != nil {
		return nil, f.Err
	}
	names, truncated, marker, err := servePage(f.UserPages, in.Marker)
	if err != nil {
		return nil, err
	}
	return &iam.ListUsersOutput{Users: users(names), IsTruncated: truncated, Marker: marker}, nil
}

func (f *FakeIAM) GetGroup(_ context.Context, in *iam.GetGroupInput, _ ...func(*iam.Options)) (*iam.GetGroupOutput, error) {
	f.record("GetGroup")
	if f.Err != nil {
		return nil, f.Err
	}
	name := aws.ToString(in.GroupName)
	pages, ok := f.GroupMembers[name]
	if !ok {
		return nil, noSuchEntity("group", name)
	}
	names, truncated, marker, err := servePage(pages, in.Marker)
	if err != nil {
		return nil, err
	}
	return &iam.GetGroupOutput{
		Group:       &types.Group{GroupName: aws.String(name)},
		Users:       users(names),
		IsTruncated: truncated,
		Marker:      marker,
	}, nil
}

func (f *FakeIAM) ListAttachedGroupPolicies(_ context.Context, in *iam.ListAttachedGroupPoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedGroupPoliciesOutput, error) {
	f.record("ListAttachedGroupPolicies")
	if f.Err != nil {
		return nil, f.Err
	}
	name := aws.ToString(in.GroupName)
	pages, ok := f.GroupPolicies[name]
	if !ok {
		return nil, noSuchEntity("group", name)
	}
	names, truncated, marker, err := servePage(pages, in.Marker)
	if err != nil {
		return nil, err
	}
	return &iam.ListAttachedGroupPoliciesOutput{AttachedPolicies: attached(names), IsTruncated: truncated, Marker: marker}, nil
}

func (f *FakeIAM) ListAttachedRolePolicies(_ context.Context, in *iam.ListAttachedRolePoliciesInput, _ ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error) {
	f.record("ListAttachedRolePolicies")
	if f.Err != nil {
		return nil, f.Err
	}
	name := aws.ToString(in.RoleName)
	pages, ok := f.RolePolicies[name]
	if !ok {
		return nil, noSuchEntity("role", name)
	}
	names, truncated, marker, err := servePage(pages, in.Marker)
	if err != nil {
		return nil, err
	}
	return &iam.ListAttachedRolePoliciesOutput{AttachedPolicies: attached(names), IsTruncated: truncated, Marker: marker}, nil
}

func (f *FakeIAM) ListPolicies(_ context.Context, in *iam.ListPoliciesInput, _ ...func(*iam.Options)) (*iam.ListPoliciesOutput, error) {
	f.record("ListPolicies")
	if f.Err != nil {
		return nil, f.Err
	}
	policies, truncated, marker, err := servePage(f.PolicyPages, in.Marker)
	if err != nil {
		return nil, err
	}
	return &iam.ListPoliciesOutput{Policies: policies, IsTruncated: truncated, Marker: marker}, nil
}

func (f *FakeIAM) GetPolicyVersion(_ context.Context, in *iam.GetPolicyVersionInput, _ ...func(*iam.Options)) (*iam.GetPolicyVersionOutput, error) {
	f.record("GetPolicyVersion")
	if f.Err != nil {
		return nil, f.Err
	}
	key := aws.ToString(in.PolicyArn) + "@" + aws.ToString(in.VersionId)
	doc, ok := f.Documents[key]
	if !ok {
		return nil, noSuchEntity("policy version", key)
	}
	return &iam.GetPolicyVersionOutput{PolicyVersion: &types.PolicyVersion{
		Document:         aws.String(doc),
		VersionId:        in.VersionId,
		IsDefaultVersion: true,
	}}, nil
}

// PolicyARN returns the customer-managed ARN used by the fakes for name
func PolicyARN(name string) string {
	return "arn:aws:iam::123456789012:policy/" + name
}

// Policy returns a managed policy whose default version is version
func Policy(name, version string) types.Policy {
	return types.Policy{
		PolicyName:       aws.String(name),
		Arn:              aws.String(PolicyARN(name)),
		DefaultVersionId: aws.String(version),
	}
}

// AddDocument registers the plain JSON document for policy name at version,
// URL-encoded the way GetPolicyVersion returns it
func (f *FakeIAM) AddDocument(name, version, document string) {
	if f.Documents == nil {
		f.Documents = map[string]string{}
	}
	f.Documents[PolicyARN(name)+"@"+version] = url.QueryEscape(document)
}

// AccessTiers returns an account holding the EC2 full-access, S3
// full-access and S3 read-only tiers: one user, group, role and policy each,
// with listings split over several pages.
func AccessTiers() *FakeIAM {
	f := &FakeIAM{
		UserPages: [][]string{
			{"admin", "FullAccessUserEC2"},
			{"FullAccessUserS3"},
			{"ReadAccessUserS3", "ci-bot"},
		},
		GroupMembers: map[string][][]string{
			"FullAccessGroupEC2": {{"FullAccessUserEC2"}},
			"FullAccessGroupS3":  {{"admin"}, {"FullAccessUserS3"}},
			"ReadAccessGroupS3":  {{"ReadAccessUserS3"}},
		},
		GroupPolicies: map[string][][]string{
			"FullAccessGroupEC2": {{"FullAccessPolicyEC2"}},
			"FullAccessGroupS3":  {{"FullAccessPolicyS3"}},
			"ReadAccessGroupS3":  {{"IAMUserChangePassword"}, {"ReadAccessPolicyS3"}},
		},
		RolePolicies: map[string][][]string{
			"FullAccessRoleEC2": {{"FullAccessPolicyEC2"}},
			"FullAccessRoleS3":  {{"FullAccessPolicyS3"}},
			"ReadAccessRoleS3":  {{"ReadAccessPolicyS3"}},
		},
		PolicyPages: [][]types.Policy{
			{Policy("AdministratorAccess", "v1"), Policy("FullAccessPolicyEC2", "v1")},
			{Policy("FullAccessPolicyS3", "v2")},
			{Policy("ReadAccessPolicyS3", "v1")},
		},
	}
	f.AddDocument("FullAccessPolicyEC2", "v1",
		`{"Version":"2012-10-17","Statement":[{"Action":"ec2:*","Resource":"*","Effect":"Allow"}]}`)
	f.AddDocument("FullAccessPolicyS3", "v2",
		`{"Version":"2012-10-17","Statement":[{"Action":"s3:*","Resource":"*","Effect":"Allow"}]}`)
	f.AddDocument("ReadAccessPolicyS3", "v1",
		`{"Version":"2012-10-17","Statement":[{"Action":["s3:Get*","s3:List*","s3:Describe*"],"Resource":"*","Effect":"Allow"}]}`)
	return f
}

// FakeSTS answers GetCallerIdentity with fixed values
type FakeSTS struct {
	Account string
	UserID  string
	ARN     string
	Err     error
}

func (f *FakeSTS) GetCallerIdentity(context.Context, *sts.GetCallerIdentityInput, ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	return &sts.GetCallerIdentityOutput{
		Account: aws.String(f.Account),
		UserId:  aws.String(f.UserID),
		Arn:     aws.String(f.ARN),
	}, nil
}
