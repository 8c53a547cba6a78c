package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/samber/lo"

	"github.com/hemantobora/cloudcheck/internal/log"
	"github.com/hemantobora/cloudcheck/internal/models"
)

// IdentityAPI is the subset of the IAM client the identity retriever reads from
type IdentityAPI interface {
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	GetGroup(ctx context.Context, params *iam.GetGroupInput, optFns ...func(*iam.Options)) (*iam.GetGroupOutput, error)
	ListAttachedGroupPolicies(ctx context.Context, params *iam.ListAttachedGroupPoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedGroupPoliciesOutput, error)
	ListAttachedRolePolicies(ctx context.Context, params *iam.ListAttachedRolePoliciesInput, optFns ...func(*iam.Options)) (*iam.ListAttachedRolePoliciesOutput, error)
	ListPolicies(ctx context.Context, params *iam.ListPoliciesInput, optFns ...func(*iam.Options)) (*iam.ListPoliciesOutput, error)
	GetPolicyVersion(ctx context.Context, params *iam.GetPolicyVersionInput, optFns ...func(*iam.Options)) (*iam.GetPolicyVersionOutput, error)
}

func userName(u types.User, _ int) string { return aws.ToString(u.UserName) }

func policyName(p types.AttachedPolicy, _ int) string { return aws.ToString(p.PolicyName) }

// ListAllUsers returns the name of every IAM user in the account
func ListAllUsers(ctx context.Context, client IdentityAPI) ([]string, error) {
	return collectPages(ctx, "ListUsers", func(ctx context.Context, marker *string) (page[string], error) {
		out, err := client.ListUsers(ctx, &iam.ListUsersInput{Marker: marker})
		if err != nil {
			return page[string]{}, apiError("iam", "ListUsers", "*", err)
		}
		return markerPage(lo.Map(out.Users, userName), out.IsTruncated, out.Marker), nil
	})
}

// ListGroupMembers returns the names of the users in groupName
func ListGroupMembers(ctx context.Context, client IdentityAPI, groupName string) ([]string, error) {
	return collectPages(ctx, "GetGroup", func(ctx context.Context, marker *string) (page[string], error) {
		out, err := client.GetGroup(ctx, &iam.GetGroupInput{
			GroupName: aws.String(groupName),
			Marker:    marker,
		})
		if err != nil {
			return page[string]{}, apiError("iam", "GetGroup", groupName, err)
		}
		return markerPage(lo.Map(out.Users, userName), out.IsTruncated, out.Marker), nil
	})
}

// ListGroupPolicyNames returns the names of the managed policies attached to groupName
func ListGroupPolicyNames(ctx context.Context, client IdentityAPI, groupName string) ([]string, error) {
	return collectPages(ctx, "ListAttachedGroupPolicies", func(ctx context.Context, marker *string) (page[string], error) {
		out, err := client.ListAttachedGroupPolicies(ctx, &iam.ListAttachedGroupPoliciesInput{
			GroupName: aws.String(groupName),
			Marker:    marker,
		})
		if err != nil {
			return page[string]{}, apiError("iam", "ListAttachedGroupPolicies", groupName, err)
		}
		return markerPage(lo.Map(out.AttachedPolicies, policyName), out.IsTruncated, out.Marker), nil
	})
}

// ListRolePolicyNames returns the names of the managed policies attached to roleName
func ListRolePolicyNames(ctx context.Context, client IdentityAPI, roleName string) ([]string, error) {
	return collectPages(ctx, "ListAttachedRolePolicies", func(ctx context.Context, marker *string) (page[string], error) {
		out, err := client.ListAttachedRolePolicies(ctx, &iam.ListAttachedRolePoliciesInput{
			RoleName: aws.String(roleName),
			Marker:   marker,
		})
		if err != nil {
			return page[string]{}, apiError("iam", "ListAttachedRolePolicies", roleName, err)
		}
		return markerPage(lo.Map(out.AttachedPolicies, policyName), out.IsTruncated, out.Marker), nil
	})
}

// ResolvePolicyByName finds the first policy named policyName and decodes the
// document of its default version. When no page contains the name the zero
// IdentityPolicy is returned with a nil error; callers check Found().
func ResolvePolicyByName(ctx context.Context, client IdentityAPI, policyName string) (models.IdentityPolicy, error) {
	var match *types.Policy
	err := walkPages(ctx, "ListPolicies",
		func(ctx context.Context, marker *string) (page[types.Policy], error) {
			out, err := client.ListPolicies(ctx, &iam.ListPoliciesInput{Marker: marker})
			if err != nil {
				return page[types.Policy]{}, apiError("iam", "ListPolicies", policyName, err)
			}
			return markerPage(out.Policies, out.IsTruncated, out.Marker), nil
		},
		func(policies []types.Policy) bool {
			if p, ok := lo.Find(policies, func(p types.Policy) bool {
				return aws.ToString(p.PolicyName) == policyName
			}); ok {
				match = &p
				return false
			}
			return true
		})
	if err != nil {
		return models.IdentityPolicy{}, err
	}
	if match == nil {
		log.Debugf("policy %q not found", policyName)
		return models.IdentityPolicy{}, nil
	}

	arn := aws.ToString(match.Arn)
	out, err := client.GetPolicyVersion(ctx, &iam.GetPolicyVersionInput{
		PolicyArn: match.Arn,
		VersionId: match.DefaultVersionId,
	})
	if err != nil {
		return models.IdentityPolicy{}, apiError("iam", "GetPolicyVersion", arn, err)
	}
	if out.PolicyVersion == nil {
		return models.IdentityPolicy{}, exactlyOne("GetPolicyVersion", arn, "policy version", 0)
	}

	doc, err := models.ParsePolicyDocument(aws.ToString(out.PolicyVersion.Document))
	if err != nil {
		return models.IdentityPolicy{}, err
	}
	log.Debugf("policy %q resolved at version %s with %d statement(s)",
		policyName, aws.ToString(match.DefaultVersionId), len(doc.Statement))
	return models.IdentityPolicy{
		Name:     aws.ToString(match.PolicyName),
		Document: doc,
	}, nil
}
