package verify

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	awscloud "github.com/hemantobora/cloudcheck/internal/cloud/aws"
	"github.com/hemantobora/cloudcheck/internal/config"
)

// IdentitySuite checks the IAM users, groups, roles and policies, one check
// per expected entity.
func IdentitySuite(client awscloud.IdentityAPI, exp config.IdentityExpectations) Suite {
	c := identityChecks{client: client}
	var checks []Check
	for _, u := range exp.Users {
		checks = append(checks, Check{
			ID:          "IAM-USER/" + u.Name,
			Description: fmt.Sprintf("user %s exists in group %s", u.Name, u.Group),
			Run:         c.user(u),
		})
	}
	for _, g := range exp.Groups {
		checks = append(checks, Check{
			ID:          "IAM-GROUP/" + g.Name,
			Description: fmt.Sprintf("group %s has policy %s attached", g.Name, g.Policy),
			Run:         c.groupPolicy(g),
		})
	}
	for _, r := range exp.Roles {
		checks = append(checks, Check{
			ID:          "IAM-ROLE/" + r.Name,
			Description: fmt.Sprintf("role %s has policy %s attached", r.Name, r.Policy),
			Run:         c.rolePolicy(r),
		})
	}
	for _, p := range exp.Policies {
		checks = append(checks, Check{
			ID:          "IAM-POLICY/" + p.Name,
			Description: fmt.Sprintf("policy %s allows %s on %s", p.Name, p.Action, p.Resource),
			Run:         c.policy(p),
		})
	}
	return Suite{Name: "identity", Checks: checks}
}

type identityChecks struct {
	client awscloud.IdentityAPI
}

func (c identityChecks) user(exp config.UserExpectation) func(context.Context) error {
	return func(ctx context.Context) error {
		users, err := awscloud.ListAllUsers(ctx, c.client)
		if err != nil {
			return err
		}
		if !lo.Contains(users, exp.Name) {
			return fmt.Errorf("user %s does not exist", exp.Name)
		}
		members, err := awscloud.ListGroupMembers(ctx, c.client, exp.Group)
		if err != nil {
			return err
		}
		if !lo.Contains(members, exp.Name) {
			return fmt.Errorf("user %s is not a member of group %s (members: %v)", exp.Name, exp.Group, members)
		}
		return nil
	}
}

func (c identityChecks) groupPolicy(exp config.AttachExpectation) func(context.Context) error {
	return func(ctx context.Context) error {
		names, err := awscloud.ListGroupPolicyNames(ctx, c.client, exp.Name)
		if err != nil {
			return err
		}
		return expectAttached("group", exp, names)
	}
}

func (c identityChecks) rolePolicy(exp config.AttachExpectation) func(context.Context) error {
	return func(ctx context.Context) error {
		names, err := awscloud.ListRolePolicyNames(ctx, c.client, exp.Name)
		if err != nil {
			return err
		}
		return expectAttached("role", exp, names)
	}
}

func expectAttached(kind string, exp config.AttachExpectation, attached []string) error {
	if lo.Contains(attached, exp.Policy) {
		return nil
	}
	return fmt.Errorf("%s %s does not have policy %s attached (attached: %v)", kind, exp.Name, exp.Policy, attached)
}

func (c identityChecks) policy(exp config.PolicyExpectation) func(context.Context) error {
	return func(ctx context.Context) error {
		policy, err := awscloud.ResolvePolicyByName(ctx, c.client, exp.Name)
		if err != nil {
			return err
		}
		if !policy.Found() {
			return fmt.Errorf("policy %s not found", exp.Name)
		}
		if n := len(policy.Document.Statement); n != 1 {
			return fmt.Errorf("policy %s has %d statements, expected 1", exp.Name, n)
		}

		st := policy.Document.Statement[0]
		var f findings
		f.expect(policy.Name == exp.Name, "resolved policy %q, expected %q", policy.Name, exp.Name)
		f.expect(st.Action.Equal(exp.Action.Action), "action %s, expected %s", st.Action, exp.Action)
		f.expect(st.Resource == exp.Resource, "resource %q, expected %q", st.Resource, exp.Resource)
		f.expect(st.Effect == exp.Effect, "effect %q, expected %q", st.Effect, exp.Effect)
		return f.err()
	}
}
