package models

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	json "github.com/json-iterator/go"
	"github.com/samber/lo"
)

// IdentityPolicy is a managed IAM policy resolved to its default version.
// The zero value is the "not found" result of a policy lookup.
type IdentityPolicy struct {
	Name     string          `json:"name"`
	Document *PolicyDocument `json:"document"`
}

// Found reports whether the lookup that produced p matched a policy
func (p IdentityPolicy) Found() bool {
	return p.Name != "" || p.Document != nil
}

// PolicyDocument is the decoded JSON body of a policy version
type PolicyDocument struct {
	Version   string      `json:"Version,omitempty"`
	Statement []Statement `json:"Statement"`
}

// Statement is one entry of a policy document
type Statement struct {
	Sid      string `json:"Sid,omitempty"`
	Action   Action `json:"Action"`
	Resource string `json:"Resource"`
	Effect   string `json:"Effect"`
}

// Action holds a statement's Action element, which IAM allows to be either a
// single string or a list of strings. A list is kept as a set: order and
// duplicates are not significant.
type Action struct {
	values   []string
	multiple bool
}

// SingleAction returns the single-string form of an Action
func SingleAction(action string) Action {
	return Action{values: []string{action}}
}

// MultipleActions returns the list form of an Action
func MultipleActions(actions ...string) Action {
	return Action{values: lo.Uniq(actions), multiple: true}
}

// IsMultiple reports whether the action was written as a list
func (a Action) IsMultiple() bool { return a.multiple }

// Single returns the action string when a is the single-string form
func (a Action) Single() (string, bool) {
	if a.multiple || len(a.values) != 1 {
		return "", false
	}
	return a.values[0], true
}

// Values returns the actions in sorted order regardless of form
func (a Action) Values() []string {
	out := append([]string(nil), a.values...)
	sort.Strings(out)
	return out
}

// Equal compares per form: single strings by value, lists as sets. A single
// string never equals a list, even a one-element list.
func (a Action) Equal(b Action) bool {
	if a.multiple != b.multiple {
		return false
	}
	if len(a.values) != len(b.values) {
		return false
	}
	return lo.Every(a.values, b.values)
}

func (a Action) String() string {
	if !a.multiple {
		s, _ := a.Single()
		return s
	}
	return "[" + strings.Join(a.Values(), " ") + "]"
}

func (a *Action) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*a = SingleAction(single)
		return nil
	}
	var multiple []string
	if err := json.Unmarshal(data, &multiple); err != nil {
		return fmt.Errorf("action must be a string or a list of strings: %w", err)
	}
	*a = MultipleActions(multiple...)
	return nil
}

func (a Action) MarshalJSON() ([]byte, error) {
	if a.multiple {
		return json.Marshal(a.Values())
	}
	s, _ := a.Single()
	return json.Marshal(s)
}

// ParsePolicyDocument decodes a URL-encoded policy document as returned by
// GetPolicyVersion. Unknown fields are ignored.
func ParsePolicyDocument(encoded string) (*PolicyDocument, error) {
	raw, err := url.QueryUnescape(encoded)
	if err != nil {
		return nil, &DocumentError{
			Context: "url decoding",
			Content: encoded,
			Cause:   err,
		}
	}

	var doc PolicyDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, &DocumentError{
			Context: "json decoding",
			Content: raw,
			Cause:   err,
		}
	}
	return &doc, nil
}
