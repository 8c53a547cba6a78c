package models

import (
	"errors"
	"fmt"
)

// ErrPrecondition marks violations of the cloud state the retrievers assume,
// e.g. an instance whose root volume cannot be resolved to exactly one volume.
var ErrPrecondition = errors.New("precondition violated")

// PreconditionError represents a lookup that did not return exactly the
// number of results the environment is expected to have
type PreconditionError struct {
	Operation string // "describe-volumes", "describe-images", etc.
	Resource  string // volume id, image id, zone name, etc.
	Expected  string // "exactly one volume"
	Got       int
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("%s on '%s': expected %s, got %d",
		e.Operation, e.Resource, e.Expected, e.Got)
}

func (e *PreconditionError) Is(target error) bool {
	return target == ErrPrecondition
}

// ProviderError represents cloud provider API errors
type ProviderError struct {
	Service   string // "ec2", "iam", "sts"
	Operation string // "DescribeInstances", "ListPolicies", etc.
	Resource  string // group name, policy name, etc.
	Code      string // AWS error code when the API returned one
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s %s on resource '%s' failed (%s): %v",
			e.Service, e.Operation, e.Resource, e.Code, e.Cause)
	}
	return fmt.Sprintf("%s %s on resource '%s' failed: %v",
		e.Service, e.Operation, e.Resource, e.Cause)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// DocumentError represents a policy document that could not be decoded
type DocumentError struct {
	Context string // "url decoding", "json decoding"
	Content string // truncated document content
	Cause   error
}

func (e *DocumentError) Error() string {
	truncatedContent := e.Content
	if len(truncatedContent) > 100 {
		truncatedContent = truncatedContent[:100] + "..."
	}
	return fmt.Sprintf("policy document %s failed: %v\nContent: %s",
		e.Context, e.Cause, truncatedContent)
}

func (e *DocumentError) Unwrap() error {
	return e.Cause
}

// ProbeError represents a failed request against an instance endpoint
type ProbeError struct {
	URL        string
	StatusCode int
	Cause      error
}

func (e *ProbeError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("endpoint probe %s failed (status %d): %v",
			e.URL, e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("endpoint probe %s failed: %v", e.URL, e.Cause)
}

func (e *ProbeError) Unwrap() error {
	return e.Cause
}
