package aws

import (
	"errors"

	"github.com/aws/smithy-go"

	"github.com/hemantobora/cloudcheck/internal/models"
)

// apiError wraps an SDK error in a ProviderError, carrying the AWS error
// code when the service returned one.
func apiError(service, operation, resource string, err error) error {
	pe := &models.ProviderError{
		Service:   service,
		Operation: operation,
		Resource:  resource,
		Cause:     err,
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		pe.Code = apiErr.ErrorCode()
	}
	return pe
}

func exactlyOne(operation, resource, what string, got int) error {
	if got == 1 {
		return nil
	}
	return &models.PreconditionError{
		Operation: operation,
		Resource:  resource,
		Expected:  "exactly one " + what,
		Got:       got,
	}
}
