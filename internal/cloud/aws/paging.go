package aws

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/hemantobora/cloudcheck/internal/log"
)

// page is one response of a marker-paginated API reduced to the items the
// caller wants plus the continuation state.
type page[T any] struct {
	items []T
	next  *string // marker / NextToken to send with the following request
	more  bool    // IsTruncated, or "NextToken present" for EC2
}

// fetchFunc issues one request. marker is nil for the first page.
type fetchFunc[T any] func(ctx context.Context, marker *string) (page[T], error)

// walkPages requests pages until the API reports no further results or visit
// returns false. A page claiming more results without a marker ends the walk.
func walkPages[T any](ctx context.Context, op string, fetch fetchFunc[T], visit func(items []T) bool) error {
	var marker *string
	for n := 1; ; n++ {
		p, err := fetch(ctx, marker)
		if err != nil {
			return err
		}
		log.Debugf("%s page %d: %d item(s), more=%t", op, n, len(p.items), p.more)

		if !visit(p.items) || !p.more {
			return nil
		}
		if aws.ToString(p.next) == "" {
			log.Warnf("%s page %d is truncated but carries no marker; stopping", op, n)
			return nil
		}
		marker = p.next
	}
}

// collectPages flattens every page into one slice, preserving arrival order.
func collectPages[T any](ctx context.Context, op string, fetch fetchFunc[T]) ([]T, error) {
	var result []T
	err := walkPages(ctx, op, fetch, func(items []T) bool {
		result = append(result, items...)
		return true
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// tokenPage builds a page for APIs (EC2) whose only continuation signal is
// the presence of a NextToken.
func tokenPage[T any](items []T, next *string) page[T] {
	return page[T]{items: items, next: next, more: aws.ToString(next) != ""}
}

// markerPage builds a page for APIs (IAM) that report IsTruncated and Marker.
func markerPage[T any](items []T, truncated bool, marker *string) page[T] {
	return page[T]{items: items, next: marker, more: truncated}
}
