// Package status exports errors produced by the core package.
package status

import (
	"github.com/oneconcern/collection-registry/pkg/errors"
)

var (
	// ErrInvalidArgument indicates a caller error, such as submitting directly to the trunk branch
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrSchemaValidation indicates that metadata does not conform to its variety's schema
	ErrSchemaValidation = errors.New("schema validation failed")

	// ErrRetryExhausted indicates that the aggregate view kept changing under our feet
	ErrRetryExhausted = errors.New("retries exhausted while merging aggregate view")

	// ErrSubmissionFailed indicates that transient remote failures persisted beyond the retry budget
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrNoManifest indicates that a collection does not publish a manifest
	ErrNoManifest = errors.New("no manifest for collection")

	// ErrCollectionFailed indicates that one or more collections could not be updated
	ErrCollectionFailed = errors.New("updates failed for some collections")
)
