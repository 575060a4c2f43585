// Copyright © 2018 One Concern

// Package status declares error constants returned by
// implementations of the Store interface.
//
// NOTE: such constants are located in a separate package to avoid
// creating undue cyclical dependencies between pkg/storage and one
// of its implementions.
package status

import "github.com/oneconcern/collection-registry/pkg/errors"

var (
	// Sentinel errors returned by implementations of the interfaces defined by storage

	// ErrNotFound indicates that the target file, directory, branch or release does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates that the version token (SHA) supplied with a write is stale
	ErrConflict = errors.New("conflict: stale version token")

	// ErrExists indicates that the resource already exists and cannot be created again
	ErrExists = errors.New("exists already")

	// ErrUnauthorized indicates that you don't provided correct credentials to the API
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates that the backend API forbids access to the target resource
	ErrForbidden = errors.New("forbidden")

	// ErrTransient indicates a failure which may succeed when retried (timeouts, 5xx, rate limits)
	ErrTransient = errors.New("transient storage failure")

	// ErrInvalidPath indicates that a path or ref name is not acceptable
	ErrInvalidPath = errors.New("invalid path")

	// ErrStorageAPI indicates any other storage API error
	ErrStorageAPI = errors.New("storage API error")
)
