package github

import (
	"context"
	"net"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/oneconcern/collection-registry/pkg/errors"
	"github.com/oneconcern/collection-registry/pkg/storage/status"
)

// isExistsMessage tells if a 422 response means that the resource exists already:
// a file created without its "sha", an existing ref or pull request
func isExistsMessage(err *gh.ErrorResponse) bool {
	messages := []string{err.Message}
	for _, e := range err.Errors {
		messages = append(messages, e.Message)
	}
	for _, msg := range messages {
		lower := strings.ToLower(msg)
		if strings.Contains(lower, "sha") || strings.Contains(lower, "already exists") {
			return true
		}
	}
	return false
}

func codeErrors(code int, err error) error {
	switch {
	case code == http.StatusNotFound:
		return status.ErrNotFound.Wrap(err)
	case code == http.StatusConflict:
		return status.ErrConflict.Wrap(err)
	case code == http.StatusUnauthorized:
		return status.ErrUnauthorized.Wrap(err)
	case code == http.StatusForbidden:
		return status.ErrForbidden.Wrap(err)
	case code == http.StatusTooManyRequests || code >= http.StatusInternalServerError:
		return status.ErrTransient.Wrap(err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}

func apiErrors(err *gh.ErrorResponse) error {
	code := 0
	if err.Response != nil {
		code = err.Response.StatusCode
	}
	if code == http.StatusUnprocessableEntity {
		switch {
		case isExistsMessage(err):
			return status.ErrExists.Wrap(err)
		case strings.Contains(strings.ToLower(err.Message), "does not exist"):
			// e.g. deleting a ref which is already gone
			return status.ErrNotFound.Wrap(err)
		}
	}
	return codeErrors(code, err)
}

// toSentinelErrors returns sentinel errors defined by the status package
func toSentinelErrors(resp *gh.Response, err error) error {
	if err == nil {
		return nil
	}
	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		apiErr   *gh.ErrorResponse
		netErr   net.Error
	)
	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		return status.ErrTransient.Wrap(err)
	case errors.Is(err, context.DeadlineExceeded):
		return status.ErrTransient.Wrap(err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.As(err, &apiErr):
		return apiErrors(apiErr)
	case errors.As(err, &netErr):
		return status.ErrTransient.Wrap(err)
	case resp != nil && resp.Response != nil:
		return codeErrors(resp.StatusCode, err)
	default:
		return status.ErrStorageAPI.Wrap(err)
	}
}
