package github

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Option is a functor to pass optional parameters to the github store
type Option func(*githubStore)

// Logger specifies a logger for this store
func Logger(logger *zap.Logger) Option {
	return func(g *githubStore) {
		if logger != nil {
			g.l = logger
		}
	}
}

// Token authenticates calls to the API
func Token(token string) Option {
	return func(g *githubStore) {
		g.token = token
	}
}

// BaseURL of the REST API, e.g. https://github.example.com/api/v3/
func BaseURL(u string) Option {
	return func(g *githubStore) {
		if u != "" {
			g.baseURL = u
		}
	}
}

// HTTPClient used to reach the API. Authentication is layered on top of its transport.
func HTTPClient(client *http.Client) Option {
	return func(g *githubStore) {
		if client != nil {
			g.httpClient = client
		}
	}
}

// RequestsPerSecond limits the rate of calls issued by this client. Zero disables the limit.
func RequestsPerSecond(rps float64) Option {
	return func(g *githubStore) {
		g.rps = rps
	}
}

// CallTimeout bounds every single API call
func CallTimeout(timeout time.Duration) Option {
	return func(g *githubStore) {
		if timeout > 0 {
			g.timeout = timeout
		}
	}
}
