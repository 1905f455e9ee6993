package llmclient

import "time"

// Hooks are optional callbacks invoked during the request lifecycle. They are
// used to wire metrics without coupling the client to a metrics library.
// Callbacks must be safe for concurrent use and must not block.
type Hooks struct {
	// OnRequest is called before each attempt, including retries
	OnRequest func(endpoint, method, path string)

	// OnResponse is called after each attempt that produced an HTTP response
	OnResponse func(endpoint, method, path string, statusCode int, duration time.Duration)

	// OnRetry is called before the backoff sleep of each retry attempt
	OnRetry func(endpoint string, attempt int)
}

func (h Hooks) request(endpoint, method, path string) {
	if h.OnRequest != nil {
		h.OnRequest(endpoint, method, path)
	}
}

func (h Hooks) response(endpoint, method, path string, statusCode int, duration time.Duration) {
	if h.OnResponse != nil {
		h.OnResponse(endpoint, method, path, statusCode, duration)
	}
}

func (h Hooks) retry(endpoint string, attempt int) {
	if h.OnRetry != nil {
		h.OnRetry(endpoint, attempt)
	}
}
