package feed

import "fmt"

// FetchError means the feed document could not be retrieved: a network
// failure or a non-200 response. Retry policy belongs to the caller.
type FetchError struct {
	URL        string
	StatusCode int // 0 when the request never got a response
	Err        error
}

func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("feed: fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("feed: fetch %s: unexpected status %d", e.URL, e.StatusCode)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// ParseError means the feed responded but the payload was not a valid
// metadata document.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("feed: malformed metadata document: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
