package testsupport

import "fmt"

// ResponseError is returned when the server answers with a non-200 status
type ResponseError struct {
	StatusCode int
	// Body is the parsed JSON body, nil when it was not JSON
	Body map[string]interface{}
	Raw  string
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("visual-test: capture request failed with status %d: %s", e.StatusCode, e.Raw)
}

// RawResponseError carries a response body that is not valid JSON
type RawResponseError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RawResponseError) Error() string {
	return fmt.Sprintf("visual-test: malformed capture response: %s", e.Body)
}

func (e *RawResponseError) Unwrap() error { return e.Err }
