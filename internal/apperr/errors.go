package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration indicates a missing credential or invalid setting.
	ErrConfiguration = errors.New("configuration error")

	// ErrUnsupportedProvider indicates an unknown LLM or embedding provider name.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrFetch indicates external content could not be retrieved.
	ErrFetch = errors.New("fetch failed")

	// ErrInvalidURL indicates no video ID could be extracted from a URL.
	ErrInvalidURL = errors.New("invalid url")

	// ErrUnsupportedFileType indicates a file extension with no parser.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrResponseFormat indicates the LLM returned no extractable text.
	ErrResponseFormat = errors.New("unexpected llm response format")

	// ErrDecode indicates text that is not valid UTF-8.
	ErrDecode = errors.New("decode error")
)

// FetchError carries the URL and, when the server answered, its status code.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap exposes both ErrFetch and the transport error, if any.
func (e *FetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrFetch}
	}
	return []error{ErrFetch, e.Err}
}
