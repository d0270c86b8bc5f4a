package httputil

import (
	"io"
	"net/http"
)

// Doer is anything that can send an http request. *http.Client is the
// usual implementation.
type Doer interface {
	Do(*http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(*http.Request) (*http.Response, error)

func (f DoerFunc) Do(r *http.Request) (*http.Response, error) { return f(r) }

// IsSuccess reports whether status is a 2xx status code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// DefaultGetBody is a GetBody function for requests without a body.
func DefaultGetBody() (io.ReadCloser, error) { return http.NoBody, nil }

// Drain reads up to max bytes from the body and closes it so the
// underlying connection can be reused.
func Drain(body io.ReadCloser, max int64) error {
	_, err := io.Copy(io.Discard, io.LimitReader(body, max))
	if e := body.Close(); err == nil {
		err = e
	}
	return err
}
