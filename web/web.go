// Package web fetches pages, parses them, and resolves the links found on
// them.
package web

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyVisited is returned by Visitor.Visit when the url has
	// already been claimed. No request is sent in that case.
	ErrAlreadyVisited = errors.New("url already visited")

	log = logrus.StandardLogger()
)

func SetLogger(l *logrus.Logger) { log = l }
func GetLogger() *logrus.Logger  { return log }

// ErrorKind classifies why a page could not be visited.
type ErrorKind int

const (
	// KindTransport is a connection, timeout, or TLS failure.
	KindTransport ErrorKind = iota + 1
	// KindStatus is a response with a non-2xx status code.
	KindStatus
	// KindBodyRead is an I/O error while reading the response body.
	KindBodyRead
	// KindParse is a document the html parser gave up on.
	KindParse
	// KindDedupStore is a visited set that could not be reached.
	KindDedupStore
)

func (k ErrorKind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindStatus:
		return "http status"
	case KindBodyRead:
		return "body read"
	case KindParse:
		return "parse"
	case KindDedupStore:
		return "dedup store"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// FetchError is returned when a url could not be visited. The url stays in
// the visited set so it is not retried.
type FetchError struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // only set for KindStatus
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("%s %s: %d %s", e.Kind, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	if e.Err == nil {
		return fmt.Sprintf("%s %s", e.Kind, e.URL)
	}
	return fmt.Sprintf("%s %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *FetchError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var fe *FetchError
	return errors.As(err, &fe) && fe.Kind == kind
}
