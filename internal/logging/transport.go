package logging

import (
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport logs every outgoing request made through the wrapped round
// tripper. The logger is taken from the request context when one was
// stashed there.
type Transport struct {
	Base   http.RoundTripper
	Logger logrus.FieldLogger
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	start := time.Now()
	resp, err := base.RoundTrip(req)
	logRoundTrip(t.logger(req), req, resp, err, time.Since(start))
	return resp, err
}

func (t *Transport) logger(req *http.Request) logrus.FieldLogger {
	if _, ok := req.Context().Value(loggingContextKey).(logrus.FieldLogger); ok {
		return FromContext(req.Context())
	}
	if t.Logger != nil {
		return t.Logger
	}
	return logrus.StandardLogger()
}

func logRoundTrip(
	l logrus.FieldLogger,
	req *http.Request,
	resp *http.Response,
	err error,
	latency time.Duration,
) {
	l = l.WithFields(logrus.Fields{
		"method":  req.Method,
		"url":     req.URL.String(),
		"latency": latency,
	})
	if err != nil {
		l.WithError(err).Debug("request failed")
		return
	}
	l = l.WithFields(logrus.Fields{
		"status":         resp.StatusCode,
		"content_length": resp.ContentLength,
	})
	switch {
	case resp.StatusCode >= 500:
		l.Warn("request")
	case resp.StatusCode >= 400:
		l.Info("request")
	default:
		l.Debug("request")
	}
}
