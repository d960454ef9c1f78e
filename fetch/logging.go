package fetch

import (
	"fmt"
	"net/http"
	"time"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/google/uuid"
)

// loggingTransport logs every request and its outcome under a shared
// correlation id.
type loggingTransport struct {
	transport http.RoundTripper
}

var _ http.RoundTripper = (*loggingTransport)(nil)

func newLoggingTransport(rt http.RoundTripper) http.RoundTripper {
	return &loggingTransport{transport: rt}
}

func (l *loggingTransport) RoundTrip(request *http.Request) (*http.Response, error) {
	uuid7, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("error generating UUID: %w", err)
	}

	log := logger.Get(request.Context()).With(
		"correlation_id", uuid7.String(),
		"method", request.Method,
		"url", request.URL.Redacted())

	log.Debug("HTTP request")

	start := time.Now()

	response, err := l.transport.RoundTrip(request)
	if err != nil {
		log.Error("HTTP request failed", "error", err, "duration", time.Since(start))

		return response, err
	}

	log.Debug("HTTP response",
		"status", response.StatusCode,
		"content_type", response.Header.Get("Content-Type"),
		"duration", time.Since(start))

	return response, nil
}
