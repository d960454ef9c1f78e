// Package fetch downloads schema documents over HTTP(S).
//
// Responses are decompressed according to their Content-Encoding, capped in
// size, and returned together with a source name derived from the URL path so
// that extension-based format hints keep working:
//
//	data, name, err := fetch.Schema(ctx, "https://example.com/schemas/door.yaml.br")
//	schema, err := statemachine.LoadConfigFromBytes(data, statemachine.WithSourceName(name))
//
// # Environment Variables
//
//   - FSM_FETCH_TIMEOUT: overall request timeout (default: 30s)
//   - FSM_FETCH_MAX_BYTES: maximum decoded document size (default: 4 MiB)
//   - FSM_FETCH_ATTEMPTS: total attempts for transient failures (default: 3)
//   - FSM_FETCH_DNS_CACHE: resolve hosts through a caching resolver (default: false)
//   - HTTP_TRANSPORT_*: dial, keep-alive, idle and TLS handshake tuning
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/amp-labs/amp-fsm/envutil"
	"github.com/amp-labs/amp-fsm/retry"
	"github.com/amp-labs/amp-fsm/should"
)

const (
	defaultMaxBytes = 4 << 20
	defaultTimeout  = 30 * time.Second
	defaultAttempts = 3

	acceptEncoding = "gzip, deflate, br, zstd"
	accept         = "application/yaml, application/json;q=0.9, text/plain;q=0.5, */*;q=0.1"
)

var (
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
	ErrUnexpectedStatus  = errors.New("unexpected HTTP status")
	ErrTooLarge          = errors.New("document exceeds size limit")
)

// IsURL reports whether s should be fetched rather than read from disk.
func IsURL(s string) bool {
	lower := strings.ToLower(s)

	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// Schema fetches the document at rawURL, retrying transient failures. The
// second return value is the last path element of the URL, suitable as a
// compile source name.
func Schema(ctx context.Context, rawURL string, opts ...Option) ([]byte, string, error) {
	target, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", fmt.Errorf("invalid schema URL %q: %w", rawURL, err)
	}

	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, target.Scheme)
	}

	cfg := readOptions(ctx, opts...)

	timeout := envutil.Duration(ctx, "FSM_FETCH_TIMEOUT", envutil.Default(defaultTimeout)).
		ValueOrElse(defaultTimeout)

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := &http.Client{Transport: roundTripper(ctx, cfg)}

	data, err := retry.DoValue(ctx, func(ctx context.Context) ([]byte, error) {
		return get(ctx, client, target, cfg.MaxBytes)
	}, retry.WithAttempts(cfg.Attempts))
	if err != nil {
		return nil, "", err
	}

	return data, sourceName(target), nil
}

// get performs one request. Client errors and oversized documents abort the
// retry loop; transport errors, 429 and 5xx responses are retried.
func get(ctx context.Context, client *http.Client, target *url.URL, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, retry.Abort(err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Encoding", acceptEncoding)

	rsp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch schema %q: %w", target.Redacted(), err)
	}

	defer should.Close(ctx, rsp.Body, "failed to close schema response body")

	if rsp.StatusCode < http.StatusOK || rsp.StatusCode >= http.StatusMultipleChoices {
		err := fmt.Errorf("%w: %s from %s", ErrUnexpectedStatus, rsp.Status, target.Redacted())
		if rsp.StatusCode == http.StatusTooManyRequests || rsp.StatusCode >= http.StatusInternalServerError {
			return nil, err
		}

		return nil, retry.Abort(err)
	}

	data, err := io.ReadAll(io.LimitReader(rsp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %q: %w", target.Redacted(), err)
	}

	if int64(len(data)) > maxBytes {
		return nil, retry.Abort(fmt.Errorf("%w: more than %d bytes from %s", ErrTooLarge, maxBytes, target.Redacted()))
	}

	return data, nil
}

func sourceName(u *url.URL) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" {
		return u.Host
	}

	return name
}
