package httpclient

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/saltyorg/embycord/internal/logging"
)

// maxLoggedBody caps how much of a response body ends up in a trace line
const maxLoggedBody = 4096

type traceTransport struct {
	base http.RoundTripper
	name string
}

// NewTraceTransport returns a RoundTripper that logs requests at trace level.
func NewTraceTransport(name string, base http.RoundTripper) http.RoundTripper {
	return &traceTransport{
		base: base,
		name: name,
	}
}

// NewTraceClient returns an HTTP client that logs requests at trace level.
func NewTraceClient(name string, timeout time.Duration) *http.Client {
	return Wrap(&http.Client{Timeout: timeout}, name)
}

// Wrap applies trace logging to an existing HTTP client.
func Wrap(client *http.Client, name string) *http.Client {
	if client == nil {
		client = &http.Client{}
	}
	client.Transport = NewTraceTransport(name, client.Transport)
	return client
}

func (t *traceTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.base
	if base == nil {
		base = http.DefaultTransport
	}

	// Skip the body copy entirely unless someone is listening at trace level
	if zerolog.GlobalLevel() > zerolog.TraceLevel {
		return base.RoundTrip(req)
	}

	urlStr := redactURL(req.URL)
	start := time.Now()

	log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Interface("headers", redactHeaders(req.Header)).
		Msg("HTTP request")

	resp, err := base.RoundTrip(req)
	duration := time.Since(start)
	if err != nil {
		log.Trace().
			Str("client", t.name).
			Str("method", req.Method).
			Str("url", urlStr).
			Dur("duration", duration).
			Err(err).
			Msg("HTTP request failed")
		return nil, err
	}

	bodyBytes, readErr := readAndRestoreBody(resp)
	logEvent := log.Trace().
		Str("client", t.name).
		Str("method", req.Method).
		Str("url", urlStr).
		Int("status", resp.StatusCode).
		Dur("duration", duration).
		Int("body_length", len(bodyBytes))

	if readErr != nil {
		logEvent.Err(readErr)
	}

	if len(bodyBytes) > 0 {
		if len(bodyBytes) <= maxLoggedBody && json.Valid(bodyBytes) {
			logEvent.RawJSON("body", scrubTokens(bodyBytes))
		} else if len(bodyBytes) <= maxLoggedBody {
			logEvent.Str("body", string(bodyBytes))
		}
	}

	logEvent.Msg("HTTP response")

	return resp, nil
}

func readAndRestoreBody(resp *http.Response) ([]byte, error) {
	if resp == nil || resp.Body == nil {
		return nil, nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	resp.Body = io.NopCloser(bytes.NewReader(bodyBytes))
	return bodyBytes, err
}

// scrubTokens removes AccessToken from authentication responses before they are logged
func scrubTokens(body []byte) []byte {
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return body
	}
	if _, ok := obj["AccessToken"]; !ok {
		return body
	}
	out, err := json.Marshal(logging.Redact(obj))
	if err != nil {
		return body
	}
	return out
}

func redactHeaders(h http.Header) map[string]any {
	fields := make(map[string]any, len(h))
	for k, v := range h {
		fields[k] = strings.Join(v, ",")
	}
	out := logging.Redact(fields)
	if auth, ok := out["Authorization"].(string); ok {
		out["Authorization"] = redactAuthToken(auth)
	}
	return out
}

// redactAuthToken hides the Token="..." part of a MediaBrowser authorization header
func redactAuthToken(header string) string {
	idx := strings.Index(header, "Token=")
	if idx < 0 {
		return header
	}
	return header[:idx] + `Token="redacted"`
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	copyURL := *u
	if copyURL.RawQuery == "" {
		return copyURL.String()
	}

	q := copyURL.Query()
	for key := range q {
		if isSensitiveQueryKey(key) {
			q.Set(key, "redacted")
		}
	}

	copyURL.RawQuery = q.Encode()
	return copyURL.String()
}

func isSensitiveQueryKey(key string) bool {
	switch strings.ToLower(key) {
	case "apikey", "api_key", "api-key", "token", "access_token", "x-emby-token", "authorization", "auth":
		return true
	default:
		return false
	}
}
