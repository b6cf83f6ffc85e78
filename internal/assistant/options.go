package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reinhart/webmd/internal/logger"
)

var (
	ErrNoChoices   = errors.New("no choices in completion response")
	ErrUnknownTool = errors.New("unknown tool")
)

// ProviderOptions holds transport settings shared by all providers.
type ProviderOptions struct {
	BaseURL    string
	HTTPClient *http.Client
	// Timeout applies to the default HTTP client only.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries   int
	RetryBackoff time.Duration
}

// httpClient returns a client whose transport forwards the completion params
// carried by the request context.
func (o ProviderOptions) httpClient() *http.Client {
	var client http.Client
	if o.HTTPClient != nil {
		client = *o.HTTPClient
	} else {
		timeout := o.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		client = http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		}
	}
	base := client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	client.Transport = &paramsTransport{base: base}
	return &client
}

func (o ProviderOptions) backoff(attempt int) time.Duration {
	base := o.RetryBackoff
	if base <= 0 {
		base = time.Second
	}
	return base << (attempt - 1)
}

// reservedParams are built from the conversation and never taken from params.
var reservedParams = map[string]bool{
	"model":       true,
	"messages":    true,
	"system":      true,
	"tools":       true,
	"tool_choice": true,
	"stream":      true,
}

type paramsKey struct{}

// withParams attaches params to ctx for paramsTransport.
func withParams(ctx context.Context, params map[string]any) context.Context {
	if len(params) == 0 {
		return ctx
	}
	return context.WithValue(ctx, paramsKey{}, params)
}

// checkParams rejects params that cannot be sent as JSON.
func checkParams(params map[string]any) error {
	if len(params) == 0 {
		return nil
	}
	if _, err := json.Marshal(params); err != nil {
		return fmt.Errorf("invalid completion parameters: %w", err)
	}
	return nil
}

// paramsTransport writes the params found in the request context into the
// JSON body of outgoing POSTs, key by key and unchanged.
type paramsTransport struct {
	base http.RoundTripper
}

func (t *paramsTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	params, _ := req.Context().Value(paramsKey{}).(map[string]any)
	if len(params) == 0 || req.Method != http.MethodPost || req.Body == nil {
		return t.base.RoundTrip(req)
	}

	raw, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	body, err := overlayParams(raw, params)
	if err != nil {
		return nil, err
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(body))
	out.ContentLength = int64(len(body))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
	return t.base.RoundTrip(out)
}

// overlayParams sets each param on the JSON object in raw. Reserved keys keep
// the value the provider built.
func overlayParams(raw []byte, params map[string]any) ([]byte, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("completion request body is not a JSON object: %w", err)
	}
	for key, value := range params {
		if reservedParams[key] {
			logger.Warn("Ignoring completion parameter %q", key)
			continue
		}
		encoded, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("invalid completion parameters: %w", err)
		}
		fields[key] = encoded
	}
	return json.Marshal(fields)
}

// decodeParams copies an open parameter bag onto a provider request struct by
// round-tripping it through JSON, so keys match the wire names of the API.
func decodeParams(params map[string]any, into any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, into)
}
