// Package lambdaapi calls the Lambda Extensions API and Telemetry API that
// the execution environment exposes to extensions on AWS_LAMBDA_RUNTIME_API.
//
// Extensions API: https://docs.aws.amazon.com/lambda/latest/dg/runtimes-extensions-api.html
// Telemetry API:  https://docs.aws.amazon.com/lambda/latest/dg/telemetry-api-reference.html
package lambdaapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// RuntimeAPIEnv names the variable holding the host:port of the API.
const RuntimeAPIEnv = "AWS_LAMBDA_RUNTIME_API"

// ErrInvalidInput is wrapped by every input validation error.
var ErrInvalidInput = errors.New("invalid input")

// Client calls the Lambda APIs on a single host.
type Client struct {
	host string
	hc   *http.Client
}

// NewClient returns a Client for host. A nil hc uses http.DefaultClient.
// Long-polling calls such as NextEvent block until the runtime answers, so
// hc should not carry a short Timeout.
func NewClient(host string, hc *http.Client) (*Client, error) {
	if host == "" {
		return nil, fmt.Errorf("%w: host is empty", ErrInvalidInput)
	}
	if hc == nil {
		hc = http.DefaultClient
	}

	return &Client{
		host: host,
		hc:   hc,
	}, nil
}

type header struct {
	key   string
	value string
}

type response struct {
	statusCode int
	header     http.Header
	body       []byte
}

func (c *Client) call(ctx context.Context, method, path string, body io.Reader, headers ...header) (*response, error) {
	url := fmt.Sprintf("http://%s%s", c.host, path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("Error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for _, h := range headers {
		req.Header.Set(h.key, h.value)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Error calling %s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, res.Body); err != nil {
		return nil, fmt.Errorf("Error reading response body: %w", err)
	}

	return &response{
		statusCode: res.StatusCode,
		header:     res.Header,
		body:       buf.Bytes(),
	}, nil
}
