package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

type ClientOption func(*httpClient)

// WithHTTPClient replaces the instrumented default client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *httpClient) { c.client = client }
}

type httpClient struct {
	baseURL string
	client  *http.Client
}

func newHTTPClient(baseURL string, opts ...ClientOption) httpClient {
	c := httpClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// TokenClient obtains short-lived realtime credentials from the backend.
type TokenClient struct {
	httpClient
}

func NewTokenClient(baseURL string, opts ...ClientOption) *TokenClient {
	return &TokenClient{httpClient: newHTTPClient(baseURL, opts...)}
}

type tokenResponse struct {
	ClientSecret *struct {
		Value string `json:"value"`
	} `json:"client_secret"`
	Token string `json:"token"`
	Value string `json:"value"`
}

func (r tokenResponse) token() string {
	if r.ClientSecret != nil && r.ClientSecret.Value != "" {
		return r.ClientSecret.Value
	}
	if r.Token != "" {
		return r.Token
	}
	return r.Value
}

// FetchToken requests a new ephemeral token. Non-success responses and
// responses without a token fail with ErrAuthFailure.
func (c *TokenClient) FetchToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "fetch realtime token")
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/session", nil)
	if err != nil {
		err = fmt.Errorf("%w: error creating HTTP request: %v", ErrAuthFailure, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request creation failed")
		return "", err
	}

	span.SetAttributes(attribute.String("request.url", req.URL.String()))
	resp, err := c.client.Do(req)
	if err != nil {
		err = fmt.Errorf("%w: error sending request: %v", ErrAuthFailure, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
		}
		err := fmt.Errorf("%w: non-OK HTTP status: %s", ErrAuthFailure, resp.Status)
		span.RecordError(err)
		span.SetStatus(codes.Error, "token endpoint rejected request")
		return "", err
	}

	var body tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		err = fmt.Errorf("%w: error decoding response: %v", ErrAuthFailure, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid token response")
		return "", err
	}

	token := body.token()
	if token == "" {
		err := fmt.Errorf("%w: response contained no token", ErrAuthFailure)
		span.RecordError(err)
		span.SetStatus(codes.Error, "missing token")
		return "", err
	}
	return token, nil
}
