// Package backend talks to the catalog and payments REST backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/tour-checkout/internal/domain"
	"github.com/robertarktes/tour-checkout/internal/observability"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const maxBodySize = 1 << 20

type Client struct {
	baseURL string
	gateway string
	http    *http.Client
	logger  observability.Logger
}

func NewClient(baseURL, gateway string, timeout time.Duration, logger observability.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		gateway: gateway,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// statusError is a non-2xx response. Message is the server supplied message,
// if any.
type statusError struct {
	Status  int
	Message string
}

func (e *statusError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "backend responded " + strconv.Itoa(e.Status)
}

func (c *Client) paymentsPath(action string) string {
	return "/payments/" + url.PathEscape(c.gateway) + "/" + action
}

// do sends the request and returns the body of a 2xx response. Non-2xx
// responses come back as *statusError.
func (c *Client) do(ctx context.Context, op, method, path string, in any) ([]byte, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: encode request", op)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: build request", op)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		observability.BackendCallDuration.WithLabelValues(op, "error").Observe(time.Since(start).Seconds())
		return nil, errors.Wrapf(err, "%s", op)
	}
	defer resp.Body.Close()
	observability.BackendCallDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, errors.Wrapf(err, "%s: read response", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{Status: resp.StatusCode, Message: serverMessage(raw)}
	}
	return raw, nil
}

// serverMessage extracts a human readable message from an error payload.
func serverMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Data    struct {
			Message string `json:"message"`
		} `json:"data"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return ""
	}
	switch {
	case body.Message != "":
		return body.Message
	case body.Error != "":
		return body.Error
	default:
		return body.Data.Message
	}
}

// unwrapData returns the object under "data" when the payload is wrapped in
// one, otherwise the payload itself.
func unwrapData(raw []byte) []byte {
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	if json.Unmarshal(raw, &env) == nil && len(env.Data) > 0 && env.Data[0] == '{' {
		return env.Data
	}
	return raw
}

func (c *Client) CreateOrder(ctx context.Context, req domain.CreateOrderRequest) (*domain.OrderHandle, error) {
	raw, err := c.do(ctx, "create_order", http.MethodPost, c.paymentsPath("create-order"), req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.Message != "" {
			return nil, errors.Mark(errors.New(se.Message), domain.ErrOrderCreationFailed)
		}
		if se != nil {
			return nil, errors.Mark(errors.New("Unable to create payment order"), domain.ErrOrderCreationFailed)
		}
		return nil, errors.Mark(err, domain.ErrOrderCreationFailed)
	}

	var handle domain.OrderHandle
	if err := json.Unmarshal(unwrapData(raw), &handle); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode order"), domain.ErrOrderCreationFailed)
	}
	return &handle, nil
}

func (c *Client) Verify(ctx context.Context, req domain.VerifyRequest) (*domain.VerifyResult, error) {
	raw, err := c.do(ctx, "verify", http.MethodPost, c.paymentsPath("verify"), req)
	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			return &domain.VerifyResult{Verified: false, Message: se.Message}, nil
		}
		return nil, errors.Mark(err, domain.ErrVerificationFailed)
	}

	var res domain.VerifyResult
	if err := json.Unmarshal(unwrapData(raw), &res); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decode verification"), domain.ErrVerificationFailed)
	}
	return &res, nil
}

func (c *Client) MarkFailed(ctx context.Context, rec domain.FailureRecord) error {
	_, err := c.do(ctx, "mark_failed", http.MethodPost, c.paymentsPath("mark-failed"), rec)
	return err
}
