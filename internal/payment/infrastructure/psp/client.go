package psp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const authorizePath = "/psp/authorize"

// maxResponseBytes bounds what we read from the PSP.
const maxResponseBytes = 64 << 10

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type authorizeResponse struct {
	Authorized *bool  `json:"authorized"`
	AuthCode   string `json:"authCode"`
	Reason     string `json:"reason"`
}

// Authorize calls the PSP. Transport failures, 5xx, 408 and 429 answers come
// back as plain errors and are worth retrying; anything else the PSP says that is not
// a well-formed decision wraps application.ErrUnexpectedPSPResponse.
func (c *Client) Authorize(ctx context.Context, req application.AuthorizeRequest) (application.AuthorizeResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return application.AuthorizeResult{}, fmt.Errorf("marshal authorize request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+authorizePath, bytes.NewReader(body))
	if err != nil {
		return application.AuthorizeResult{}, fmt.Errorf("create authorize request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// the PSP may use this to collapse our at-least-once retries
	httpReq.Header.Set("Idempotency-Key", req.PaymentID.String())
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(httpReq.Header))

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return application.AuthorizeResult{}, fmt.Errorf("psp request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return application.AuthorizeResult{}, fmt.Errorf("read psp response: %w", err)
	}

	switch {
	case retryable(resp.StatusCode):
		return application.AuthorizeResult{}, fmt.Errorf("psp returned %d", resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return application.AuthorizeResult{}, fmt.Errorf("%w: status %d: %s",
			application.ErrUnexpectedPSPResponse, resp.StatusCode, truncate(raw))
	}

	var out authorizeResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return application.AuthorizeResult{}, fmt.Errorf("%w: %v", application.ErrUnexpectedPSPResponse, err)
	}
	if out.Authorized == nil {
		return application.AuthorizeResult{}, fmt.Errorf("%w: authorized missing", application.ErrUnexpectedPSPResponse)
	}
	return application.AuthorizeResult{
		Authorized: *out.Authorized,
		AuthCode:   out.AuthCode,
		Reason:     out.Reason,
	}, nil
}

func retryable(status int) bool {
	return status >= http.StatusInternalServerError ||
		status == http.StatusRequestTimeout ||
		status == http.StatusTooManyRequests
}

func truncate(b []byte) string {
	const n = 200
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
