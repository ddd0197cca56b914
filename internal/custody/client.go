package custody

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// Client is the outbound boundary to the custody provider.
type Client interface {
	// SubmitTransfer submits a transfer request. The ExternalTxID carried by
	// the request is the provider-side idempotency key.
	SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error)
	// Ping verifies provider reachability for health checks.
	Ping(ctx context.Context) error
}

// TransferRequest is the provider wire format for a transfer submission.
type TransferRequest struct {
	Source       string `json:"source"`
	Destination  string `json:"destination"`
	AssetID      string `json:"assetId"`
	Amount       string `json:"amount"`
	ExternalTxID string `json:"externalTxId"`
	Note         string `json:"note,omitempty"`
}

// TransferResponse is the provider's acknowledgement body.
type TransferResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// providerErrorBody is the error payload shape the provider sends alongside
// non-2xx responses.
type providerErrorBody struct {
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HTTPClient talks to the custody provider over its REST API.
type HTTPClient struct {
	options    ClientOptions
	httpClient *http.Client
	logger     *slog.Logger
}

// NewHTTPClient builds a client from validated options. Each call carries a
// per-request timeout from the options so a submission cannot hang
// indefinitely; timeouts surface as transient upstream failures.
func NewHTTPClient(provider *OptionsProvider, logger *slog.Logger) *HTTPClient {
	opts := provider.Options()
	return &HTTPClient{
		options:    opts,
		httpClient: &http.Client{Transport: http.DefaultTransport},
		logger:     logger.With("component", "custody_client"),
	}
}

// SubmitTransfer implements Client.
func (c *HTTPClient) SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal transfer request: %w", err)
	}

	var resp TransferResponse
	if err := c.do(ctx, http.MethodPost, "/v1/transactions", bytes.NewReader(body), &resp); err != nil {
		return nil, err
	}

	c.logger.Info("transfer submitted",
		"tx_id", resp.ID, "status", resp.Status, "external_tx_id", req.ExternalTxID)
	return &resp, nil
}

// Ping implements Client.
func (c *HTTPClient) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/v1/health", nil, nil)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.options.RequestTimeout)
	defer cancel()

	url := strings.TrimRight(c.options.BasePath, "/") + path
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("build custody request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", c.options.APIKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return &ProviderError{Err: err}
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return &ProviderError{StatusCode: httpResp.StatusCode, Err: err}
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		perr := &ProviderError{StatusCode: httpResp.StatusCode}
		var parsed providerErrorBody
		if json.Unmarshal(respBody, &parsed) == nil {
			perr.Status = parsed.Status
			perr.Code = parsed.Code
			perr.Message = parsed.Message
		}
		return perr
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &ProviderError{StatusCode: httpResp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
