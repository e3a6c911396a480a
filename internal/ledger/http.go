package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// HTTPClient talks JSON to the contract gateway that fronts the ledger.
type HTTPClient struct {
	baseURL    *url.URL
	token      string
	httpClient *http.Client
}

func NewHTTPClient(baseURL, token string, timeout time.Duration) (*HTTPClient, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ledger URL '%s': %w", baseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid ledger URL '%s': scheme and host required", baseURL)
	}
	return &HTTPClient{
		baseURL: base,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

type txResponse struct {
	TxRef string `json:"tx_ref"`
}

type deployResponse struct {
	LedgerRef string `json:"ledger_ref"`
}

type aggregateResponse struct {
	Amount int64 `json:"amount"`
}

func (c *HTTPClient) Deploy(ctx context.Context, req DeployRequest) (string, error) {
	var resp deployResponse
	if err := c.do(ctx, "deploy", http.MethodPost, c.baseURL.JoinPath("contracts"), req, &resp); err != nil {
		return "", err
	}
	if resp.LedgerRef == "" {
		return "", &Error{Op: "deploy", Outcome: Unknown, Err: errors.New("empty ledger_ref in response")}
	}
	return resp.LedgerRef, nil
}

func (c *HTTPClient) Stake(ctx context.Context, ref, address string, amount int64) (TxRef, error) {
	body := map[string]any{"participant_address": address, "amount": amount}
	return c.tx(ctx, "stake", c.baseURL.JoinPath("contracts", ref, "stake"), body)
}

func (c *HTTPClient) Release(ctx context.Context, ref, address string) (TxRef, error) {
	body := map[string]any{"participant_address": address}
	return c.tx(ctx, "release", c.baseURL.JoinPath("contracts", ref, "release"), body)
}

func (c *HTTPClient) RecordTaskCompletion(ctx context.Context, ref, address, taskID string) (TxRef, error) {
	body := map[string]any{"participant_address": address, "task_id": taskID}
	return c.tx(ctx, "record_task", c.baseURL.JoinPath("contracts", ref, "tasks"), body)
}

func (c *HTTPClient) Eliminate(ctx context.Context, ref string, week int, address string) (TxRef, error) {
	body := map[string]any{"week": week, "participant_address": address}
	return c.tx(ctx, "eliminate", c.baseURL.JoinPath("contracts", ref, "eliminations"), body)
}

func (c *HTTPClient) Distribute(ctx context.Context, ref string, payouts []Payout) (TxRef, error) {
	body := map[string]any{"payouts": payouts}
	return c.tx(ctx, "distribute", c.baseURL.JoinPath("contracts", ref, "distribution"), body)
}

func (c *HTTPClient) AggregateStake(ctx context.Context, ref string) (int64, error) {
	var resp aggregateResponse
	if err := c.do(ctx, "aggregate_stake", http.MethodGet, c.baseURL.JoinPath("contracts", ref, "stake"), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Amount, nil
}

func (c *HTTPClient) tx(ctx context.Context, op string, u *url.URL, body any) (TxRef, error) {
	var resp txResponse
	if err := c.do(ctx, op, http.MethodPost, u, body, &resp); err != nil {
		return "", err
	}
	return TxRef(resp.TxRef), nil
}

func (c *HTTPClient) do(ctx context.Context, op, method string, u *url.URL, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &Error{Op: op, Outcome: Rejected, Err: fmt.Errorf("failed to encode request: %w", err)}
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return &Error{Op: op, Outcome: Rejected, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &Error{Op: op, Outcome: classifyTransportError(err), Err: err}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &Error{
			Op:         op,
			Outcome:    classifyStatus(resp.StatusCode),
			StatusCode: resp.StatusCode,
			Err:        errors.New("ledger gateway returned " + strconv.Itoa(resp.StatusCode) + ": " + string(msg)),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		// The operation was applied but we cannot read its result.
		return &Error{Op: op, Outcome: Unknown, StatusCode: resp.StatusCode, Err: fmt.Errorf("failed to decode response: %w", err)}
	}
	return nil
}

// classifyStatus: 429 and 503 mean the gateway refused before submitting; 5xx otherwise is unknown.
func classifyStatus(code int) Outcome {
	switch {
	case code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable:
		return NotAccepted
	case code >= 500:
		return Unknown
	default:
		return Rejected
	}
}

// classifyTransportError: a failed dial never reached the gateway; anything later is unknown.
func classifyTransportError(err error) Outcome {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return NotAccepted
	}
	return Unknown
}
