package tokenservice

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	walletdomain "github.com/natebag/MLG-BETA/internal/wallet/domain"
)

const errorCodeInsufficientFunds = "insufficient_funds"

type balanceResponse struct {
	Principal string `json:"principal"`
	Balance   string `json:"balance"`
}

type burnPayload struct {
	Principal      string `json:"principal"`
	Amount         string `json:"amount"`
	IdempotencyKey string `json:"idempotency_key"`
}

type burnResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Amount string `json:"amount"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to the external token service that owns balances and burns.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string, timeout time.Duration) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, walletdomain.ErrInvalidConfig
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) GetBalance(ctx context.Context, principal string) (int64, error) {
	principal = strings.TrimSpace(principal)
	if principal == "" {
		return 0, walletdomain.ErrInvalidPrincipal
	}

	var out balanceResponse
	status, err := c.doRequest(ctx, http.MethodGet, "/v1/balances/"+url.PathEscape(principal), nil, "", &out)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", walletdomain.ErrUnavailable, err)
	}
	if status >= http.StatusBadRequest {
		return 0, fmt.Errorf("%w: status %d", walletdomain.ErrUnavailable, status)
	}

	balance, err := strconv.ParseInt(strings.TrimSpace(out.Balance), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid balance %q", walletdomain.ErrUnavailable, out.Balance)
	}
	return balance, nil
}

// Burn posts a single burn. It is never retried here; a replay must come from
// the caller with the same idempotency key.
func (c *Client) Burn(ctx context.Context, req walletdomain.BurnRequest) (walletdomain.BurnReceipt, error) {
	if strings.TrimSpace(req.Principal) == "" {
		return walletdomain.BurnReceipt{}, walletdomain.ErrInvalidPrincipal
	}
	if req.Amount <= 0 {
		return walletdomain.BurnReceipt{}, walletdomain.ErrInvalidAmount
	}

	payload := burnPayload{
		Principal:      strings.TrimSpace(req.Principal),
		Amount:         strconv.FormatInt(req.Amount, 10),
		IdempotencyKey: req.IdempotencyKey,
	}

	var out burnResponse
	var apiErr errorResponse
	status, err := c.doRequest(ctx, http.MethodPost, "/v1/burns", payload, req.IdempotencyKey, &out, &apiErr)
	if err != nil {
		return walletdomain.BurnReceipt{}, fmt.Errorf("%w: %w", walletdomain.ErrExecution, err)
	}
	if status >= http.StatusBadRequest {
		if status == http.StatusPaymentRequired || apiErr.Error.Code == errorCodeInsufficientFunds {
			return walletdomain.BurnReceipt{}, walletdomain.ErrInsufficientFunds
		}
		message := strings.TrimSpace(apiErr.Error.Message)
		if message == "" {
			message = fmt.Sprintf("status %d", status)
		}
		return walletdomain.BurnReceipt{}, fmt.Errorf("%w: %s", walletdomain.ErrExecution, message)
	}
	if strings.TrimSpace(out.ID) == "" {
		return walletdomain.BurnReceipt{}, fmt.Errorf("%w: token service response missing id", walletdomain.ErrExecution)
	}

	return walletdomain.BurnReceipt{Reference: out.ID, Amount: req.Amount}, nil
}

// doRequest decodes a success body into out and an error body into errOut,
// when given. Transport and decode failures are returned as errors; HTTP
// error statuses are returned for the caller to classify.
func (c *Client) doRequest(
	ctx context.Context,
	method string,
	path string,
	body any,
	idempotencyKey string,
	out any,
	errOut ...any,
) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		if len(errOut) > 0 && errOut[0] != nil {
			_ = json.NewDecoder(resp.Body).Decode(errOut[0])
		}
		return resp.StatusCode, nil
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return 0, fmt.Errorf("decode token service response: %w", err)
		}
	}
	return resp.StatusCode, nil
}
