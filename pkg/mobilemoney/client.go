/**
 * @description
 * This package provides the mobile-money payout client used by transfer
 * automation. Operator support is decided by the beneficiary's Madagascar phone
 * prefix; payouts go through an HTTP gateway shaped like the real operator
 * APIs, so a production integration can replace the gateway URL without
 * touching the lifecycle engine.
 */
package mobilemoney

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Operator names keyed by the Malagasy mobile prefixes they own.
var operatorPrefixes = map[string]string{
	"032": "Orange Money",
	"033": "Airtel Money",
	"034": "MVola",
	"038": "MVola",
}

// Client issues mobile-money payouts.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new mobile-money gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// OperatorFor returns the mobile-money operator owning the phone number's
// prefix, and whether automation is supported for it at all.
func OperatorFor(phoneNumber string) (string, bool) {
	normalized := strings.TrimSpace(phoneNumber)
	normalized = strings.TrimPrefix(normalized, "+261")
	normalized = strings.TrimPrefix(normalized, "261")
	if !strings.HasPrefix(normalized, "0") {
		normalized = "0" + normalized
	}
	if len(normalized) < 3 {
		return "", false
	}
	operator, ok := operatorPrefixes[normalized[:3]]
	return operator, ok
}

// Supports reports whether the phone number's prefix maps to an operator we
// can pay out to automatically.
func (c *Client) Supports(phoneNumber string) bool {
	_, ok := OperatorFor(phoneNumber)
	return ok
}

// PayoutRequest is the payload sent to the mobile-money gateway.
type PayoutRequest struct {
	PhoneNumber string `json:"phone_number"`
	AmountMGA   int64  `json:"amount_mga"`
	Reference   string `json:"reference"`
}

// PayoutResult is the gateway's response to a payout attempt. A non-nil error
// from Payout means the call itself failed; a result with Success=false means
// the operator rejected the payout.
type PayoutResult struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Error         string `json:"error,omitempty"`
	Operator      string `json:"operator,omitempty"`
}

// Payout sends an MGA payout to the beneficiary's mobile wallet.
func (c *Client) Payout(ctx context.Context, phoneNumber string, amountMGA int64, reference string) (*PayoutResult, error) {
	operator, ok := OperatorFor(phoneNumber)
	if !ok {
		return nil, fmt.Errorf("no mobile money operator for phone number prefix")
	}

	body, err := json.Marshal(PayoutRequest{
		PhoneNumber: phoneNumber,
		AmountMGA:   amountMGA,
		Reference:   reference,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/payouts", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute payout request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read payout response: %w", err)
	}

	var result PayoutResult
	if err := json.Unmarshal(bodyBytes, &result); err != nil {
		return nil, fmt.Errorf("failed to decode payout response (status %d): %w", resp.StatusCode, err)
	}
	result.Operator = operator

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// The gateway reports operator rejections as structured failures, not
		// transport errors.
		result.Success = false
		if result.Error == "" {
			result.Error = fmt.Sprintf("gateway returned status %d", resp.StatusCode)
		}
	}
	return &result, nil
}
